package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/domain"
	"notesync/internal/remote"
)

func TestNoteToPayload(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(2 * time.Hour)

	n := domain.NewNote("n1", 6, 4)
	n.Title = "title"
	n.NotebookGUID = "nb1"
	n.TagGUIDs = []string{"t1", "t2"}
	n.Content = "<en-note>body</en-note>"
	n.Created = created
	n.Updated = updated
	n.ReminderOrder = 7
	n.AddResource("hash1", "photo.jpg", "image/jpeg", []byte{1, 2, 3})

	got := noteToPayload(n)
	want := &remote.NotePayload{
		GUID:                 "n1",
		Title:                "title",
		NotebookGUID:         "nb1",
		TagGUIDs:             []string{"t1", "t2"},
		Content:              "<en-note>body</en-note>",
		Created:              created,
		Updated:              updated,
		ReminderOrder:        7,
		Resources: []remote.ResourcePayload{
			{Hash: "hash1", FileName: "photo.jpg", Mime: "image/jpeg", Data: []byte{1, 2, 3}},
		},
		UpdateSequenceNumber: 6,
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestApplyNoteSummary_ReportsChangedFields(t *testing.T) {
	n := domain.NewNote("n1", 4, 4)
	n.Title = "old"
	n.NotebookGUID = "nb1"

	fields := applyNoteSummary(n, remote.NoteSummary{
		GUID:                 "n1",
		Title:                "new",
		NotebookGUID:         "nb1",
		UpdateSequenceNumber: 5,
	})

	assert.Contains(t, fields, domain.FieldTitle)
	assert.Contains(t, fields, domain.FieldSynced)
	assert.NotContains(t, fields, domain.FieldNotebook)
	assert.Equal(t, "new", n.Title)
	assert.Equal(t, int64(5), n.UpdateSequenceNumber)
	assert.True(t, n.Synced())
}

func TestApplyNoteSummary_NoChanges(t *testing.T) {
	n := domain.NewNote("n1", 5, 5)
	n.Title = "same"

	fields := applyNoteSummary(n, remote.NoteSummary{
		GUID:                 "n1",
		Title:                "same",
		UpdateSequenceNumber: 5,
	})
	assert.Empty(t, fields)
}

func TestApplyNotePayload_ResourceMetadataOnly(t *testing.T) {
	n := domain.NewNote("n1", 3, 3)
	applyNotePayload(n, &remote.NotePayload{
		GUID:    "n1",
		Content: "body",
		Resources: []remote.ResourcePayload{
			{Hash: "h1", FileName: "doc.pdf", Mime: "application/pdf", Data: []byte("blob")},
		},
		UpdateSequenceNumber: 8,
	}, remote.LoadContent)

	require.Contains(t, n.Resources, "h1")
	assert.False(t, n.Resources["h1"].Fetched(), "blob data only arrives with an explicit resource load")
	assert.Equal(t, "body", n.Content)
	assert.True(t, n.Loaded)

	applyNotePayload(n, &remote.NotePayload{
		GUID: "n1",
		Resources: []remote.ResourcePayload{
			{Hash: "h1", FileName: "doc.pdf", Mime: "application/pdf", Data: []byte("blob")},
		},
		UpdateSequenceNumber: 8,
	}, remote.LoadResources)
	assert.True(t, n.Resources["h1"].Fetched())
}
