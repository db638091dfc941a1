package store

import (
	"notesync/internal/domain"
	"notesync/internal/remote"
)

// noteToPayload snapshots a note for a create or save call. Built under the
// store lock at enqueue time so the job carries a consistent copy.
func noteToPayload(n *domain.Note) *remote.NotePayload {
	p := &remote.NotePayload{
		GUID:                 n.GUID(),
		Title:                n.Title,
		NotebookGUID:         n.NotebookGUID,
		TagGUIDs:             append([]string(nil), n.TagGUIDs...),
		Content:              n.Content,
		Created:              n.Created,
		Updated:              n.Updated,
		ReminderOrder:        n.ReminderOrder,
		ReminderTime:         n.ReminderTime,
		ReminderDoneTime:     n.ReminderDoneTime,
		Deleted:              n.Deleted,
		UpdateSequenceNumber: n.UpdateSequenceNumber,
	}
	for _, r := range n.Resources {
		p.Resources = append(p.Resources, remote.ResourcePayload{
			Hash:     r.Hash,
			FileName: r.FileName,
			Mime:     r.Mime,
			Data:     r.Data,
		})
	}
	return p
}

// applyNoteSummary copies a listing summary onto a note and adopts the remote
// sequence number as both local and last-synced. Returns the names of the
// fields that actually changed.
func applyNoteSummary(n *domain.Note, sum remote.NoteSummary) []string {
	var fields []string
	if n.Title != sum.Title {
		n.Title = sum.Title
		fields = append(fields, domain.FieldTitle)
	}
	if n.NotebookGUID != sum.NotebookGUID {
		n.NotebookGUID = sum.NotebookGUID
		fields = append(fields, domain.FieldNotebook)
	}
	if !stringSlicesEqual(n.TagGUIDs, sum.TagGUIDs) {
		n.TagGUIDs = append([]string(nil), sum.TagGUIDs...)
		fields = append(fields, domain.FieldTags)
	}
	if !n.Created.Equal(sum.Created) {
		n.Created = sum.Created
		fields = append(fields, domain.FieldCreated)
	}
	if !n.Updated.Equal(sum.Updated) {
		n.Updated = sum.Updated
		fields = append(fields, domain.FieldUpdated)
	}
	if n.ReminderOrder != sum.ReminderOrder {
		n.ReminderOrder = sum.ReminderOrder
		fields = append(fields, domain.FieldReminder)
	}
	if !n.ReminderTime.Equal(sum.ReminderTime) {
		n.ReminderTime = sum.ReminderTime
		fields = append(fields, domain.FieldReminderTime)
	}
	if !n.ReminderDoneTime.Equal(sum.ReminderDoneTime) {
		n.ReminderDoneTime = sum.ReminderDoneTime
		fields = append(fields, domain.FieldReminderDone)
	}
	if n.Deleted != sum.Deleted {
		n.Deleted = sum.Deleted
		fields = append(fields, domain.FieldDeleted)
	}
	if n.UpdateSequenceNumber != sum.UpdateSequenceNumber ||
		n.LastSyncedSequenceNumber != sum.UpdateSequenceNumber {
		n.UpdateSequenceNumber = sum.UpdateSequenceNumber
		n.LastSyncedSequenceNumber = sum.UpdateSequenceNumber
		fields = append(fields, domain.FieldSynced)
	}
	return fields
}

// applyNotePayload copies a full note payload onto a note, content and
// resources included.
func applyNotePayload(n *domain.Note, p *remote.NotePayload, what remote.LoadWhat) {
	n.Title = p.Title
	n.NotebookGUID = p.NotebookGUID
	n.TagGUIDs = append([]string(nil), p.TagGUIDs...)
	n.Created = p.Created
	n.Updated = p.Updated
	n.ReminderOrder = p.ReminderOrder
	n.ReminderTime = p.ReminderTime
	n.ReminderDoneTime = p.ReminderDoneTime
	n.Deleted = p.Deleted
	for _, r := range p.Resources {
		var data []byte
		if what&remote.LoadResources != 0 {
			data = r.Data
		}
		n.AddResource(r.Hash, r.FileName, r.Mime, data)
	}
	if what&remote.LoadContent != 0 {
		n.Content = p.Content
		n.Loaded = true
	}
	n.UpdateSequenceNumber = p.UpdateSequenceNumber
	n.LastSyncedSequenceNumber = p.UpdateSequenceNumber
}

func applyNotebookPayload(nb *domain.Notebook, p remote.NotebookPayload) []string {
	var fields []string
	if nb.Name != p.Name {
		nb.Name = p.Name
		fields = append(fields, domain.FieldName)
	}
	if nb.Default != p.Default {
		nb.Default = p.Default
		fields = append(fields, domain.FieldDefault)
	}
	if nb.Published != p.Published {
		nb.Published = p.Published
	}
	if !nb.LastUpdated.Equal(p.ServiceUpdated) {
		nb.LastUpdated = p.ServiceUpdated
		fields = append(fields, domain.FieldUpdated)
	}
	if nb.UpdateSequenceNumber != p.UpdateSequenceNumber ||
		nb.LastSyncedSequenceNumber != p.UpdateSequenceNumber {
		nb.UpdateSequenceNumber = p.UpdateSequenceNumber
		nb.LastSyncedSequenceNumber = p.UpdateSequenceNumber
		fields = append(fields, domain.FieldSynced)
	}
	return fields
}

func notebookToPayload(nb *domain.Notebook) *remote.NotebookPayload {
	return &remote.NotebookPayload{
		GUID:                 nb.GUID(),
		Name:                 nb.Name,
		Default:              nb.Default,
		Published:            nb.Published,
		ServiceUpdated:       nb.LastUpdated,
		UpdateSequenceNumber: nb.UpdateSequenceNumber,
	}
}

func applyTagPayload(t *domain.Tag, p remote.TagPayload) []string {
	var fields []string
	if t.Name != p.Name {
		t.Name = p.Name
		fields = append(fields, domain.FieldName)
	}
	if t.UpdateSequenceNumber != p.UpdateSequenceNumber ||
		t.LastSyncedSequenceNumber != p.UpdateSequenceNumber {
		t.UpdateSequenceNumber = p.UpdateSequenceNumber
		t.LastSyncedSequenceNumber = p.UpdateSequenceNumber
		fields = append(fields, domain.FieldSynced)
	}
	return fields
}

func tagToPayload(t *domain.Tag) *remote.TagPayload {
	return &remote.TagPayload{
		GUID:                 t.GUID(),
		Name:                 t.Name,
		UpdateSequenceNumber: t.UpdateSequenceNumber,
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
