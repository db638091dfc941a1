// Package cli is the interactive front end: a small REPL over the
// synchronization store for inspecting collections, editing entities and
// watching reconciliation happen.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"notesync/internal/config"
	"notesync/internal/dispatch"
	"notesync/internal/domain"
	"notesync/internal/logging"
	"notesync/internal/remote"
	"notesync/internal/store"
)

// App wires the store, the dispatcher and the remote adapter together for
// interactive use.
type App struct {
	cfg   *config.Config
	log   logging.Logger
	disp  *dispatch.Dispatcher
	store *store.Store
}

// NewApp builds the application from configuration. The remote adapter is the
// disconnected stub until a transport is plugged in; everything still works
// against the local replica.
func NewApp(cfg *config.Config, log logging.Logger, rem remote.Operations) (*App, error) {
	disp := dispatch.New(log, cfg.Workers)
	st := store.New(log, rem, disp, cfg.DataDir)

	ctx := context.Background()
	if err := st.SetAccount(ctx, cfg.Account); err != nil {
		disp.Close()
		return nil, fmt.Errorf("failed to select account: %w", err)
	}
	return &App{cfg: cfg, log: log, disp: disp, store: st}, nil
}

// Run drives the REPL until EOF or an exit command, then shuts down.
func (a *App) Run(ctx context.Context) {
	fmt.Printf("notesync, account %q (type 'help' for commands)\n", a.store.Account())
	a.store.Refresh(ctx)
	runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))

	a.disp.Close()
	if err := a.store.Close(); err != nil {
		a.log.Error(ctx, "failed to close store", "error", err)
	}
}

func (a *App) status() string {
	s := a.store.Account()
	if a.store.Busy() {
		s += " syncing"
	}
	if n := a.store.ErrorCount(); n > 0 {
		s += fmt.Sprintf(" %d error(s)", n)
	}
	return s
}

func (a *App) listNotes(ctx context.Context) error {
	for _, n := range a.store.Notes() {
		var marks []string
		if n.Modified() {
			marks = append(marks, "modified")
		}
		if n.Conflicting {
			marks = append(marks, "conflict")
		}
		if n.Deleted {
			marks = append(marks, "deleted")
		}
		if n.IsSearchResult {
			marks = append(marks, "hit")
		}
		if n.HasReminder() {
			if n.ReminderDone() {
				marks = append(marks, "reminder done")
			} else {
				marks = append(marks, "reminder")
			}
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " [" + strings.Join(marks, ",") + "]"
		}
		printlnFn(fmt.Sprintf("%s  %s%s", n.GUID(), n.Title, suffix))
	}
	return nil
}

func (a *App) listNotebooks(ctx context.Context) error {
	for _, nb := range a.store.Notebooks() {
		mark := ""
		if nb.Default {
			mark = " *"
		}
		printlnFn(fmt.Sprintf("%s  %s (%d notes)%s", nb.GUID(), nb.Name, nb.NoteCount(), mark))
	}
	return nil
}

func (a *App) listTags(ctx context.Context) error {
	for _, t := range a.store.Tags() {
		printlnFn(fmt.Sprintf("%s  %s (%d notes)", t.GUID(), t.Name, t.NoteCount()))
	}
	return nil
}

func (a *App) newNote(ctx context.Context, title string) error {
	n, err := a.store.CreateNote(ctx, store.CreateNoteParams{Title: title})
	if err != nil {
		printlnFn("Cannot create note:", err.Error())
		return err
	}
	printlnFn("Created note", n.GUID())
	return nil
}

func (a *App) newNotebook(ctx context.Context, name string) error {
	nb, err := a.store.CreateNotebook(ctx, store.CreateNotebookParams{Name: name})
	if err != nil {
		printlnFn("Cannot create notebook:", err.Error())
		return err
	}
	printlnFn("Created notebook", nb.GUID())
	return nil
}

func (a *App) newTag(ctx context.Context, name string) error {
	t, err := a.store.CreateTag(ctx, store.CreateTagParams{Name: name})
	if err != nil {
		printlnFn("Cannot create tag:", err.Error())
		return err
	}
	printlnFn("Tag", t.GUID())
	return nil
}

func (a *App) showNote(ctx context.Context, guid string) error {
	n, ok := a.store.Note(guid)
	if !ok {
		printlnFn("No such note:", guid)
		return store.ErrNotFound
	}
	printlnFn("Title:   ", n.Title)
	printlnFn("Notebook:", n.NotebookGUID)
	printlnFn("Tags:    ", strings.Join(n.TagGUIDs, ", "))
	printlnFn("Synced:  ", fmt.Sprintf("%v (usn %d, last synced %d)",
		n.Synced(), n.UpdateSequenceNumber, n.LastSyncedSequenceNumber))
	if !n.Loaded {
		a.store.RefreshNoteContent(ctx, guid, remote.LoadContent, dispatch.PriorityHigh)
		printlnFn("(content not loaded yet, fetching)")
		return nil
	}
	printlnFn(n.Content)
	return nil
}

func (a *App) deleteNote(ctx context.Context, guid string) error {
	return a.store.DeleteNote(ctx, guid)
}

func (a *App) deleteNotebook(ctx context.Context, guid string) error {
	if err := a.store.ExpungeNotebook(ctx, guid); err != nil {
		printlnFn("Cannot delete notebook:", err.Error())
		return err
	}
	return nil
}

func (a *App) deleteTag(ctx context.Context, guid string) error {
	return a.store.ExpungeTag(ctx, guid)
}

func (a *App) search(ctx context.Context, words string) error {
	a.store.FindNotes(ctx, words)
	return nil
}

func (a *App) resolve(ctx context.Context, guid, side string) error {
	mode := store.KeepLocal
	if side == "remote" {
		mode = store.KeepRemote
	}
	if err := a.store.ResolveConflict(ctx, guid, mode); err != nil {
		printlnFn("Cannot resolve:", err.Error())
		return err
	}
	return nil
}

func (a *App) sync(ctx context.Context) error {
	a.store.Refresh(ctx)
	return nil
}

func (a *App) showError(ctx context.Context) error {
	if msg := a.store.Error(); msg != "" {
		printlnFn(msg)
		a.store.ClearError()
	} else {
		printlnFn("No errors.")
	}
	return nil
}

// watch subscribes to change notifications and prints them until interrupted.
func (a *App) watch(ctx context.Context) func() {
	return a.store.Subscribe(func(c domain.Change) {
		printlnFn(fmt.Sprintf("%s %s %s", c.Kind, c.Op, c.GUID))
	})
}
