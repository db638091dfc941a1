// Package domain holds the synchronized entity types (Note, Notebook, Tag),
// their sequence-number bookkeeping, and the in-memory repositories that back
// the UI-facing collections.
//
// Entity identifiers are deliberately read-only outside this package: the only
// way a GUID changes is Repository.ReplaceGUID, which re-keys every index in
// the same step.
package domain

// Kind names an entity kind. It doubles as the grouping key in the persistent
// sync-state cache.
type Kind string

const (
	KindNote     Kind = "note"
	KindNotebook Kind = "notebook"
	KindTag      Kind = "tag"
)

// Lifecycle is the two-state sync lifecycle of an entity. An entity is Local
// until the remote service acknowledges its creation, Remote afterwards.
// Deletion logic dispatches on this: Local entities are purged immediately,
// Remote ones go through the tombstone path.
type Lifecycle int

const (
	// LifecycleLocal: never created on the remote service
	// (LastSyncedSequenceNumber == 0).
	LifecycleLocal Lifecycle = iota
	// LifecycleRemote: has a remote counterpart.
	LifecycleRemote
)

func lifecycleOf(lastSyncedSequenceNumber int64) Lifecycle {
	if lastSyncedSequenceNumber == 0 {
		return LifecycleLocal
	}
	return LifecycleRemote
}

// Entity is implemented by *Note, *Notebook and *Tag.
type Entity interface {
	GUID() string
	EntityKind() Kind

	// setGUID is unexported so only Repository.ReplaceGUID and
	// Repository.Replace can re-key an entity.
	setGUID(guid string)
}
