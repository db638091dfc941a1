package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateGUID = errors.New("duplicate guid")
	ErrGUIDNotFound  = errors.New("guid not found")
)

// Op classifies a repository change notification.
type Op int

const (
	OpAdded Op = iota
	OpUpdated
	OpRemoved
	OpRekeyed
)

func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpUpdated:
		return "updated"
	case OpRemoved:
		return "removed"
	case OpRekeyed:
		return "rekeyed"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Change describes one repository mutation. Fields lists the affected field
// names for OpUpdated (empty means "anything may have changed"); OldGUID is
// set for OpRekeyed.
type Change struct {
	Kind    Kind
	Op      Op
	GUID    string
	OldGUID string
	Fields  []string
}

// Field names reported in Change.Fields. The UI-binding collaborator matches
// on these to refresh individual columns.
const (
	FieldTitle          = "title"
	FieldContent        = "content"
	FieldNotebook       = "notebookGuid"
	FieldTags           = "tagGuids"
	FieldCreated        = "created"
	FieldUpdated        = "updated"
	FieldReminder       = "reminder"
	FieldReminderTime   = "reminderTime"
	FieldReminderDone   = "reminderDoneTime"
	FieldDeleted        = "deleted"
	FieldLoading        = "loading"
	FieldSynced         = "synced"
	FieldSyncError      = "syncError"
	FieldConflicting    = "conflicting"
	FieldIsSearchResult = "isSearchResult"
	FieldResources      = "resources"
	FieldName           = "name"
	FieldDefault        = "default"
)

// Observer receives repository change notifications. Observers are invoked
// synchronously in mutation order; they must not mutate the repository.
type Observer func(Change)

// Repository is an ordered, GUID-indexed collection of one entity kind. It is
// not safe for concurrent use; the store serializes access.
type Repository[T Entity] struct {
	kind      Kind
	order     []T
	byGUID    map[string]T
	observers map[int]Observer
	nextObs   int
}

func NewRepository[T Entity](kind Kind) *Repository[T] {
	return &Repository[T]{
		kind:      kind,
		byGUID:    map[string]T{},
		observers: map[int]Observer{},
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (r *Repository[T]) Subscribe(fn Observer) (unsubscribe func()) {
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	return func() { delete(r.observers, id) }
}

func (r *Repository[T]) emit(c Change) {
	c.Kind = r.kind
	for _, fn := range r.observers {
		fn(c)
	}
}

func (r *Repository[T]) Len() int { return len(r.order) }

// Get returns the entity with the given GUID, if present.
func (r *Repository[T]) Get(guid string) (T, bool) {
	e, ok := r.byGUID[guid]
	return e, ok
}

// All returns the entities in insertion order. The slice is a copy; the
// entities are shared.
func (r *Repository[T]) All() []T {
	out := make([]T, len(r.order))
	copy(out, r.order)
	return out
}

// GUIDs returns the identifiers of all entities in insertion order.
func (r *Repository[T]) GUIDs() []string {
	out := make([]string, 0, len(r.order))
	for _, e := range r.order {
		out = append(out, e.GUID())
	}
	return out
}

// Insert appends a new entity and notifies observers.
func (r *Repository[T]) Insert(e T) error {
	if _, ok := r.byGUID[e.GUID()]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateGUID, r.kind, e.GUID())
	}
	r.byGUID[e.GUID()] = e
	r.order = append(r.order, e)
	r.emit(Change{Op: OpAdded, GUID: e.GUID()})
	return nil
}

// Remove drops the entity with the given GUID and notifies observers.
func (r *Repository[T]) Remove(guid string) bool {
	if _, ok := r.byGUID[guid]; !ok {
		return false
	}
	delete(r.byGUID, guid)
	for i := range r.order {
		if r.order[i].GUID() == guid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.emit(Change{Op: OpRemoved, GUID: guid})
	return true
}

// ReplaceGUID re-keys an entity after the remote service assigned its final
// identifier. This is the only way an entity's GUID changes.
func (r *Repository[T]) ReplaceGUID(oldGUID, newGUID string) error {
	e, ok := r.byGUID[oldGUID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrGUIDNotFound, r.kind, oldGUID)
	}
	if _, ok := r.byGUID[newGUID]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateGUID, r.kind, newGUID)
	}
	delete(r.byGUID, oldGUID)
	e.setGUID(newGUID)
	r.byGUID[newGUID] = e
	r.emit(Change{Op: OpRekeyed, GUID: newGUID, OldGUID: oldGUID})
	return nil
}

// Replace swaps the stored entity for guid with a new value while preserving
// the identifier and the position in the ordered collection. Used when a
// conflict is resolved in favor of the remote shadow.
func (r *Repository[T]) Replace(guid string, e T) error {
	if _, ok := r.byGUID[guid]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrGUIDNotFound, r.kind, guid)
	}
	e.setGUID(guid)
	r.byGUID[guid] = e
	for i := range r.order {
		if r.order[i].GUID() == guid {
			r.order[i] = e
			break
		}
	}
	r.emit(Change{Op: OpUpdated, GUID: guid})
	return nil
}

// Notify reports that an entity was mutated in place. The repository does not
// track field-level changes itself; callers pass the fields they touched.
func (r *Repository[T]) Notify(guid string, fields ...string) {
	r.emit(Change{Op: OpUpdated, GUID: guid, Fields: fields})
}

// Clear drops all entities, emitting a Removed change for each. Used when the
// active account switches.
func (r *Repository[T]) Clear() {
	for _, e := range r.order {
		delete(r.byGUID, e.GUID())
		r.emit(Change{Op: OpRemoved, GUID: e.GUID()})
	}
	r.order = nil
}
