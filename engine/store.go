package engine

import (
	"time"

	"github.com/edgesync/edgesync/record"
)

// dob is the fixed epoch SyncedAt starts at before any snapshot has been
// taken ("DOB" — date of birth of the store).
var dob = time.Unix(0, 0).UTC()

// QueuedMutation is a mutation awaiting remote confirmation, preserving
// exactly what must be replayed to the remote service.
type QueuedMutation struct {
	EventName string // create | update | patch | remove
	Record    record.Record
	Args      []any
}

// uuid returns the uuid of the mutation's record, if any.
func (q QueuedMutation) uuid() (string, bool) {
	return q.Record.UUID()
}

// LastEvent describes the most recent emission as a
// `{ source, action, eventName, record }` descriptor.
type LastEvent struct {
	Source    int // 0 = remote origin, 1 = local optimistic
	Action    string
	EventName string
	Record    record.Record
}

// Action names reported on the "events" topic.
const (
	ActionSnapshot        = "snapshot"
	ActionAddListeners    = "add-listeners"
	ActionRemoveListeners = "remove-listeners"
	ActionChangeSort      = "change-sort"
	ActionMutated         = "mutated"
	ActionRemove          = "remove"
	ActionLeftPub         = "left-pub"
)

// Source values distinguishing local optimistic mutation from a remote
// confirmation.
const (
	SourceRemote = 0
	SourceLocal  = 1
)

// Store is the process-local mirror of the remote collection.
type Store struct {
	Records  []record.Record
	Queued   []QueuedMutation
	SyncedAt time.Time
	Last     LastEvent
}

func newStore() Store {
	return Store{SyncedAt: dob}
}
