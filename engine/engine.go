// Package engine is the single source of truth for a client's local view
// of a remote record collection: it owns the record array, the mutation
// queue, the event emitter, the publication filter, and the sort order,
// and applies mutations from either the local optimistic path or the
// remote confirmation path.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/events"
	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote"
)

// Subscriber is the direct callback invoked alongside the "events" topic:
// it receives the full record set and the event that produced it,
// synchronously with the mutation.
type Subscriber func(records []record.Record, last LastEvent)

// Config configures an Engine at construction time.
type Config struct {
	// Publication selects which remote records belong to this client's
	// view. Nil means every record is in view.
	Publication query.Predicate

	// Sort orders Records after every mutation when non-nil.
	Sort query.LessFunc

	// UseUUID and UseUpdatedAt gate the optimistic-replication path a
	// Mutator requires.
	UseUUID      bool
	UseUpdatedAt bool

	// Clock overrides the wall clock used to stamp updatedAt on local
	// optimistic apply.
	Clock func() time.Time

	// Subscriber receives every emitted change synchronously.
	Subscriber Subscriber

	// Persister, if set, is loaded at construction and saved after every
	// queue mutation.
	Persister QueuePersister

	// Logger receives structured diagnostics; defaults to slog.Default().
	Logger *slog.Logger
}

// Engine is the local source of truth for a client's replicated view.
type Engine struct {
	cfg   Config
	store Store
	bus   *events.Bus

	listening bool
	offs      []func()
}

// New constructs an Engine, loading any persisted queue via cfg.Persister.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{
		cfg:   cfg,
		store: newStore(),
		bus:   events.New(),
	}
	if cfg.Persister != nil {
		if queued, err := cfg.Persister.Load(); err != nil {
			e.log("queue load failed", "error", err)
		} else {
			e.store.Queued = queued
		}
	}
	return e
}

func (e *Engine) log(msg string, args ...any) {
	e.cfg.Logger.Debug(msg, args...)
}

// Events returns the Bus so a caller can subscribe to the "events" topic
// without going through the direct Subscriber callback.
func (e *Engine) Events() *events.Bus { return e.bus }

// Records returns the current record set. The returned slice is a shallow
// copy; mutating it does not affect the Engine's internal state.
func (e *Engine) Records() []record.Record {
	out := make([]record.Record, len(e.store.Records))
	copy(out, e.store.Records)
	return out
}

// Queued returns a copy of the pending mutation queue.
func (e *Engine) Queued() []QueuedMutation {
	out := make([]QueuedMutation, len(e.store.Queued))
	copy(out, e.store.Queued)
	return out
}

// SyncedAt returns the current high-water mark.
func (e *Engine) SyncedAt() time.Time { return e.store.SyncedAt }

// Last returns the most recently emitted event.
func (e *Engine) Last() LastEvent { return e.store.Last }

// IsListening reports whether the Engine is currently bridging a remote
// EventSource into mutateStore.
func (e *Engine) IsListening() bool { return e.listening }

func (e *Engine) emit(source int, action, eventName string, rec record.Record) {
	e.store.Last = LastEvent{Source: source, Action: action, EventName: eventName, Record: rec}
	records := e.Records()
	e.bus.Emit("events", records, e.store.Last)
	if e.cfg.Subscriber != nil {
		e.cfg.Subscriber(records, e.store.Last)
	}
}

func indexByID(records []record.Record, id any) int {
	for i, r := range records {
		if rid, ok := r.ID(); ok && rid == id {
			return i
		}
	}
	return -1
}

// Snapshot replaces the record set wholesale. SyncedAt advances to the
// maximum updatedAt observed in records, falling back to the epoch if
// none carry one.
func (e *Engine) Snapshot(records []record.Record) {
	cloned := make([]record.Record, len(records))
	copy(cloned, records)

	synced := dob
	for _, r := range cloned {
		if ts, ok := r.UpdatedAt(); ok && ts.After(synced) {
			synced = ts
		}
	}

	e.store.Records = cloned
	e.store.SyncedAt = synced
	e.sortRecords()
	e.emit(SourceRemote, ActionSnapshot, "", nil)
}

func (e *Engine) sortRecords() {
	if e.cfg.Sort == nil {
		return
	}
	less := e.cfg.Sort
	sort.SliceStable(e.store.Records, func(i, j int) bool {
		return less(e.store.Records[i], e.store.Records[j])
	})
}

// MutateStore is the central apply routine: it locates any existing
// record by server id, then branches on eventName and the publication
// filter. source distinguishes local optimistic mutation (SourceLocal)
// from a remote-origin event (SourceRemote).
func (e *Engine) MutateStore(eventName string, rec record.Record, source int) record.Record {
	id, hasID := rec.ID()

	var beforeRecord record.Record
	var wasPresent bool
	if hasID {
		if idx := indexByID(e.store.Records, id); idx >= 0 {
			beforeRecord = e.store.Records[idx]
			wasPresent = true
			e.store.Records = append(e.store.Records[:idx:idx], e.store.Records[idx+1:]...)
		}
	}

	if eventName == "removed" {
		passesPublication := e.inPublication(rec)
		if wasPresent || (source == SourceRemote && passesPublication) {
			e.emit(source, ActionRemove, eventName, rec)
		}
		return beforeRecord
	}

	if !e.inPublication(rec) {
		if wasPresent {
			e.emit(source, ActionLeftPub, eventName, rec)
		}
		return nil
	}

	applied := rec.Clone()
	applied.SetUpdatedAt(e.cfg.Clock())
	e.store.Records = append(e.store.Records, applied)
	e.sortRecords()
	e.emit(source, ActionMutated, eventName, applied)
	return applied
}

func (e *Engine) inPublication(rec record.Record) bool {
	if e.cfg.Publication == nil {
		return true
	}
	return e.cfg.Publication(rec)
}

// AddQueuedEvent appends a mutation to the pending queue without
// coalescing, and persists the queue if a persister is configured.
func (e *Engine) AddQueuedEvent(eventName string, rec record.Record, args ...any) {
	e.store.Queued = append(e.store.Queued, QueuedMutation{
		EventName: eventName,
		Record:    rec.Clone(),
		Args:      args,
	})
	e.persist()
}

// AddQueuedNetEvent appends a mutation with net-change coalescing: a
// later mutation for the same uuid overwrites an existing non-remove
// queue entry in place; a create following a queued remove is inserted
// after it; any other follow-up to a queued remove is a BadRequest since
// a removed record cannot be updated or patched.
func (e *Engine) AddQueuedNetEvent(eventName string, rec record.Record, args ...any) error {
	uuid, _ := rec.UUID()

	for i := len(e.store.Queued) - 1; i >= 0; i-- {
		entry := e.store.Queued[i]
		entryUUID, ok := entry.uuid()
		if !ok || entryUUID != uuid {
			continue
		}
		if entry.EventName != "remove" {
			e.store.Queued[i] = QueuedMutation{EventName: eventName, Record: rec.Clone(), Args: args}
			e.persist()
			return nil
		}
		if eventName != "create" {
			return edgeerr.BadRequest(fmt.Sprintf("queue coalescing: remove followed by %q for uuid %s", eventName, uuid))
		}
		inserted := make([]QueuedMutation, 0, len(e.store.Queued)+1)
		inserted = append(inserted, e.store.Queued[:i+1]...)
		inserted = append(inserted, QueuedMutation{EventName: eventName, Record: rec.Clone(), Args: args})
		inserted = append(inserted, e.store.Queued[i+1:]...)
		e.store.Queued = inserted
		e.persist()
		return nil
	}

	e.AddQueuedEvent(eventName, rec, args...)
	return nil
}

// RemoveQueuedEvent scans the queue from the newest end backward and
// removes the most recent match for (uuid, eventName), advancing SyncedAt
// to updatedAt when it is non-zero. Invoked after a successful remote
// confirmation.
func (e *Engine) RemoveQueuedEvent(eventName string, rec record.Record, updatedAt time.Time) {
	uuid, _ := rec.UUID()
	for i := len(e.store.Queued) - 1; i >= 0; i-- {
		entry := e.store.Queued[i]
		entryUUID, ok := entry.uuid()
		if !ok || entryUUID != uuid || entry.EventName != eventName {
			continue
		}
		e.store.Queued = append(e.store.Queued[:i:i], e.store.Queued[i+1:]...)
		e.persist()
		break
	}
	if !updatedAt.IsZero() && updatedAt.After(e.store.SyncedAt) {
		e.store.SyncedAt = updatedAt
	}
}

// ProcessQueuedEvents drains the queue head-first, invoking svc for each
// entry. On the first failure the failing entry is left at the head and
// draining stops; the returned error is that failure (callers such as
// Replicator.Connect log it rather than treating it as fatal).
func (e *Engine) ProcessQueuedEvents(ctx context.Context, svc remote.Service) error {
	for len(e.store.Queued) > 0 {
		entry := e.store.Queued[0]
		resp, err := invokeQueued(ctx, svc, entry)
		if err != nil {
			return err
		}
		e.store.Queued = e.store.Queued[1:]
		e.persist()
		if ts, ok := resp.UpdatedAt(); ok && ts.After(e.store.SyncedAt) {
			e.store.SyncedAt = ts
		}
	}
	return nil
}

func invokeQueued(ctx context.Context, svc remote.Service, entry QueuedMutation) (record.Record, error) {
	switch entry.EventName {
	case "create":
		data, _ := entry.Args[0].(record.Record)
		return svc.Create(ctx, data)
	case "update":
		id := entry.Args[0]
		data, _ := entry.Args[1].(record.Record)
		return svc.Update(ctx, id, data)
	case "patch":
		id := entry.Args[0]
		data, _ := entry.Args[1].(record.Record)
		return svc.Patch(ctx, id, data)
	case "remove":
		id := entry.Args[0]
		return svc.Remove(ctx, id)
	default:
		return nil, fmt.Errorf("engine: unknown queued event %q", entry.EventName)
	}
}

// AddListeners bridges a remote EventSource's four change topics into
// MutateStore, transitioning the listening state machine idle→listening.
func (e *Engine) AddListeners(src remote.EventSource) {
	if e.listening {
		return
	}
	bridge := func(eventName string) func(record.Record) {
		return func(rec record.Record) {
			e.MutateStore(eventName, rec, SourceRemote)
		}
	}
	e.offs = []func(){
		src.On(remote.EventCreated, bridge("created")),
		src.On(remote.EventUpdated, bridge("updated")),
		src.On(remote.EventPatched, bridge("patched")),
		src.On(remote.EventRemoved, bridge("removed")),
	}
	e.listening = true
	e.emit(SourceRemote, ActionAddListeners, "", nil)
}

// RemoveListeners detaches the remote EventSource, transitioning
// listening→idle.
func (e *Engine) RemoveListeners() {
	if !e.listening {
		return
	}
	for _, off := range e.offs {
		off()
	}
	e.offs = nil
	e.listening = false
	e.emit(SourceRemote, ActionRemoveListeners, "", nil)
}

// ChangeSort installs a new sort function and re-sorts in place.
func (e *Engine) ChangeSort(fn query.LessFunc) {
	e.cfg.Sort = fn
	e.sortRecords()
	e.emit(SourceRemote, ActionChangeSort, "", nil)
}

// UseUUID reports whether the Engine was configured with uuid-based
// optimistic replication, required by Mutator's configuration contract.
func (e *Engine) UseUUID() bool { return e.cfg.UseUUID }

// UseUpdatedAt reports whether the Engine was configured for updatedAt
// tracking, required by Mutator's configuration contract. Whether a
// snapshot query carries an updatedAt clause is set separately by
// replicator.Config.UseUpdatedAt.
func (e *Engine) UseUpdatedAt() bool { return e.cfg.UseUpdatedAt }
