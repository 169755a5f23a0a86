// Package replicator binds an Engine to one remote service instance and
// owns the connect/reconnect flow: constructing the snapshot query,
// paginating until the remote is exhausted, filtering and sorting the
// result, handing it to the Engine, replaying the queue, and attaching
// listeners for ongoing remote notifications.
package replicator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/engine"
	"github.com/edgesync/edgesync/internal/resilience"
	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote"
)

// Config configures a Replicator at construction time.
type Config struct {
	// Engine is the local store this Replicator drives. Required.
	Engine *engine.Engine

	// Service is the remote record-oriented collection to synchronize
	// against. Required.
	Service remote.Service

	// EventSource delivers created/updated/patched/removed notifications
	// for attach during Connect. Required.
	EventSource remote.EventSource

	// BaseQuery is merged into every snapshot query issued by Connect.
	BaseQuery map[string]any

	// Publication selects which remote records belong to this client's
	// view; applied to the snapshot result before it reaches the Engine.
	Publication query.Predicate

	// Sort orders the snapshot result before it reaches the Engine.
	Sort query.LessFunc

	// UseUpdatedAt, when true, adds an updatedAt >= syncedAt clause to the
	// snapshot query so reconnects fetch only what changed since the last
	// sync instead of the full collection.
	UseUpdatedAt bool

	// PageSize bounds how many records are requested per Find call while
	// paginating through the snapshot. 0 disables client-side paging —
	// a single Find call is expected to return the full result.
	PageSize int

	// CircuitBreaker, if set, gates the snapshot fetch: repeated failures
	// open the circuit and Connect fails fast instead of hammering a down
	// remote. Nil disables the guard.
	CircuitBreaker *resilience.CircuitBreaker

	Logger *slog.Logger
}

// Replicator drives one remote service instance for an Engine.
type Replicator struct {
	cfg       Config
	log       *slog.Logger
	connected bool
}

// New constructs a Replicator. It does not connect.
func New(cfg Config) *Replicator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{cfg: cfg, log: logger}
}

// Connected reports whether listeners are currently attached.
func (r *Replicator) Connected() bool { return r.connected }

// Engine returns the local store this Replicator drives.
func (r *Replicator) Engine() *engine.Engine { return r.cfg.Engine }

// Service returns the bound remote service.
func (r *Replicator) Service() remote.Service { return r.cfg.Service }

// Connect detaches any existing listeners, fetches a full snapshot of the
// remote view (paginated internally until exhausted), filters and sorts
// it, hands it to the Engine, replays the queued mutation backlog, and
// re-attaches listeners. Snapshot failure propagates to the caller and
// leaves the Engine in its previous state with listeners detached.
func (r *Replicator) Connect(ctx context.Context, extraQuery map[string]any) error {
	r.cfg.Engine.RemoveListeners()
	r.connected = false

	if r.cfg.CircuitBreaker != nil && !r.cfg.CircuitBreaker.Allow() {
		return edgeerr.Remote(fmt.Errorf("circuit open: remote service considered unavailable"))
	}

	records, err := r.fetchSnapshot(ctx, extraQuery)
	if err != nil {
		if r.cfg.CircuitBreaker != nil {
			r.cfg.CircuitBreaker.RecordFailure()
		}
		return err
	}
	if r.cfg.CircuitBreaker != nil {
		r.cfg.CircuitBreaker.RecordSuccess()
	}

	filtered := records
	if r.cfg.Publication != nil {
		filtered = make([]record.Record, 0, len(records))
		for _, rec := range records {
			if r.cfg.Publication(rec) {
				filtered = append(filtered, rec)
			}
		}
	}

	if r.cfg.Sort != nil {
		filtered = sortedCopy(filtered, r.cfg.Sort)
	}

	r.cfg.Engine.Snapshot(filtered)

	if err := r.cfg.Engine.ProcessQueuedEvents(ctx, r.cfg.Service); err != nil {
		r.log.Warn("queue replay failed during connect", "error", err)
	}

	r.cfg.Engine.AddListeners(r.cfg.EventSource)
	r.connected = true
	return nil
}

// Disconnect detaches listeners. The local store is retained and queued
// mutations remain pending for the next Connect.
func (r *Replicator) Disconnect() {
	r.cfg.Engine.RemoveListeners()
	r.connected = false
}

func (r *Replicator) fetchSnapshot(ctx context.Context, extraQuery map[string]any) ([]record.Record, error) {
	match := map[string]any{}
	for k, v := range r.cfg.BaseQuery {
		match[k] = v
	}
	for k, v := range extraQuery {
		match[k] = v
	}
	if r.cfg.UseUpdatedAt {
		match["updatedAt"] = map[string]any{"$gte": r.cfg.Engine.SyncedAt()}
	}

	var all []record.Record
	skip := 0
	for {
		q := remote.Query{Match: match, Skip: skip, Limit: r.cfg.PageSize}
		result, err := r.cfg.Service.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Data...)

		if r.cfg.PageSize <= 0 {
			break
		}
		skip += len(result.Data)
		if len(result.Data) < r.cfg.PageSize || skip >= result.Total {
			break
		}
	}
	return all, nil
}

func sortedCopy(records []record.Record, less query.LessFunc) []record.Record {
	out := make([]record.Record, len(records))
	copy(out, records)
	stableSort(out, less)
	return out
}

// GetUUID mints a new client identifier. short selects a compact
// (up to 15 character) form; otherwise the canonical 36-character form is
// returned. Uniqueness is the minter's responsibility — collisions are
// treated as application bugs, never detected here.
func (r *Replicator) GetUUID(short bool) string {
	if short {
		return shortUUID()
	}
	return uuid.NewString()
}
