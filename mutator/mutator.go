// Package mutator is the CRUD surface a caller actually talks to:
// Find/Get/Create/Update/Patch/Remove over a Replicator's Engine. Every
// write applies optimistically to the local store before the remote call
// is attempted, so callers see their own writes immediately regardless of
// remote latency.
package mutator

import (
	"context"
	"fmt"
	"time"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/engine"
	"github.com/edgesync/edgesync/internal/resilience"
	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/replicator"
	"github.com/edgesync/edgesync/timeout"
)

// Config configures a Mutator at construction time.
type Config struct {
	// Replicator binds this Mutator to an Engine and a remote Service.
	// Its Engine must be configured with UseUUID and UseUpdatedAt, since
	// every write depends on uuid identity and updatedAt high-water marks.
	Replicator *replicator.Replicator

	// Timeout bounds every remote call issued by a write operation. Zero
	// falls back to defaultTimeout rather than firing immediately.
	Timeout time.Duration

	// Matcher evaluates Find's query object against candidate records.
	Matcher query.Matcher

	// Paginate is stored with the Mutator but not read by Find: Find
	// paginates only as params.Paginate asks.
	Paginate query.PaginateConfig

	// RateLimiter, if set, throttles the background remote call each
	// write dispatches: a call the limiter refuses is not sent, and its
	// mutation stays queued for replay on the next Connect. Queue replay
	// during Connect is not throttled. Nil disables throttling.
	RateLimiter *resilience.RateLimiter
}

// defaultTimeout bounds a remote write when Config.Timeout is unset.
const defaultTimeout = 2 * time.Second

// Mutator is the CRUD surface over a Replicator's Engine.
type Mutator struct {
	cfg Config
}

// New validates cfg and constructs a Mutator. It fails if the bound
// Engine was not configured for uuid-based optimistic replication.
func New(cfg Config) (*Mutator, error) {
	if cfg.Replicator == nil {
		return nil, edgeerr.BadRequest("mutator: Replicator is required")
	}
	eng := cfg.Replicator.Engine()
	if !eng.UseUUID() || !eng.UseUpdatedAt() {
		return nil, edgeerr.BadRequest("mutator: Engine must be configured with UseUUID and UseUpdatedAt")
	}
	if cfg.Matcher == nil {
		cfg.Matcher = query.DefaultMatcher{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Mutator{cfg: cfg}, nil
}

// Find filters the local record set against params.Query and applies
// sort/skip/limit/pagination. It never touches the remote service.
func (m *Mutator) Find(params query.Params) ([]record.Record, *query.Page) {
	records := m.cfg.Replicator.Engine().Records()
	return query.Find(records, m.cfg.Matcher, params)
}

// Get returns the single record matching uuid, or NotFound.
func (m *Mutator) Get(uuid string, params query.Params) (record.Record, error) {
	if rec, ok := m.findByUUID(uuid); ok {
		return rec, nil
	}
	return nil, edgeerr.NotFound("record", uuid)
}

func (m *Mutator) findByUUID(uuid string) (record.Record, bool) {
	for _, rec := range m.cfg.Replicator.Engine().Records() {
		if u, ok := rec.UUID(); ok && u == uuid {
			return rec, true
		}
	}
	return nil, false
}

// Create applies data optimistically and returns the local result
// immediately; the remote create is dispatched in the background within
// the configured timeout. data may be a single record.Record or a
// []record.Record, in which case every element is created independently
// and the results are returned in the same order. A record missing a
// uuid has one minted; a record already carrying a uuid that collides
// with an existing local record is a BadRequest.
func (m *Mutator) Create(ctx context.Context, data any, params query.Params) (any, error) {
	if batch, ok := data.([]record.Record); ok {
		out := make([]record.Record, len(batch))
		for i, item := range batch {
			applied, err := m.createOne(ctx, item)
			if err != nil {
				return nil, err
			}
			out[i] = applied
		}
		return out, nil
	}
	rec, ok := data.(record.Record)
	if !ok {
		return nil, edgeerr.BadRequest("mutator: Create requires a record.Record or []record.Record")
	}
	return m.createOne(ctx, rec)
}

func (m *Mutator) createOne(ctx context.Context, data record.Record) (record.Record, error) {
	if !m.cfg.Replicator.Connected() {
		return nil, edgeerr.BadRequest("Replicator not connected")
	}

	data = data.Clone()
	if uuid, ok := data.UUID(); !ok || uuid == "" {
		data.SetUUID(m.cfg.Replicator.GetUUID(false))
	} else if _, exists := m.findByUUID(uuid); exists {
		return nil, edgeerr.BadRequest("mutator: Create requires a unique uuid")
	}

	eng := m.cfg.Replicator.Engine()
	applied := eng.MutateStore("created", data, engine.SourceLocal)
	eng.AddQueuedEvent("create", applied, applied)

	go m.remoteCreate(context.WithoutCancel(ctx), applied)
	return applied, nil
}

func (m *Mutator) remoteCreate(ctx context.Context, applied record.Record) {
	if m.cfg.RateLimiter != nil && !m.cfg.RateLimiter.Allow() {
		return
	}
	eng := m.cfg.Replicator.Engine()
	resp, err := timeout.Call(ctx, m.cfg.Timeout, []any{applied}, func(ctx context.Context) (record.Record, error) {
		return m.cfg.Replicator.Service().Create(ctx, applied)
	})
	if err != nil {
		return
	}
	updatedAt, _ := resp.UpdatedAt()
	eng.RemoveQueuedEvent("create", applied, updatedAt)
}

// Update replaces the record identified by id with data, which must carry
// the target's uuid, applies it locally, and returns immediately while
// the remote write is dispatched in the background. Returns NotFound if
// no local record matches. Repeated offline updates to the same uuid
// coalesce into a single queued mutation rather than replaying every
// intermediate write on reconnect.
func (m *Mutator) Update(ctx context.Context, id any, data record.Record) (record.Record, error) {
	if !m.cfg.Replicator.Connected() {
		return nil, edgeerr.BadRequest("Replicator not connected")
	}
	uuid, ok := data.UUID()
	if !ok || uuid == "" {
		return nil, edgeerr.BadRequest("mutator: Update requires data.uuid")
	}
	existing, ok := m.findByID(id)
	if !ok {
		return nil, edgeerr.NotFound("record", fmt.Sprint(id))
	}

	data = data.Clone()
	data.SetID(id)
	data.SetUUID(uuid)

	eng := m.cfg.Replicator.Engine()
	applied := eng.MutateStore("updated", data, engine.SourceLocal)
	if err := eng.AddQueuedNetEvent("update", applied, id, applied); err != nil {
		return nil, err
	}

	go m.remoteUpdate(context.WithoutCancel(ctx), id, applied, existing)
	return applied, nil
}

func (m *Mutator) remoteUpdate(ctx context.Context, id any, applied, _ record.Record) {
	if m.cfg.RateLimiter != nil && !m.cfg.RateLimiter.Allow() {
		return
	}
	eng := m.cfg.Replicator.Engine()
	resp, err := timeout.Call(ctx, m.cfg.Timeout, []any{id, applied}, func(ctx context.Context) (record.Record, error) {
		return m.cfg.Replicator.Service().Update(ctx, id, applied)
	})
	if err != nil {
		return
	}
	updatedAt, _ := resp.UpdatedAt()
	eng.RemoveQueuedEvent("update", applied, updatedAt)
}

// Patch merges data over the record(s) identified by id, applies the
// merge locally, and returns immediately while each remote patch is
// dispatched in the background. A nil id fans out across every record
// matched by params, patching each independently and returning the
// slice of applied records; a non-nil id patches a single record and
// returns it, or NotFound if absent. Repeated offline patches to the
// same uuid coalesce into a single queued mutation.
func (m *Mutator) Patch(ctx context.Context, id any, data record.Record, params query.Params) (any, error) {
	if id == nil {
		matches, _ := m.Find(params)
		out := make([]record.Record, 0, len(matches))
		for _, rec := range matches {
			rid, ok := rec.ID()
			if !ok {
				continue
			}
			applied, err := m.patchOne(ctx, rid, data)
			if err != nil {
				return nil, err
			}
			out = append(out, applied)
		}
		return out, nil
	}
	return m.patchOne(ctx, id, data)
}

func (m *Mutator) patchOne(ctx context.Context, id any, data record.Record) (record.Record, error) {
	if !m.cfg.Replicator.Connected() {
		return nil, edgeerr.BadRequest("Replicator not connected")
	}
	existing, ok := m.findByID(id)
	if !ok {
		return nil, edgeerr.NotFound("record", fmt.Sprint(id))
	}

	merged := existing.Clone()
	for k, v := range data {
		merged[k] = v
	}
	merged.SetID(id)

	eng := m.cfg.Replicator.Engine()
	applied := eng.MutateStore("patched", merged, engine.SourceLocal)
	if err := eng.AddQueuedNetEvent("patch", applied, id, data); err != nil {
		return nil, err
	}

	go m.remotePatch(context.WithoutCancel(ctx), id, data, applied)
	return applied, nil
}

func (m *Mutator) remotePatch(ctx context.Context, id any, data, applied record.Record) {
	if m.cfg.RateLimiter != nil && !m.cfg.RateLimiter.Allow() {
		return
	}
	eng := m.cfg.Replicator.Engine()
	resp, err := timeout.Call(ctx, m.cfg.Timeout, []any{id, data}, func(ctx context.Context) (record.Record, error) {
		return m.cfg.Replicator.Service().Patch(ctx, id, data)
	})
	if err != nil {
		return
	}
	updatedAt, _ := resp.UpdatedAt()
	eng.RemoveQueuedEvent("patch", applied, updatedAt)
}

// Remove deletes the record(s) identified by id locally and returns
// immediately while each remote removal is dispatched in the background.
// A nil id fans out across every record matched by params; a non-nil id
// removes a single record, or NotFound if absent. A queued update or
// patch for the same uuid is dropped in favor of the remove; a queued
// remove can still be followed by a create for the same uuid.
func (m *Mutator) Remove(ctx context.Context, id any, params query.Params) (any, error) {
	if id == nil {
		matches, _ := m.Find(params)
		out := make([]record.Record, 0, len(matches))
		for _, rec := range matches {
			rid, ok := rec.ID()
			if !ok {
				continue
			}
			removed, err := m.removeOne(ctx, rid)
			if err != nil {
				return nil, err
			}
			out = append(out, removed)
		}
		return out, nil
	}
	return m.removeOne(ctx, id)
}

func (m *Mutator) removeOne(ctx context.Context, id any) (record.Record, error) {
	if !m.cfg.Replicator.Connected() {
		return nil, edgeerr.BadRequest("Replicator not connected")
	}
	existing, ok := m.findByID(id)
	if !ok {
		return nil, edgeerr.NotFound("record", fmt.Sprint(id))
	}

	eng := m.cfg.Replicator.Engine()
	eng.MutateStore("removed", record.Record{"id": id}, engine.SourceLocal)
	if err := eng.AddQueuedNetEvent("remove", existing, id); err != nil {
		return nil, err
	}

	go m.remoteRemove(context.WithoutCancel(ctx), id, existing)
	return existing, nil
}

func (m *Mutator) remoteRemove(ctx context.Context, id any, existing record.Record) {
	if m.cfg.RateLimiter != nil && !m.cfg.RateLimiter.Allow() {
		return
	}
	eng := m.cfg.Replicator.Engine()
	resp, err := timeout.Call(ctx, m.cfg.Timeout, []any{id}, func(ctx context.Context) (record.Record, error) {
		return m.cfg.Replicator.Service().Remove(ctx, id)
	})
	if err != nil {
		return
	}
	var updatedAt time.Time
	if resp != nil {
		updatedAt, _ = resp.UpdatedAt()
	}
	eng.RemoveQueuedEvent("remove", existing, updatedAt)
}

func (m *Mutator) findByID(id any) (record.Record, bool) {
	for _, rec := range m.cfg.Replicator.Engine().Records() {
		if rid, ok := rec.ID(); ok && rid == id {
			return rec, true
		}
	}
	return nil, false
}
