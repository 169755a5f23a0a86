// Package remote defines the remote-service contract consumed by the
// engine, replicator, and mutator — the external, record-oriented
// collection this client replicates against. The core never assumes a
// transport; remote/memory and remote/httpjson are reference
// implementations used by tests and the demo CLI.
package remote

import (
	"context"

	"github.com/edgesync/edgesync/record"
)

// FindResult is the possibly-paginated result of a Find call: when the
// service is configured for pagination, Total/Limit/Skip are populated;
// otherwise Data holds every match and Total equals len(Data).
type FindResult struct {
	Total int
	Limit int
	Skip  int
	Data  []record.Record
}

// Query carries the match/sort/pagination parameters passed to Find: a
// predicate object plus $sort/$skip/$limit.
type Query struct {
	Match map[string]any
	Sort  map[string]int
	Skip  int
	Limit int
}

// Service is the remote record-oriented collection the Replicator and
// Mutator drive. All methods are context-aware so callers can impose a
// time limit on a call.
type Service interface {
	Find(ctx context.Context, q Query) (FindResult, error)
	Get(ctx context.Context, id any) (record.Record, error)
	Create(ctx context.Context, data record.Record) (record.Record, error)
	Update(ctx context.Context, id any, data record.Record) (record.Record, error)
	Patch(ctx context.Context, id any, data record.Record) (record.Record, error)
	Remove(ctx context.Context, id any) (record.Record, error)
}

// Event names delivered by an EventSource.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventPatched = "patched"
	EventRemoved = "removed"
)

// EventSource is the subscription facility for delivery of
// created/updated/patched/removed notifications carrying the post-change
// record.
type EventSource interface {
	On(event string, fn func(record.Record)) (off func())
}
