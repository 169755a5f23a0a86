// Package memory is an in-process fake remote.Service that the demo CLI
// (internal/cliapp) uses as its remote. It supports injected latency and failure so tests can exercise timeout
// and retry paths without a network.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/events"
	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote"
)

// Config seeds a Service at construction time.
type Config struct {
	// Records seeds the initial collection. Seeds are stored as given,
	// with no id minted for them; Create mints the next integer id for a
	// record created without one.
	Records []record.Record

	// Matcher evaluates Find's query object. Defaults to query.DefaultMatcher.
	Matcher query.Matcher

	// Latency, if set, is applied as an artificial delay before every call
	// returns, useful for exercising timeout.Call's deadline path.
	Latency time.Duration

	// Clock overrides the wall clock stamped onto updatedAt.
	Clock func() time.Time
}

// Service is a deterministic, mutex-guarded remote.Service and
// remote.EventSource backed by an in-memory slice.
type Service struct {
	mu      sync.Mutex
	records []record.Record
	nextID  int
	matcher query.Matcher
	latency time.Duration
	clock   func() time.Time
	bus     *events.Bus

	// failNext, when non-nil, is returned (and cleared) by the next call to
	// any method — a one-shot failure injection for retry/error-path tests.
	failNext error
}

// New constructs a Service seeded with cfg.Records.
func New(cfg Config) *Service {
	if cfg.Matcher == nil {
		cfg.Matcher = query.DefaultMatcher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	records := make([]record.Record, len(cfg.Records))
	maxID := 0
	for i, r := range cfg.Records {
		records[i] = r.Clone()
		if id, ok := r.ID(); ok {
			if n, ok := id.(int); ok && n > maxID {
				maxID = n
			}
		}
	}
	return &Service{
		records: records,
		nextID:  maxID + 1,
		matcher: cfg.Matcher,
		latency: cfg.Latency,
		clock:   cfg.Clock,
		bus:     events.New(),
	}
}

// FailNext arms a one-shot failure: the next call to any Service method
// returns err instead of performing its normal work.
func (s *Service) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Service) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Service) sleep(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) indexByID(id any) int {
	for i, r := range s.records {
		if rid, ok := r.ID(); ok && rid == id {
			return i
		}
	}
	return -1
}

// Find implements remote.Service.
func (s *Service) Find(ctx context.Context, q remote.Query) (remote.FindResult, error) {
	if err := s.sleep(ctx); err != nil {
		return remote.FindResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return remote.FindResult{}, err
	}

	matched := make([]record.Record, 0, len(s.records))
	for _, r := range s.records {
		if s.matcher.Match(r, q.Match) {
			matched = append(matched, r.Clone())
		}
	}
	total := len(matched)

	skip := q.Skip
	if skip < 0 {
		skip = 0
	}
	if skip > total {
		skip = total
	}
	end := total
	if q.Limit > 0 && skip+q.Limit < end {
		end = skip + q.Limit
	}
	return remote.FindResult{Total: total, Limit: q.Limit, Skip: skip, Data: matched[skip:end]}, nil
}

// Get implements remote.Service.
func (s *Service) Get(ctx context.Context, id any) (record.Record, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	if idx := s.indexByID(id); idx >= 0 {
		return s.records[idx].Clone(), nil
	}
	return nil, edgeerr.NotFound("record", fmt.Sprint(id))
}

// Create implements remote.Service.
func (s *Service) Create(ctx context.Context, data record.Record) (record.Record, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	applied := data.Clone()
	if _, ok := applied.ID(); !ok {
		applied.SetID(s.nextID)
		s.nextID++
	}
	applied.SetUpdatedAt(s.clock())
	s.records = append(s.records, applied)
	s.bus.Emit(remote.EventCreated, applied.Clone())
	return applied.Clone(), nil
}

// Update implements remote.Service.
func (s *Service) Update(ctx context.Context, id any, data record.Record) (record.Record, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	idx := s.indexByID(id)
	if idx < 0 {
		return nil, edgeerr.NotFound("record", fmt.Sprint(id))
	}
	applied := data.Clone()
	applied.SetID(id)
	applied.SetUpdatedAt(s.clock())
	s.records[idx] = applied
	s.bus.Emit(remote.EventUpdated, applied.Clone())
	return applied.Clone(), nil
}

// Patch implements remote.Service.
func (s *Service) Patch(ctx context.Context, id any, data record.Record) (record.Record, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	idx := s.indexByID(id)
	if idx < 0 {
		return nil, edgeerr.NotFound("record", fmt.Sprint(id))
	}
	merged := s.records[idx].Clone()
	for k, v := range data {
		merged[k] = v
	}
	merged.SetID(id)
	merged.SetUpdatedAt(s.clock())
	s.records[idx] = merged
	s.bus.Emit(remote.EventPatched, merged.Clone())
	return merged.Clone(), nil
}

// Remove implements remote.Service.
func (s *Service) Remove(ctx context.Context, id any) (record.Record, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	idx := s.indexByID(id)
	if idx < 0 {
		return nil, edgeerr.NotFound("record", fmt.Sprint(id))
	}
	removed := s.records[idx].Clone()
	s.records = append(s.records[:idx:idx], s.records[idx+1:]...)
	removed.SetUpdatedAt(s.clock())
	s.bus.Emit(remote.EventRemoved, removed.Clone())
	return removed, nil
}

// On implements remote.EventSource, delivering created/updated/patched/
// removed notifications emitted by this Service's own write methods —
// simulating a push channel a real backend would provide over a socket.
func (s *Service) On(event string, fn func(record.Record)) func() {
	return s.bus.On(event, func(args ...any) {
		if len(args) == 1 {
			if rec, ok := args[0].(record.Record); ok {
				fn(rec)
			}
		}
	})
}

// PushExternal emits event as if it originated from another client,
// bypassing this Service's own Create/Update/Patch/Remove — used to test
// a Replicator's listener bridge against concurrent remote writers.
func (s *Service) PushExternal(event string, rec record.Record) {
	s.bus.Emit(event, rec.Clone())
}
