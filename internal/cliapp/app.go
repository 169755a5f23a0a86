// Package cliapp wires the library's Engine/Replicator/Mutator stack
// against a demo in-memory remote service for the edgesync command-line
// tool. It is the CLI's composition root.
package cliapp

import (
	"context"
	"log/slog"

	"github.com/edgesync/edgesync/config"
	"github.com/edgesync/edgesync/engine"
	"github.com/edgesync/edgesync/filequeue"
	"github.com/edgesync/edgesync/internal/resilience"
	"github.com/edgesync/edgesync/mutator"
	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote/memory"
	"github.com/edgesync/edgesync/replicator"
)

// App bundles the constructed library stack plus the resolved config for
// command handlers to share.
type App struct {
	Config     *config.Config
	Engine     *engine.Engine
	Replicator *replicator.Replicator
	Mutator    *mutator.Mutator
	Remote     *memory.Service
	Logger     *slog.Logger
}

// seedRecords is the demo remote collection a fresh edgesync invocation
// starts from.
func seedRecords() []record.Record {
	return []record.Record{
		{"id": 1, "uuid": "seed-0000000001", "title": "Write the onboarding doc", "done": false},
		{"id": 2, "uuid": "seed-0000000002", "title": "Review the replication design", "done": true},
		{"id": 3, "uuid": "seed-0000000003", "title": "Ship the CLI demo", "done": false},
	}
}

// New builds an App: a demo remote service, an Engine (queue-persisted
// when cfg.CacheDir is set), a Replicator bound to both, and a Mutator over the Replicator. It
// connects the Replicator before returning.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	remoteSvc := memory.New(memory.Config{Records: seedRecords()})

	var persister engine.QueuePersister
	if cfg.CacheDir != "" {
		persister = filequeue.New(cfg.CacheDir)
	}

	var publication query.Predicate
	if len(cfg.PublicationMatch) > 0 {
		matcher := query.DefaultMatcher{}
		publication = func(r record.Record) bool { return matcher.Match(r, cfg.PublicationMatch) }
	}

	eng := engine.New(engine.Config{
		UseUUID:      true,
		UseUpdatedAt: true,
		Sort:         sortFromSpec(cfg.Sort),
		Publication:  publication,
		Persister:    persister,
		Logger:       logger,
	})

	repl := replicator.New(replicator.Config{
		Engine:         eng,
		Service:        remoteSvc,
		EventSource:    remoteSvc,
		Publication:    publication,
		Sort:           sortFromSpec(cfg.Sort),
		UseUpdatedAt:   false,
		PageSize:       cfg.PageSize,
		CircuitBreaker: resilience.NewCircuitBreaker(resilience.DefaultConfig().CircuitBreaker),
		Logger:         logger,
	})

	if err := repl.Connect(ctx, nil); err != nil {
		return nil, err
	}

	mut, err := mutator.New(mutator.Config{
		Replicator:  repl,
		Timeout:     cfg.Timeout,
		RateLimiter: resilience.NewRateLimiter(resilience.DefaultConfig().RateLimiter),
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Config:     cfg,
		Engine:     eng,
		Replicator: repl,
		Mutator:    mut,
		Remote:     remoteSvc,
		Logger:     logger,
	}, nil
}

func sortFromSpec(spec query.SortSpec) query.LessFunc {
	if len(spec) == 0 {
		return nil
	}
	return spec.Less()
}
