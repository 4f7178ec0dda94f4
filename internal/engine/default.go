package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// Options configures the pipeline's worker pools.
type Options struct {
	// DiscoveryWorkers bounds concurrent existence probes. Zero means 10.
	DiscoveryWorkers int

	// AuditWorkers bounds concurrent provider dispatches. Zero means 5.
	AuditWorkers int

	// ProbeTimeout caps each existence probe. Zero disables the cap.
	ProbeTimeout time.Duration
}

// DefaultEngine is the production implementation of Engine. It runs
// discovery to completion before dispatching any provider.
type DefaultEngine struct {
	discoverer  *Discoverer
	coordinator *Coordinator
	now         func() time.Time
}

// NewDefaultEngine constructs a DefaultEngine over catalog.
func NewDefaultEngine(catalog *Catalog, opts Options) *DefaultEngine {
	return &DefaultEngine{
		discoverer:  NewDiscoverer(catalog, opts.DiscoveryWorkers, opts.ProbeTimeout),
		coordinator: NewCoordinator(NewDispatcher(catalog), opts.AuditWorkers),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run implements Engine.
func (e *DefaultEngine) Run(ctx context.Context, session *common.Session) *AuditRun {
	log := zerolog.Ctx(ctx)
	started := e.now()

	enabled := e.discoverer.Discover(ctx, session)
	log.Info().Int("services", len(enabled)).Interface("enabled", enabled).Msg("service discovery complete")

	batches := e.coordinator.RunAll(ctx, enabled, session)
	if ctx.Err() != nil {
		log.Warn().Err(ctx.Err()).Int("dispatched", len(batches)).Msg("audit cancelled; returning partial results")
	}

	run := &AuditRun{
		AccountID:  session.AccountID,
		Region:     session.Region,
		Enabled:    enabled,
		Batches:    batches,
		Findings:   Organize(batches),
		StartedAt:  started,
		FinishedAt: e.now(),
	}
	log.Info().Int("services", len(run.Findings)).Dur("elapsed", run.FinishedAt.Sub(started)).Msg("audit complete")
	return run
}
