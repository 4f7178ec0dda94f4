package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// Dispatcher resolves a service's check provider and runs it, turning any
// provider failure into a single ERROR finding.
type Dispatcher struct {
	catalog *Catalog
}

// NewDispatcher returns a Dispatcher over catalog.
func NewDispatcher(catalog *Catalog) *Dispatcher {
	return &Dispatcher{catalog: catalog}
}

// Dispatch runs the provider registered for id. dispatched is false when the
// catalog has no provider for id; that is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, id models.ServiceID, session *common.Session) (findings []models.Finding, dispatched bool) {
	provider, ok := d.catalog.Provider(id)
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("service", string(id)).Msg("no check provider registered; skipping")
		return nil, false
	}

	findings, err := runProvider(ctx, id, provider, session)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("service", string(id)).Msg("check provider failed")
		return []models.Finding{orchestrationError(id, err.Err)}, true
	}
	return findings, true
}

// runProvider invokes provider, recovering a panic into a ProviderError.
func runProvider(ctx context.Context, id models.ServiceID, provider CheckProvider, session *common.Session) (findings []models.Finding, perr *ProviderError) {
	defer func() {
		if r := recover(); r != nil {
			findings, perr = nil, &ProviderError{Service: id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	findings, err := provider.Run(ctx, session)
	if err != nil {
		return nil, &ProviderError{Service: id, Err: err}
	}
	return findings, nil
}

// orchestrationError is the synthetic finding that stands in for every check
// of a provider that could not run.
func orchestrationError(id models.ServiceID, err error) models.Finding {
	return models.Finding{
		CheckID:  models.OrchestrationErrorCheckID,
		Status:   models.StatusError,
		Service:  id,
		Resource: string(id),
		Evidence: fmt.Sprintf("Failed to run audit: %v", err),
	}
}
