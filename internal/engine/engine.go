package engine

import (
	"context"
	"time"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// ExistenceProbe answers whether a service is in use in the audited account.
// It must be cheap: one list call is the norm.
type ExistenceProbe interface {
	Exists(ctx context.Context, session *common.Session) (bool, error)
}

// ProbeFunc adapts a plain function to ExistenceProbe.
type ProbeFunc func(ctx context.Context, session *common.Session) (bool, error)

// Exists implements ExistenceProbe.
func (f ProbeFunc) Exists(ctx context.Context, session *common.Session) (bool, error) {
	return f(ctx, session)
}

// CheckProvider runs every compliance check of one service and returns its
// findings. Individual check failures are reported as ERROR findings; a
// returned error means the provider as a whole could not run.
type CheckProvider interface {
	Run(ctx context.Context, session *common.Session) ([]models.Finding, error)
}

// ProviderFunc adapts a plain function to CheckProvider.
type ProviderFunc func(ctx context.Context, session *common.Session) ([]models.Finding, error)

// Run implements CheckProvider.
func (f ProviderFunc) Run(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	return f(ctx, session)
}

// AuditRun is the complete result of one pipeline execution.
type AuditRun struct {
	AccountID string
	Region    string

	// Enabled is the sorted set of services discovery selected.
	Enabled []models.ServiceID

	// Batches holds the raw findings per dispatched service. Services without
	// a provider have no entry.
	Batches map[models.ServiceID][]models.Finding

	// Findings is Batches regrouped by each finding's own service field.
	Findings map[models.ServiceID][]models.Finding

	StartedAt  time.Time
	FinishedAt time.Time
}

// Engine is the central orchestration interface. Run never fails: every
// probe and provider failure is converted to data before it reaches the
// caller. Credential validation happens before Run and is the only fatal
// step of an audit.
type Engine interface {
	Run(ctx context.Context, session *common.Session) *AuditRun
}
