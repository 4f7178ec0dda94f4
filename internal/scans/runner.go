package scans

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/engine"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// Store is the persistence the runner needs. FileStore implements it.
type Store interface {
	Save(r *models.AuditReport) (Saved, error)
}

// Runner executes one complete audit: credential validation, the engine
// pipeline, report assembly and, when a store is set, persistence.
type Runner struct {
	Validator common.CredentialValidator
	Engine    engine.Engine
	Policy    *policy.PolicyConfig

	// Store is optional. Nil skips persistence.
	Store Store
}

// Result is a finished audit and the files it was saved to.
type Result struct {
	Report *models.AuditReport
	Saved  *Saved
}

// Run audits the account behind creds. A credential failure is returned
// as the validator's *common.AuthError and nothing else runs. A save
// failure is returned together with the report.
func (r *Runner) Run(ctx context.Context, creds common.Credentials) (*Result, error) {
	log := zerolog.Ctx(ctx)

	session, err := r.Validator.Validate(ctx, creds)
	if err != nil {
		return nil, err
	}
	log.Info().Str("account_id", session.AccountID).Str("region", session.Region).Msg(session.Message)

	run := r.Engine.Run(ctx, session)
	res := &Result{Report: engine.BuildReport(run, session.Message, r.Policy)}

	if r.Store == nil {
		return res, nil
	}
	saved, err := r.Store.Save(res.Report)
	if err != nil {
		return res, fmt.Errorf("save scan %s: %w", res.Report.ScanID, err)
	}
	res.Saved = &saved
	log.Info().Str("json", saved.JSON).Str("pdf", saved.PDF).Msg("scan saved")
	return res, nil
}
