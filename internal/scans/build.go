package scans

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/config"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/engine"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
	awssecurity "github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/security"
)

// NewAWSEngine wires the CIS check suite into an engine. Services the
// policy disables are removed from the catalog before any probe runs.
func NewAWSEngine(cfg *config.Config, pol *policy.PolicyConfig) (*engine.DefaultEngine, error) {
	suite := awssecurity.NewSuite(awssecurity.Options{
		Regions: common.NewRegionResolver(cfg.Regions),
		Policy:  pol,
	})
	catalog, err := suite.Catalog()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	catalog = catalog.Filter(func(id models.ServiceID) bool {
		return policy.ServiceEnabled(string(id), pol)
	})

	return engine.NewDefaultEngine(catalog, engine.Options{
		DiscoveryWorkers: cfg.Discovery.Workers,
		AuditWorkers:     cfg.Audit.Workers,
		ProbeTimeout:     cfg.Discovery.ProbeTimeout,
	}), nil
}

// NewAWSRunner returns a Runner backed by the real AWS SDK that saves every
// report under cfg.Output.Dir.
func NewAWSRunner(cfg *config.Config, pol *policy.PolicyConfig) (*Runner, error) {
	eng, err := NewAWSEngine(cfg, pol)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Validator: common.NewDefaultValidator(),
		Engine:    eng,
		Policy:    pol,
		Store:     NewFileStore(cfg.Output.Dir),
	}, nil
}
