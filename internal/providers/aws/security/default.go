package awssecurity

import (
	"github.com/pankaj-dahiya-devops/cis-audit/internal/engine"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// Catalog returns the service catalog backed by this suite. iam, logging and
// monitoring are mandatory; s3, ec2, rds and efs are audited only when their
// existence probe finds resources.
func (s *Suite) Catalog() (*engine.Catalog, error) {
	return engine.NewCatalog(
		engine.ServiceDescriptor{ID: models.ServiceIAM, Mandatory: true, Provider: engine.ProviderFunc(s.runIAM)},
		engine.ServiceDescriptor{ID: models.ServiceLogging, Mandatory: true, Provider: engine.ProviderFunc(s.runLogging)},
		engine.ServiceDescriptor{ID: models.ServiceMonitoring, Mandatory: true, Provider: engine.ProviderFunc(s.runMonitoring)},
		engine.ServiceDescriptor{ID: models.ServiceS3, Probe: engine.ProbeFunc(s.probeS3), Provider: engine.ProviderFunc(s.runS3)},
		engine.ServiceDescriptor{ID: models.ServiceEC2, Probe: engine.ProbeFunc(s.probeEC2), Provider: engine.ProviderFunc(s.runEC2)},
		engine.ServiceDescriptor{ID: models.ServiceRDS, Probe: engine.ProbeFunc(s.probeRDS), Provider: engine.ProviderFunc(s.runRDS)},
		engine.ServiceDescriptor{ID: models.ServiceEFS, Probe: engine.ProbeFunc(s.probeEFS), Provider: engine.ProviderFunc(s.runEFS)},
	)
}

// CheckIDs returns every check ID the suite can emit, in benchmark order.
// Policy validation uses it to reject unknown check IDs.
func CheckIDs() []string {
	all := []check{
		cis11, cis12, cis14, cis18, cis110,
		cis211, cis212, cis213, cis213ec2, cis27,
		cis221, cis222, cis223, cis231,
		cis31, cis32, cis33, cis34, cis35, cis36, cis37, cis38, cis39,
	}
	for _, r := range metricRules {
		all = append(all, r.check)
	}
	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.id)
	}
	return ids
}

// ServiceIDs returns the service IDs the catalog registers.
func ServiceIDs() []string {
	return []string{
		string(models.ServiceIAM), string(models.ServiceLogging), string(models.ServiceMonitoring),
		string(models.ServiceS3), string(models.ServiceEC2), string(models.ServiceRDS), string(models.ServiceEFS),
	}
}
