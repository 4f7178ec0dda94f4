package policy

import (
	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// ServiceEnabled reports whether service may be audited under cfg.
func ServiceEnabled(service string, cfg *PolicyConfig) bool {
	if cfg == nil {
		return true
	}
	if s, ok := cfg.Services[service]; ok {
		return s.Enabled
	}
	return true
}

// ApplyPolicy drops the findings of a disabled service and the findings of
// disabled check IDs. Synthetic orchestration errors are never dropped by a
// check toggle.
func ApplyPolicy(findings []models.Finding, service string, cfg *PolicyConfig) []models.Finding {
	if cfg == nil {
		return findings
	}

	// Service-level disable
	if !ServiceEnabled(service, cfg) {
		return []models.Finding{}
	}

	var result []models.Finding

	for _, f := range findings {
		checkCfg, hasCheck := cfg.Checks[f.CheckID]

		// Check-level disable
		if hasCheck && checkCfg.Enabled != nil && !*checkCfg.Enabled &&
			f.CheckID != models.OrchestrationErrorCheckID {
			continue
		}

		result = append(result, f)
	}

	return result
}
