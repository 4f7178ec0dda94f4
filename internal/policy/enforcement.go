package policy

import (
	"strings"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// statusRank orders finding statuses for enforcement. A threshold of ERROR
// triggers on ERROR and FAIL; a threshold of FAIL triggers on FAIL only.
var statusRank = map[models.Status]int{
	models.StatusPass:  0,
	models.StatusError: 1,
	models.StatusFail:  2,
}

// ShouldFail reports whether any finding in findings reaches the fail_on
// threshold configured for service, falling back to the AllServices entry.
//
// It returns false when:
//   - cfg is nil (no policy loaded)
//   - no enforcement block applies to service
//   - fail_on is empty or an unrecognised value
//   - findings is empty
func ShouldFail(service string, findings []models.Finding, cfg *PolicyConfig) bool {
	if cfg == nil {
		return false
	}
	enfCfg, ok := cfg.Enforcement[service]
	if !ok {
		enfCfg, ok = cfg.Enforcement[AllServices]
	}
	if !ok || enfCfg.FailOn == "" {
		return false
	}
	threshold, ok := statusRank[models.Status(strings.ToUpper(enfCfg.FailOn))]
	if !ok || threshold == 0 {
		return false
	}
	for _, f := range findings {
		if r, ok := statusRank[f.Status]; ok && r >= threshold {
			return true
		}
	}
	return false
}

// ShouldFailAny applies ShouldFail to every service group of a report.
func ShouldFailAny(grouped map[models.ServiceID][]models.Finding, cfg *PolicyConfig) bool {
	for service, findings := range grouped {
		if ShouldFail(string(service), findings, cfg) {
			return true
		}
	}
	return false
}
