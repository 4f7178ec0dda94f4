package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
)

// BuildReport assembles the persisted report from a finished run. Policy
// filtering is applied per service group; groups left empty are dropped from
// Findings but the service stays listed in Services.
func BuildReport(run *AuditRun, message string, cfg *policy.PolicyConfig) *models.AuditReport {
	findings := make(map[models.ServiceID][]models.Finding, len(run.Findings))
	for service, group := range run.Findings {
		kept := policy.ApplyPolicy(group, string(service), cfg)
		if len(kept) > 0 {
			findings[service] = kept
		}
	}

	services := append([]models.ServiceID(nil), run.Enabled...)
	sort.Slice(services, func(i, j int) bool { return services[i] < services[j] })

	return &models.AuditReport{
		ScanID:      uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		AccountID:   run.AccountID,
		Region:      run.Region,
		Message:     message,
		Services:    services,
		Summary:     Summarize(findings),
		Findings:    findings,
	}
}

// Summarize counts findings by status, overall and per service.
func Summarize(grouped map[models.ServiceID][]models.Finding) models.AuditSummary {
	summary := models.AuditSummary{PerService: make(map[models.ServiceID]models.ServiceSummary, len(grouped))}
	for service, group := range grouped {
		var s models.ServiceSummary
		for _, f := range group {
			s.Total++
			switch f.Status {
			case models.StatusPass:
				s.Passed++
			case models.StatusFail:
				s.Failed++
			case models.StatusError:
				s.Errors++
			}
		}
		summary.PerService[service] = s
		summary.Total += s.Total
		summary.Passed += s.Passed
		summary.Failed += s.Failed
		summary.Errors += s.Errors
	}
	return summary
}
