package awssecurity

import (
	"context"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// runLogging is the logging check provider covering CIS-3.1 through CIS-3.9
// in every active region. Every API failure becomes an ERROR finding for the
// affected check; only region resolution failure aborts the provider.
func (s *Suite) runLogging(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	regions, err := s.regionsFor(ctx, session)
	if err != nil {
		return nil, err
	}
	clients := s.newRegionalClients(session)

	audit := &trailAudit{clients: clients, seen: make(map[string]bool)}
	audit.buckets, audit.bucketsErr = listBuckets(ctx, clients.get("").S3)

	var findings []models.Finding
	for _, region := range regions {
		c := clients.get(region)
		findings = append(findings, audit.auditTrails(ctx, region)...)
		findings = append(findings, checkConfigRecorder(ctx, c.Config, region))
		findings = append(findings, checkKeyRotation(ctx, c.KMS, region)...)
		findings = append(findings, checkFlowLogs(ctx, c.EC2, region)...)
	}
	return findings, nil
}
