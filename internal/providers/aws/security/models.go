// Package awssecurity implements the CIS AWS Foundations check providers.
// Each provider inspects one service through narrow SDK client interfaces
// and reports one finding per check and resource.
//
// A failing API call inside a check becomes an ERROR finding for that
// check's scope; only failures that prevent every check of a provider from
// running are returned as errors.
package awssecurity

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// check builds findings for one check ID of one service.
type check struct {
	service models.ServiceID
	id      string
}

func (c check) pass(resource, evidence string) models.Finding {
	return models.Finding{CheckID: c.id, Status: models.StatusPass, Service: c.service, Resource: resource, Evidence: evidence}
}

func (c check) fail(resource, evidence, remediation string) models.Finding {
	return models.Finding{CheckID: c.id, Status: models.StatusFail, Service: c.service, Resource: resource, Evidence: evidence, Remediation: remediation}
}

func (c check) errored(resource string, err error, remediation string) models.Finding {
	return models.Finding{CheckID: c.id, Status: models.StatusError, Service: c.service, Resource: resource, Evidence: errorEvidence(err), Remediation: remediation}
}

// errorEvidence distinguishes authorization failures from other API errors.
func errorEvidence(err error) string {
	if common.IsAccessDenied(err) {
		return fmt.Sprintf("Access denied: %v", err)
	}
	return fmt.Sprintf("Error: %v", err)
}

// regional formats a resource name with its region.
func regional(name, region string) string {
	return fmt.Sprintf("%s (%s)", name, region)
}
