package engine

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// ProbeError records a failed existence probe. Discovery downgrades it to
// "service absent".
type ProbeError struct {
	Service      models.ServiceID
	AccessDenied bool
	Err          error
}

func (e *ProbeError) Error() string {
	if e.AccessDenied {
		return fmt.Sprintf("probe %s: access denied: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("probe %s: %v", e.Service, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ProviderError records a check provider that failed or panicked. The
// dispatcher downgrades it to one ERROR finding.
type ProviderError struct {
	Service models.ServiceID
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Service, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
