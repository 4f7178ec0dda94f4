package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// DefaultDiscoveryWorkers bounds concurrent existence probes.
const DefaultDiscoveryWorkers = 10

// Discoverer selects the services to audit: every mandatory service plus
// each conditional service whose probe reports it in use.
type Discoverer struct {
	catalog      *Catalog
	workers      int
	probeTimeout time.Duration
}

// NewDiscoverer returns a Discoverer over catalog. workers <= 0 selects
// DefaultDiscoveryWorkers; probeTimeout 0 disables the per-probe deadline.
func NewDiscoverer(catalog *Catalog, workers int, probeTimeout time.Duration) *Discoverer {
	if workers <= 0 {
		workers = DefaultDiscoveryWorkers
	}
	return &Discoverer{catalog: catalog, workers: workers, probeTimeout: probeTimeout}
}

// Discover returns the sorted, de-duplicated set of enabled services. It never
// fails: access denials drop the service silently and other probe errors are
// logged at warn level before the service is dropped.
func (d *Discoverer) Discover(ctx context.Context, session *common.Session) []models.ServiceID {
	log := zerolog.Ctx(ctx)
	conditional := d.catalog.Conditional()

	// Each probe writes only its own slot, so no lock is needed.
	present := make([]bool, len(conditional))
	forEachBounded(ctx, d.workers, len(conditional), func(ctx context.Context, i int) {
		desc := conditional[i]
		ok, err := d.probe(ctx, desc, session)
		if err != nil {
			if err.AccessDenied {
				log.Debug().Str("service", string(desc.ID)).Msg("probe access denied; service excluded")
			} else {
				log.Warn().Err(err.Err).Str("service", string(desc.ID)).Msg("probe failed; service excluded")
			}
			return
		}
		present[i] = ok
	})

	seen := make(map[models.ServiceID]struct{})
	var enabled []models.ServiceID
	add := func(id models.ServiceID) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			enabled = append(enabled, id)
		}
	}
	for _, id := range d.catalog.Mandatory() {
		add(id)
	}
	for i, ok := range present {
		if ok {
			add(conditional[i].ID)
		}
	}

	sort.Slice(enabled, func(i, j int) bool { return enabled[i] < enabled[j] })
	return enabled
}

// probe runs one existence probe under the optional timeout, converting
// errors and panics into a ProbeError.
func (d *Discoverer) probe(ctx context.Context, desc ServiceDescriptor, session *common.Session) (ok bool, perr *ProbeError) {
	if d.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.probeTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			ok, perr = false, &ProbeError{Service: desc.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	exists, err := desc.Probe.Exists(ctx, session)
	if err != nil {
		return false, &ProbeError{Service: desc.ID, AccessDenied: common.IsAccessDenied(err), Err: err}
	}
	return exists, nil
}
