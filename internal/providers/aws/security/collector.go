package awssecurity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// Options configures a Suite.
type Options struct {
	// Regions resolves the regions regional providers iterate. Nil restricts
	// every provider to the session's home region.
	Regions common.RegionResolver

	// Policy supplies per-check parameters such as the minimum password
	// length. Nil selects the built-in defaults.
	Policy *policy.PolicyConfig
}

// Suite owns the shared dependencies of every check provider and probe.
// A Suite is safe for concurrent use: providers share only the read-only
// session and build their own clients per call.
type Suite struct {
	factory secClientFactory
	regions common.RegionResolver
	policy  *policy.PolicyConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSuite returns a Suite wired to production AWS SDK clients.
func NewSuite(opts Options) *Suite {
	return NewSuiteWithFactory(newDefaultSecClients, opts)
}

// NewSuiteWithFactory returns a Suite that uses the supplied factory,
// allowing tests to inject fake clients.
func NewSuiteWithFactory(f secClientFactory, opts Options) *Suite {
	return &Suite{
		factory: f,
		regions: opts.Regions,
		policy:  opts.Policy,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// regionsFor returns the regions regional providers iterate.
func (s *Suite) regionsFor(ctx context.Context, session *common.Session) ([]string, error) {
	if s.regions == nil {
		return []string{session.Region}, nil
	}
	regions, err := s.regions.ActiveRegions(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("resolve regions: %w", err)
	}
	if len(regions) == 0 {
		return []string{session.Region}, nil
	}
	return regions, nil
}

// regionalClients memoises one client set per region for the duration of a
// single provider run.
type regionalClients struct {
	mu      sync.Mutex
	factory secClientFactory
	session *common.Session
	byName  map[string]*secClients
}

func (s *Suite) newRegionalClients(session *common.Session) *regionalClients {
	return &regionalClients{factory: s.factory, session: session, byName: make(map[string]*secClients)}
}

// get returns the clients for region; an empty region selects the session's
// home region.
func (r *regionalClients) get(region string) *secClients {
	if region == "" {
		region = r.session.Region
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[region]
	if !ok {
		c = r.factory(r.session.ConfigForRegion(region))
		r.byName[region] = c
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
