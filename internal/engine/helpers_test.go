package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// ── test doubles ──────────────────────────────────────────────────────────────

// staticProbe returns a fixed answer.
func staticProbe(exists bool, err error) ExistenceProbe {
	return ProbeFunc(func(context.Context, *common.Session) (bool, error) {
		return exists, err
	})
}

// staticProvider returns the given findings (or error).
func staticProvider(findings []models.Finding, err error) CheckProvider {
	return ProviderFunc(func(context.Context, *common.Session) ([]models.Finding, error) {
		return findings, err
	})
}

// concurrencyGauge tracks the maximum number of simultaneous calls.
type concurrencyGauge struct {
	current atomic.Int32
	max     atomic.Int32
}

func (g *concurrencyGauge) enter() {
	n := g.current.Add(1)
	for {
		m := g.max.Load()
		if n <= m || g.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (g *concurrencyGauge) leave() { g.current.Add(-1) }

// slowProvider sleeps for d while registered with gauge.
func slowProvider(g *concurrencyGauge, d time.Duration, service models.ServiceID) CheckProvider {
	return ProviderFunc(func(ctx context.Context, _ *common.Session) ([]models.Finding, error) {
		g.enter()
		defer g.leave()
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
		return []models.Finding{pass("X", service)}, nil
	})
}

// recordingProvider counts invocations.
type recordingProvider struct {
	mu    sync.Mutex
	calls int
	out   []models.Finding
}

func (r *recordingProvider) Run(context.Context, *common.Session) ([]models.Finding, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.out, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func testSession() *common.Session {
	return &common.Session{AccountID: "111122223333", Region: "us-east-1"}
}

func pass(checkID string, service models.ServiceID) models.Finding {
	return models.Finding{CheckID: checkID, Status: models.StatusPass, Service: service, Resource: string(service)}
}

func fail(checkID string, service models.ServiceID) models.Finding {
	return models.Finding{CheckID: checkID, Status: models.StatusFail, Service: service, Resource: string(service)}
}

func mustCatalog(t *testing.T, entries ...ServiceDescriptor) *Catalog {
	t.Helper()
	c, err := NewCatalog(entries...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}
