package engine

import (
	"context"
	"sync"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// DefaultAuditWorkers bounds concurrent provider dispatches.
const DefaultAuditWorkers = 5

// Coordinator fans enabled services out to the dispatcher.
type Coordinator struct {
	dispatcher *Dispatcher
	workers    int
}

// NewCoordinator returns a Coordinator. workers <= 0 selects
// DefaultAuditWorkers.
func NewCoordinator(dispatcher *Dispatcher, workers int) *Coordinator {
	if workers <= 0 {
		workers = DefaultAuditWorkers
	}
	return &Coordinator{dispatcher: dispatcher, workers: workers}
}

// RunAll dispatches every service once and waits for all dispatches. Services
// without a provider are omitted from the result. When ctx is cancelled no
// new dispatch is started and the batches collected so far are returned.
func (c *Coordinator) RunAll(ctx context.Context, services []models.ServiceID, session *common.Session) map[models.ServiceID][]models.Finding {
	var mu sync.Mutex
	batches := make(map[models.ServiceID][]models.Finding, len(services))

	forEachBounded(ctx, c.workers, len(services), func(ctx context.Context, i int) {
		id := services[i]
		findings, dispatched := c.dispatcher.Dispatch(ctx, id, session)
		if !dispatched {
			return
		}
		mu.Lock()
		batches[id] = findings
		mu.Unlock()
	})

	return batches
}
