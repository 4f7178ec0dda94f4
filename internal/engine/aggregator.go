package engine

import (
	"sort"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// Organize regroups raw batches by each finding's own Service field. Batch
// keys are visited in sorted order so the output is deterministic; every
// finding appears exactly once and empty groups are omitted. batches is not
// modified.
func Organize(batches map[models.ServiceID][]models.Finding) map[models.ServiceID][]models.Finding {
	keys := make([]models.ServiceID, 0, len(batches))
	for k := range batches {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	grouped := make(map[models.ServiceID][]models.Finding)
	for _, k := range keys {
		for _, f := range batches[k] {
			grouped[f.Service] = append(grouped[f.Service], f)
		}
	}
	return grouped
}
