package engine

import (
	"fmt"
	"sort"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// ServiceDescriptor is one catalog entry.
//
// Mandatory services are always audited and need no probe. Conditional
// services are audited only when Probe reports them in use. A nil Provider
// is allowed: the service can be discovered but is never dispatched.
type ServiceDescriptor struct {
	ID        models.ServiceID
	Mandatory bool
	Probe     ExistenceProbe
	Provider  CheckProvider
}

// Catalog is an immutable registry of auditable services. It is built once
// and handed to the engine; nothing in this package holds a global catalog.
type Catalog struct {
	entries []ServiceDescriptor
	byID    map[models.ServiceID]int
}

// NewCatalog validates entries and returns the catalog. It rejects empty and
// duplicate IDs and conditional entries without a probe.
func NewCatalog(entries ...ServiceDescriptor) (*Catalog, error) {
	c := &Catalog{byID: make(map[models.ServiceID]int, len(entries))}
	for _, d := range entries {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog entry with empty service ID")
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", d.ID)
		}
		if !d.Mandatory && d.Probe == nil {
			return nil, fmt.Errorf("conditional service %q has no existence probe", d.ID)
		}
		c.byID[d.ID] = len(c.entries)
		c.entries = append(c.entries, d)
	}
	return c, nil
}

// Lookup returns the descriptor for id.
func (c *Catalog) Lookup(id models.ServiceID) (ServiceDescriptor, bool) {
	i, ok := c.byID[id]
	if !ok {
		return ServiceDescriptor{}, false
	}
	return c.entries[i], true
}

// Provider returns the check provider registered for id, if any.
func (c *Catalog) Provider(id models.ServiceID) (CheckProvider, bool) {
	d, ok := c.Lookup(id)
	if !ok || d.Provider == nil {
		return nil, false
	}
	return d.Provider, true
}

// Mandatory returns the IDs of all mandatory services in catalog order.
func (c *Catalog) Mandatory() []models.ServiceID {
	var ids []models.ServiceID
	for _, d := range c.entries {
		if d.Mandatory {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// Conditional returns the descriptors that need an existence probe.
func (c *Catalog) Conditional() []ServiceDescriptor {
	var out []ServiceDescriptor
	for _, d := range c.entries {
		if !d.Mandatory {
			out = append(out, d)
		}
	}
	return out
}

// IDs returns every service ID in the catalog, sorted.
func (c *Catalog) IDs() []models.ServiceID {
	ids := make([]models.ServiceID, 0, len(c.entries))
	for _, d := range c.entries {
		ids = append(ids, d.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Filter returns a new catalog holding only the entries keep accepts.
func (c *Catalog) Filter(keep func(models.ServiceID) bool) *Catalog {
	out := &Catalog{byID: make(map[models.ServiceID]int, len(c.entries))}
	for _, d := range c.entries {
		if keep(d.ID) {
			out.byID[d.ID] = len(out.entries)
			out.entries = append(out.entries, d)
		}
	}
	return out
}
