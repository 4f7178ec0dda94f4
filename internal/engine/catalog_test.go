package engine

import (
	"reflect"
	"testing"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// ── NewCatalog validation ─────────────────────────────────────────────────────

func TestNewCatalog_RejectsEmptyID(t *testing.T) {
	if _, err := NewCatalog(ServiceDescriptor{Mandatory: true}); err == nil {
		t.Fatal("expected error for empty service ID")
	}
}

func TestNewCatalog_RejectsDuplicate(t *testing.T) {
	_, err := NewCatalog(
		ServiceDescriptor{ID: "iam", Mandatory: true},
		ServiceDescriptor{ID: "iam", Mandatory: true},
	)
	if err == nil {
		t.Fatal("expected error for duplicate service ID")
	}
}

func TestNewCatalog_RejectsConditionalWithoutProbe(t *testing.T) {
	if _, err := NewCatalog(ServiceDescriptor{ID: "s3"}); err == nil {
		t.Fatal("expected error for conditional entry without probe")
	}
}

// ── accessors ─────────────────────────────────────────────────────────────────

func TestCatalog_Accessors(t *testing.T) {
	iamProvider := staticProvider(nil, nil)
	c := mustCatalog(t,
		ServiceDescriptor{ID: "s3", Probe: staticProbe(true, nil)},
		ServiceDescriptor{ID: "iam", Mandatory: true, Provider: iamProvider},
		ServiceDescriptor{ID: "ec2", Probe: staticProbe(false, nil)},
	)

	if got, want := c.Mandatory(), []models.ServiceID{"iam"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Mandatory: got %v, want %v", got, want)
	}
	if got := c.Conditional(); len(got) != 2 || got[0].ID != "s3" || got[1].ID != "ec2" {
		t.Errorf("Conditional: got %v", got)
	}
	if got, want := c.IDs(), []models.ServiceID{"ec2", "iam", "s3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("IDs: got %v, want %v", got, want)
	}
	if _, ok := c.Provider("iam"); !ok {
		t.Error("expected provider for iam")
	}
	if _, ok := c.Provider("s3"); ok {
		t.Error("s3 has no provider")
	}
	if _, ok := c.Provider("rds"); ok {
		t.Error("rds is not in the catalog")
	}
}

func TestCatalog_Filter(t *testing.T) {
	c := mustCatalog(t,
		ServiceDescriptor{ID: "iam", Mandatory: true},
		ServiceDescriptor{ID: "s3", Probe: staticProbe(true, nil)},
	)

	filtered := c.Filter(func(id models.ServiceID) bool { return id != "s3" })

	if got := filtered.IDs(); !reflect.DeepEqual(got, []models.ServiceID{"iam"}) {
		t.Errorf("filtered IDs: got %v", got)
	}
	if got := c.IDs(); len(got) != 2 {
		t.Errorf("Filter must not modify the original catalog, got %v", got)
	}
	if _, ok := filtered.Lookup("s3"); ok {
		t.Error("s3 must not be found in the filtered catalog")
	}
}
