package awssecurity

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

type failingRegions struct{}

func (failingRegions) ActiveRegions(context.Context, *common.Session) ([]string, error) {
	return nil, errors.New("describe regions: access denied")
}

// ── RDS ──────────────────────────────────────────────────────────────────────

// TestRDS_PerInstanceAndRegion verifies that each instance in each region
// yields one finding per check with a "<id> (<region>)" resource.
func TestRDS_PerInstanceAndRegion(t *testing.T) {
	east := &fakeRDS{instances: []rdstypes.DBInstance{{
		DBInstanceIdentifier:    aws.String("orders"),
		StorageEncrypted:        aws.Bool(true),
		AutoMinorVersionUpgrade: aws.Bool(true),
		PubliclyAccessible:      aws.Bool(false),
	}}}
	west := &fakeRDS{instances: []rdstypes.DBInstance{{
		DBInstanceIdentifier:    aws.String("legacy"),
		StorageEncrypted:        aws.Bool(false),
		AutoMinorVersionUpgrade: aws.Bool(false),
		PubliclyAccessible:      aws.Bool(true),
	}}}
	f := regionFactory(map[string]*secClients{"us-east-1": {RDS: east}, "eu-west-1": {RDS: west}}, nil)

	s := testSuite(f, Options{Regions: staticRegions{"us-east-1", "eu-west-1"}})
	findings, err := s.runRDS(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 6 {
		t.Fatalf("expected 6 findings, got %d", len(findings))
	}
	for _, got := range findings {
		switch got.Resource {
		case "orders (us-east-1)":
			assertStatus(t, got, models.StatusPass)
		case "legacy (eu-west-1)":
			assertStatus(t, got, models.StatusFail)
		default:
			t.Errorf("unexpected resource %q", got.Resource)
		}
	}
}

// TestRDS_RegionErrorYieldsErrorPerCheck verifies that a region whose listing
// fails yields one ERROR per RDS check and other regions still run.
func TestRDS_RegionErrorYieldsErrorPerCheck(t *testing.T) {
	f := regionFactory(map[string]*secClients{
		"us-east-1": {RDS: &fakeRDS{err: apiErr("AccessDenied")}},
		"eu-west-1": {RDS: &fakeRDS{}},
	}, nil)

	s := testSuite(f, Options{Regions: staticRegions{"us-east-1", "eu-west-1"}})
	findings, err := s.runRDS(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []string{"CIS-2.2.1", "CIS-2.2.2", "CIS-2.2.3"} {
		got := only(t, findings, id)
		assertStatus(t, got, models.StatusError)
		if got.Resource != "RDS (us-east-1)" {
			t.Errorf("%s resource: got %q", id, got.Resource)
		}
	}
}

// TestRDS_RegionResolutionFailureIsProviderError verifies that failing to
// resolve regions aborts the provider.
func TestRDS_RegionResolutionFailureIsProviderError(t *testing.T) {
	s := testSuite(singleFactory(&secClients{RDS: &fakeRDS{}}), Options{Regions: failingRegions{}})
	if _, err := s.runRDS(context.Background(), testSession()); err == nil {
		t.Fatal("expected error")
	}
}

// ── EFS ──────────────────────────────────────────────────────────────────────

func TestEFS_Encryption(t *testing.T) {
	f := &fakeEFS{filesystems: []efstypes.FileSystemDescription{
		{FileSystemId: aws.String("fs-enc"), Encrypted: aws.Bool(true)},
		{FileSystemId: aws.String("fs-plain"), Encrypted: aws.Bool(false)},
	}}
	s := testSuite(singleFactory(&secClients{EFS: f}), Options{})

	findings, err := s.runEFS(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}
	for _, got := range findings {
		if got.Service != models.ServiceEFS || got.CheckID != "CIS-2.3.1" {
			t.Errorf("unexpected finding %+v", got)
		}
		switch got.Resource {
		case "fs-enc (us-east-1)":
			assertStatus(t, got, models.StatusPass)
		case "fs-plain (us-east-1)":
			assertStatus(t, got, models.StatusFail)
		default:
			t.Errorf("unexpected resource %q", got.Resource)
		}
	}
}

func TestEFS_RegionError(t *testing.T) {
	s := testSuite(singleFactory(&secClients{EFS: &fakeEFS{err: apiErr("AccessDeniedException")}}), Options{})
	findings, err := s.runEFS(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := only(t, findings, "CIS-2.3.1")
	assertStatus(t, got, models.StatusError)
	if got.Resource != "EFS (us-east-1)" {
		t.Errorf("resource: got %q", got.Resource)
	}
}

// TestRegionsFor_EmptyResolverFallsBackToHome verifies that an empty region
// list falls back to the session's home region.
func TestRegionsFor_EmptyResolverFallsBackToHome(t *testing.T) {
	s := testSuite(singleFactory(&secClients{}), Options{Regions: staticRegions{}})
	got, err := s.regionsFor(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "us-east-1" {
		t.Errorf("got %v, want [us-east-1]", got)
	}
}
