package awssecurity

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func runEC2With(t *testing.T, f *fakeEC2) []models.Finding {
	t.Helper()
	findings, err := testSuite(singleFactory(&secClients{EC2: f}), Options{}).runEC2(context.Background(), testSession())
	if err != nil {
		t.Fatalf("runEC2: unexpected error: %v", err)
	}
	return findings
}

// ── CIS-2.13 ─────────────────────────────────────────────────────────────────

func TestUserDataSecrets(t *testing.T) {
	f := &fakeEC2{
		instances: []ec2types.Instance{instance("i-clean"), instance("i-leaky"), instance("i-empty"), instance("i-garbled")},
		userData: map[string]string{
			"i-clean":   b64("#!/bin/bash\nyum install -y nginx\n"),
			"i-leaky":   b64("export DB_PASSWORD=hunter2\n"),
			"i-garbled": "%%%not-base64",
		},
	}

	findings := byCheck(runEC2With(t, f), "CIS-2.13")
	want := map[string]models.Status{
		"i-clean":   models.StatusPass,
		"i-leaky":   models.StatusFail,
		"i-empty":   models.StatusPass,
		"i-garbled": models.StatusError,
	}
	if len(findings) != len(want) {
		t.Fatalf("expected %d findings, got %d", len(want), len(findings))
	}
	for _, got := range findings {
		assertStatus(t, got, want[got.Resource])
		if got.Service != models.ServiceEC2 {
			t.Errorf("%s: service got %q, want ec2", got.Resource, got.Service)
		}
	}
}

func TestUserDataSecrets_NoInstances(t *testing.T) {
	got := only(t, runEC2With(t, &fakeEC2{}), "CIS-2.13")
	assertStatus(t, got, models.StatusPass)
	if got.Resource != "No EC2 Instances" {
		t.Errorf("resource: got %q", got.Resource)
	}
}

func TestMatchSensitiveKeywords(t *testing.T) {
	got := matchSensitiveKeywords("AWS_SECRET_ACCESS_KEY=abc")
	for _, kw := range []string{"secret", "key", "aws_secret_access_key"} {
		found := false
		for _, g := range got {
			found = found || g == kw
		}
		if !found {
			t.Errorf("expected keyword %q in %v", kw, got)
		}
	}
	if m := matchSensitiveKeywords("echo hello"); len(m) != 0 {
		t.Errorf("expected no matches, got %v", m)
	}
}

// ── CIS-2.7 ──────────────────────────────────────────────────────────────────

// TestDefaultSecurityGroupUsage verifies one FAIL per offending VPC with at
// most five instance IDs in the evidence.
func TestDefaultSecurityGroupUsage(t *testing.T) {
	f := &fakeEC2{
		vpcs:      []ec2types.Vpc{vpc("vpc-a"), vpc("vpc-b")},
		defaultSG: map[string]string{"vpc-a": "sg-a", "vpc-b": "sg-b"},
	}
	for i := range 7 {
		f.instances = append(f.instances, instance(fmt.Sprintf("i-%d", i), "sg-a"))
	}
	f.instances = append(f.instances, instance("i-custom", "sg-custom"))

	got := only(t, runEC2With(t, f), "CIS-2.7")
	assertStatus(t, got, models.StatusFail)
	if got.Resource != "vpc-a:sg-a" {
		t.Errorf("resource: got %q, want vpc-a:sg-a", got.Resource)
	}
	if !strings.HasPrefix(got.Evidence, "7 instances") || !strings.HasSuffix(got.Evidence, "...") {
		t.Errorf("evidence: got %q", got.Evidence)
	}
	if strings.Contains(got.Evidence, "i-5") {
		t.Errorf("evidence lists more than five instances: %q", got.Evidence)
	}
}

func TestDefaultSecurityGroupUsage_Clean(t *testing.T) {
	f := &fakeEC2{
		vpcs:      []ec2types.Vpc{vpc("vpc-a")},
		defaultSG: map[string]string{"vpc-a": "sg-a"},
		instances: []ec2types.Instance{instance("i-1", "sg-custom")},
	}
	got := only(t, runEC2With(t, f), "CIS-2.7")
	assertStatus(t, got, models.StatusPass)
	if got.Resource != "ALL_VPCS" {
		t.Errorf("resource: got %q, want ALL_VPCS", got.Resource)
	}
}

func TestDefaultSecurityGroupUsage_DescribeVpcsError(t *testing.T) {
	f := &fakeEC2{vpcsErr: apiErr("UnauthorizedOperation")}
	assertStatus(t, only(t, runEC2With(t, f), "CIS-2.7"), models.StatusError)
}
