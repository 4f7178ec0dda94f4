package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/config"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/engine"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeValidator struct {
	session *common.Session
	err     error
	got     common.Credentials
}

func (f *fakeValidator) Validate(_ context.Context, creds common.Credentials) (*common.Session, error) {
	f.got = creds
	return f.session, f.err
}

type fakeResolver struct {
	regions []string
	err     error
}

func (f *fakeResolver) ActiveRegions(context.Context, *common.Session) ([]string, error) {
	return f.regions, f.err
}

type fakeEngine struct {
	run *engine.AuditRun
}

func (f *fakeEngine) Run(context.Context, *common.Session) *engine.AuditRun { return f.run }

// ── helpers ──────────────────────────────────────────────────────────────────

func goodSession() *common.Session {
	return &common.Session{
		AccountID: "123456789012",
		CallerARN: "arn:aws:iam::123456789012:user/auditor",
		Region:    "us-east-1",
		Message:   "Valid credentials for account: 123456789012",
	}
}

func auditRun(findings ...models.Finding) *engine.AuditRun {
	grouped := map[models.ServiceID][]models.Finding{}
	enabled := []models.ServiceID{}
	for _, f := range findings {
		if _, ok := grouped[f.Service]; !ok {
			enabled = append(enabled, f.Service)
		}
		grouped[f.Service] = append(grouped[f.Service], f)
	}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &engine.AuditRun{
		AccountID:  "123456789012",
		Region:     "us-east-1",
		Enabled:    enabled,
		Batches:    grouped,
		Findings:   grouped,
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
	}
}

// testEnv isolates a command run from the user's home directory and
// environment overrides.
type testEnv struct {
	validator *fakeValidator
	resolver  *fakeResolver
	engine    *fakeEngine
	profiles  []string
	secret    string
	secretErr error
	prompted  bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &testEnv{
		validator: &fakeValidator{session: goodSession()},
		resolver:  &fakeResolver{regions: []string{"us-east-1", "eu-west-1"}},
		engine: &fakeEngine{run: auditRun(
			models.Finding{CheckID: "CIS-1.1", Status: models.StatusPass, Service: models.ServiceIAM, Resource: "Root account", Evidence: "No access keys"},
			models.Finding{CheckID: "CIS-1.2", Status: models.StatusFail, Service: models.ServiceIAM, Resource: "Root account", Evidence: "MFA disabled"},
		)},
	}
}

func (e *testEnv) deps() deps {
	return deps{
		newValidator: func() common.CredentialValidator { return e.validator },
		newResolver:  func([]string) common.RegionResolver { return e.resolver },
		newEngine: func(*config.Config, *policy.PolicyConfig) (engine.Engine, error) {
			return e.engine, nil
		},
		profiles: func() ([]string, error) { return e.profiles, nil },
		readSecret: func() (string, error) {
			e.prompted = true
			return e.secret, e.secretErr
		},
	}
}

// execute runs the root command with args and returns stdout and the error.
func (e *testEnv) execute(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmdWith(e.deps())
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if err != nil {
		return 1
	}
	return 0
}
