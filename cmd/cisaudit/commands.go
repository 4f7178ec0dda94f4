package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/output"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
	awssecurity "github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/security"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/report"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/scans"
)

// exitEnforcement is the exit status when a policy enforcement rule trips.
const exitEnforcement = 2

type auditFlags struct {
	accessKey    string
	secretKey    string
	sessionToken string
	region       string
	profile      string
	output       string
	outFile      string
	pdfFile      string
	policyPath   string
	failedOnly   bool
}

func newAuditCmd(a *app) *cobra.Command {
	var f auditFlags

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run the CIS benchmark checks against an AWS account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAudit(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.accessKey, "access-key", "", "AWS access key ID")
	cmd.Flags().StringVar(&f.secretKey, "secret-key", "", "AWS secret access key (prompted when omitted with --access-key)")
	cmd.Flags().StringVar(&f.sessionToken, "session-token", "", "AWS session token for temporary credentials")
	cmd.Flags().StringVar(&f.region, "region", "", "Home region (default: config, then shared config, then us-east-1)")
	cmd.Flags().StringVar(&f.profile, "profile", "", "Shared-config profile used when no access key is given")
	cmd.Flags().StringVar(&f.output, "output", "table", "Output format: json or table")
	cmd.Flags().StringVar(&f.outFile, "out-file", "", "Also write the JSON report to this path")
	cmd.Flags().StringVar(&f.pdfFile, "pdf", "", "Also write a PDF report to this path")
	cmd.Flags().StringVar(&f.policyPath, "policy", "", "Policy file (default: config policy)")
	cmd.Flags().BoolVar(&f.failedOnly, "failed-only", false, "Table output lists only FAIL and ERROR findings")

	return cmd
}

func (a *app) runAudit(cmd *cobra.Command, f auditFlags) error {
	if f.output != "json" && f.output != "table" {
		return fmt.Errorf("invalid --output %q: must be json or table", f.output)
	}

	creds, err := a.credentials(f)
	if err != nil {
		return err
	}

	policyPath := f.policyPath
	if policyPath == "" {
		policyPath = a.cfg.Policy
	}
	pol, err := loadPolicy(policyPath)
	if err != nil {
		return err
	}

	eng, err := a.newEngine(a.cfg, pol)
	if err != nil {
		return err
	}
	runner := &scans.Runner{Validator: a.newValidator(), Engine: eng, Policy: pol}

	ctx, stop := signal.NotifyContext(a.withLogger(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, creds)
	var authErr *common.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("credential validation failed: %w", authErr)
	}
	if err != nil {
		return err
	}
	rep := res.Report

	if f.outFile != "" {
		if err := writeFile(f.outFile, func(w io.Writer) error { return output.WriteJSON(w, rep) }); err != nil {
			return err
		}
	}
	if f.pdfFile != "" {
		if err := writeFile(f.pdfFile, func(w io.Writer) error { return report.WritePDF(w, rep) }); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	switch f.output {
	case "json":
		if err := output.WriteJSON(out, rep); err != nil {
			return err
		}
	default:
		output.RenderReport(out, rep, output.TableOptions{
			Colored:    isTerminal(out),
			FailedOnly: f.failedOnly,
		})
	}

	if policy.ShouldFailAny(rep.Findings, pol) {
		return &exitError{code: exitEnforcement, msg: "policy enforcement failed: findings reached the fail_on threshold"}
	}
	return nil
}

// credentials merges flags with configuration. Flags win; a missing secret
// for a given access key is read from the terminal.
func (a *app) credentials(f auditFlags) (common.Credentials, error) {
	creds := common.Credentials{
		AccessKeyID:     f.accessKey,
		SecretAccessKey: f.secretKey,
		SessionToken:    f.sessionToken,
		Region:          firstNonEmpty(f.region, a.cfg.Region),
		Profile:         firstNonEmpty(f.profile, a.cfg.Profile),
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey == "" {
		secret, err := a.readSecret()
		if err != nil {
			return creds, err
		}
		creds.SecretAccessKey = secret
	}
	return creds, nil
}

// promptSecret reads the secret access key from the terminal without echo.
func promptSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--secret-key is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "AWS secret access key: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret access key: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func isTerminalFd(fd int) bool { return term.IsTerminal(fd) }

// writeFile renders into memory and writes path in one step, so a render
// error never leaves a truncated file behind.
func writeFile(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report file %q: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// policyError reports every validation problem of a policy file.
type policyError struct {
	path string
	errs []error
}

func (e *policyError) Error() string {
	msgs := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		msgs = append(msgs, "  "+err.Error())
	}
	return fmt.Sprintf("invalid policy %s:\n%s", e.path, strings.Join(msgs, "\n"))
}

func knownServices() []string { return awssecurity.ServiceIDs() }

func knownChecks() []string {
	return append(awssecurity.CheckIDs(), models.OrchestrationErrorCheckID)
}
