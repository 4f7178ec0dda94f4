package awssecurity

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"time"

	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
)

const (
	rootResource = "RootAccount"

	// rootCredentialRow is the user column value of the root account row in
	// the IAM credential report.
	rootCredentialRow = "<root_account>"

	defaultRootUsageWindowDays = 90

	credentialReportAttempts = 5
	credentialReportInterval = 2 * time.Second
)

var (
	cis11 = check{models.ServiceIAM, "CIS-1.1"}
	cis12 = check{models.ServiceIAM, "CIS-1.2"}
	cis14 = check{models.ServiceIAM, "CIS-1.4"}
)

// checkRootUsage implements CIS-1.1: the root account must not have signed in
// or used an access key within the usage window (default 90 days).
func (s *Suite) checkRootUsage(ctx context.Context, client iamAPIClient) models.Finding {
	window := int(policy.GetThreshold(cis11.id, "window_days", defaultRootUsageWindowDays, s.policy))

	content, err := s.credentialReport(ctx, client)
	if err != nil {
		return cis11.errored(rootResource, err, "Ensure permission for iam:GenerateCredentialReport and iam:GetCredentialReport.")
	}

	lastUsed, err := rootLastUsed(content)
	if err != nil {
		return cis11.errored(rootResource, err, "Verify the IAM credential report can be generated for this account.")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -window)
	if !lastUsed.IsZero() && lastUsed.After(cutoff) {
		return cis11.fail(rootResource,
			fmt.Sprintf("Root account was used on %s (within %d days)", lastUsed.Format(time.RFC3339), window),
			"Avoid using the root account. Create IAM users or roles with least-privilege permissions for daily tasks.")
	}
	return cis11.pass(rootResource, fmt.Sprintf("Root account not used in the last %d days", window))
}

// credentialReport asks IAM to generate the credential report, polling until
// it is complete, and returns its CSV content.
func (s *Suite) credentialReport(ctx context.Context, client iamAPIClient) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		out, err := client.GenerateCredentialReport(ctx, &iamsvc.GenerateCredentialReportInput{})
		if err != nil {
			return nil, fmt.Errorf("generate credential report: %w", err)
		}
		if out.State == iamtypes.ReportStateTypeComplete {
			break
		}
		if attempt >= credentialReportAttempts {
			return nil, errors.New("credential report not ready")
		}
		if err := s.sleep(ctx, credentialReportInterval); err != nil {
			return nil, err
		}
	}

	rep, err := client.GetCredentialReport(ctx, &iamsvc.GetCredentialReportInput{})
	if err != nil {
		return nil, fmt.Errorf("get credential report: %w", err)
	}
	return rep.Content, nil
}

// rootLastUsed returns the most recent password or access key use of the root
// account recorded in the credential report. The zero time means no recorded
// use.
func rootLastUsed(content []byte) (time.Time, error) {
	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	if err != nil {
		return time.Time{}, fmt.Errorf("parse credential report: %w", err)
	}
	if len(records) < 2 {
		return time.Time{}, errors.New("credential report is empty")
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	userCol, ok := col["user"]
	if !ok {
		return time.Time{}, errors.New("credential report has no user column")
	}

	for _, row := range records[1:] {
		if userCol >= len(row) || row[userCol] != rootCredentialRow {
			continue
		}
		var last time.Time
		for _, field := range []string{"password_last_used", "access_key_1_last_used_date", "access_key_2_last_used_date"} {
			i, ok := col[field]
			if !ok || i >= len(row) {
				continue
			}
			// Values such as N/A and no_information are not timestamps.
			t, err := time.Parse(time.RFC3339, row[i])
			if err == nil && t.After(last) {
				last = t
			}
		}
		return last, nil
	}
	return time.Time{}, errors.New("credential report has no root account row")
}

// checkRootSummary implements CIS-1.2 (root MFA enabled) and CIS-1.4 (no root
// access keys) from a single account summary call.
func checkRootSummary(ctx context.Context, client iamAPIClient) []models.Finding {
	out, err := client.GetAccountSummary(ctx, &iamsvc.GetAccountSummaryInput{})
	if err != nil {
		const remediation = "Ensure permission to access IAM get_account_summary."
		return []models.Finding{
			cis12.errored(rootResource, err, remediation),
			cis14.errored(rootResource, err, remediation),
		}
	}

	var findings []models.Finding

	if out.SummaryMap["AccountMFAEnabled"] > 0 {
		findings = append(findings, cis12.pass(rootResource, "MFA enabled for root account"))
	} else {
		findings = append(findings, cis12.fail(rootResource, "MFA not enabled for root account",
			"Enable MFA for the root account in the AWS console under IAM > Dashboard > Activate MFA on your root account."))
	}

	if n := out.SummaryMap["AccountAccessKeysPresent"]; n > 0 {
		findings = append(findings, cis14.fail(rootResource, fmt.Sprintf("Root account has %d active access key(s)", n),
			"Sign in as root, open Security credentials and delete every root access key."))
	} else {
		findings = append(findings, cis14.pass(rootResource, "No root account access keys present"))
	}

	return findings
}
