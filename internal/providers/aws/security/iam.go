package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

const defaultMinPasswordLength = 14

var (
	cis18  = check{models.ServiceIAM, "CIS-1.8"}
	cis110 = check{models.ServiceIAM, "CIS-1.10"}
)

// runIAM is the iam check provider. IAM is global, so the session's home
// region is used.
func (s *Suite) runIAM(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	client := s.factory(session.Config).IAM

	var findings []models.Finding
	findings = append(findings, s.checkRootUsage(ctx, client))
	findings = append(findings, checkRootSummary(ctx, client)...)
	findings = append(findings, s.checkPasswordPolicy(ctx, client))
	findings = append(findings, checkConsoleUserMFA(ctx, client)...)
	return findings, nil
}

// checkPasswordPolicy implements CIS-1.8: the account password policy must
// require at least the configured minimum length (default 14).
func (s *Suite) checkPasswordPolicy(ctx context.Context, client iamAPIClient) models.Finding {
	const resource = "AccountPasswordPolicy"
	minLength := int32(policy.GetThreshold(cis18.id, "min_length", defaultMinPasswordLength, s.policy))
	remediation := fmt.Sprintf("aws iam update-account-password-policy --minimum-password-length %d", minLength)

	out, err := client.GetAccountPasswordPolicy(ctx, &iamsvc.GetAccountPasswordPolicyInput{})
	if err != nil {
		if common.ErrorCode(err) == "NoSuchEntity" {
			return cis18.fail(resource, "No account password policy configured", remediation)
		}
		return cis18.errored(resource, err, "Ensure permission for iam:GetAccountPasswordPolicy.")
	}

	var got int32
	if out.PasswordPolicy != nil {
		got = aws.ToInt32(out.PasswordPolicy.MinimumPasswordLength)
	}
	if got >= minLength {
		return cis18.pass(resource, fmt.Sprintf("Minimum password length is %d", got))
	}
	return cis18.fail(resource, fmt.Sprintf("Minimum password length is %d, required %d", got, minLength), remediation)
}

// checkConsoleUserMFA implements CIS-1.10: every IAM user with a console
// password must have an MFA device. Users without a login profile are API
// only and are not reported.
func checkConsoleUserMFA(ctx context.Context, client iamAPIClient) []models.Finding {
	var findings []models.Finding
	consoleUsers := 0

	paginator := iamsvc.NewListUsersPaginator(client, &iamsvc.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return append(findings, cis110.errored("IAMUsers", err, "Ensure permission for iam:ListUsers."))
		}
		for _, u := range page.Users {
			userName := aws.ToString(u.UserName)

			hasConsole, err := userHasLoginProfile(ctx, client, userName)
			if err != nil {
				findings = append(findings, cis110.errored(userName, err, "Ensure permission for iam:GetLoginProfile."))
				continue
			}
			if !hasConsole {
				continue
			}
			consoleUsers++

			mfa, err := client.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{UserName: aws.String(userName)})
			if err != nil {
				findings = append(findings, cis110.errored(userName, err, "Ensure permission for iam:ListMFADevices."))
				continue
			}
			if len(mfa.MFADevices) > 0 {
				findings = append(findings, cis110.pass(userName, "Console user has MFA enabled"))
			} else {
				findings = append(findings, cis110.fail(userName, "Console user has no MFA device",
					fmt.Sprintf("Assign an MFA device: aws iam enable-mfa-device --user-name %s --serial-number <arn> --authentication-code1 <code> --authentication-code2 <code>", userName)))
			}
		}
	}

	if consoleUsers == 0 && len(findings) == 0 {
		findings = append(findings, cis110.pass("IAMUsers", "No IAM users with console passwords"))
	}
	return findings
}

// userHasLoginProfile reports whether the user has a console password. Only
// NoSuchEntity means "no password"; any other failure is returned so the
// caller can record it instead of guessing.
func userHasLoginProfile(ctx context.Context, client iamAPIClient, userName string) (bool, error) {
	_, err := client.GetLoginProfile(ctx, &iamsvc.GetLoginProfileInput{
		UserName: aws.String(userName),
	})
	if err == nil {
		return true, nil
	}
	if common.ErrorCode(err) == "NoSuchEntity" {
		return false, nil
	}
	return false, err
}
