package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// DoctorResult is the structured output of cisaudit doctor. It can be
// serialised to JSON via --format=json or rendered as a human-readable table
// (default).
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		CallerARN   string `json:"caller_arn,omitempty"`
		Region      string `json:"region,omitempty"`
		RegionsOK   bool   `json:"regions_ok"`
		Regions     int    `json:"regions,omitempty"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Policy struct {
		Path    string   `json:"path,omitempty"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	OverallHealthy bool `json:"overall_healthy"`
}

// doctorEnv is what runDoctor inspects.
type doctorEnv struct {
	validator  common.CredentialValidator
	resolver   common.RegionResolver
	creds      common.Credentials
	policyPath string
}

func newDoctorCmd(a *app) *cobra.Command {
	var profile, region, policyPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			env := doctorEnv{
				validator: a.newValidator(),
				resolver:  a.newResolver(a.cfg.Regions),
				creds: common.Credentials{
					Profile: firstNonEmpty(profile, a.cfg.Profile),
					Region:  firstNonEmpty(region, a.cfg.Region),
				},
				policyPath: firstNonEmpty(policyPath, a.cfg.Policy),
			}

			result, err := runDoctor(a.withLogger(cmd.Context()), env, cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			if !result.OverallHealthy {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use (default: credential chain)")
	cmd.Flags().StringVar(&region, "region", "", "Home region to validate against")
	cmd.Flags().StringVar(&policyPath, "policy", "", "Policy file to validate (default: config policy)")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures. Callers must inspect
// result.OverallHealthy to determine whether the environment is healthy.
func runDoctor(ctx context.Context, env doctorEnv, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, env)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering; callers decide how to present the result.
func collectDoctorResult(ctx context.Context, env doctorEnv) DoctorResult {
	var result DoctorResult

	// AWS: credentials → STS identity → region discovery.
	result.AWS.Profile = env.creds.Profile
	session, err := env.validator.Validate(ctx, env.creds)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = session.AccountID
		result.AWS.CallerARN = session.CallerARN
		result.AWS.Region = session.Region
		regions, err := env.resolver.ActiveRegions(ctx, session)
		if err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
			result.AWS.Regions = len(regions)
		}
	}

	// Policy: stat → load → validate (file is optional).
	if env.policyPath != "" {
		result.Policy.Path = env.policyPath
		_, statErr := os.Stat(env.policyPath)
		switch {
		case statErr == nil:
			result.Policy.Present = true
			cfg, loadErr := policy.LoadPolicy(env.policyPath)
			if loadErr != nil {
				result.Policy.Errors = []string{loadErr.Error()}
				break
			}
			errs := policy.Validate(cfg, knownServices(), knownChecks())
			if len(errs) == 0 {
				result.Policy.Valid = true
			}
			for _, e := range errs {
				result.Policy.Errors = append(result.Policy.Errors, e.Error())
			}
		case os.IsNotExist(statErr):
			// A configured but missing policy is an error.
			result.Policy.Errors = []string{fmt.Sprintf("policy file %s not found", env.policyPath)}
		default:
			result.Policy.Present = true
			result.Policy.Errors = []string{statErr.Error()}
		}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		result.AWS.RegionsOK &&
		len(result.Policy.Errors) == 0

	return result
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		if result.AWS.RegionsOK {
			doctorPrint(w, "Regions API", "OK", fmt.Sprintf("%d regions", result.AWS.Regions))
		} else {
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintln(w, "\nPolicy:")
	switch {
	case result.Policy.Path == "":
		doctorPrint(w, "Policy file", "Not configured (optional)", "")
	case !result.Policy.Present:
		doctorPrint(w, "Policy file", "FAIL", firstError(result.Policy.Errors))
	default:
		doctorPrint(w, "Policy file", "YES", result.Policy.Path)
		if result.Policy.Valid {
			doctorPrint(w, "Policy valid", "OK", "")
		} else {
			for _, e := range result.Policy.Errors {
				doctorPrint(w, "Policy valid", "FAIL", e)
			}
		}
	}
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0]
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
