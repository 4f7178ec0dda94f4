package common

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
)

// DefaultRegion is used when neither the caller nor the shared config
// supplies a region.
const DefaultRegion = "us-east-1"

// ConfigLoader loads an AWS SDK config. awsconfig.LoadDefaultConfig is the
// production implementation.
type ConfigLoader func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)

// DefaultValidator is the production CredentialValidator. It builds an
// aws.Config from static keys or a shared-config profile and confirms the
// identity with a single STS GetCallerIdentity call.
//
// Inject a custom ConfigLoader and STSFactory via NewValidatorWithFactory to
// replace the SDK with fakes in unit tests.
type DefaultValidator struct {
	loadConfig ConfigLoader
	newSTS     STSFactory
}

// NewDefaultValidator returns a validator backed by the real AWS SDK.
func NewDefaultValidator() *DefaultValidator {
	return &DefaultValidator{loadConfig: awsconfig.LoadDefaultConfig, newSTS: NewSTSClient}
}

// NewValidatorWithFactory returns a validator that uses loader and stsFactory
// instead of the SDK defaults.
func NewValidatorWithFactory(loader ConfigLoader, stsFactory STSFactory) *DefaultValidator {
	return &DefaultValidator{loadConfig: loader, newSTS: stsFactory}
}

// ---------------------------------------------------------------------------
// CredentialValidator implementation
// ---------------------------------------------------------------------------

// Validate establishes an authenticated session for creds.
//
// Static keys take precedence over a profile. Supplying only one half of a
// key pair, or keys that the SDK cannot resolve, yields AuthNoCredentials.
// Every other failure is classified from the STS response.
func (v *DefaultValidator) Validate(ctx context.Context, creds Credentials) (*Session, error) {
	log := zerolog.Ctx(ctx)

	static := creds.AccessKeyID != "" || creds.SecretAccessKey != ""
	if static && (creds.AccessKeyID == "" || creds.SecretAccessKey == "") {
		return nil, &AuthError{Kind: AuthNoCredentials, Detail: "access key ID and secret access key must both be set"}
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if creds.Region != "" {
		opts = append(opts, awsconfig.WithRegion(creds.Region))
	}
	switch {
	case static:
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	case creds.Profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(creds.Profile))
	}

	cfg, err := v.loadConfig(ctx, opts...)
	if err != nil {
		return nil, &AuthError{Kind: AuthNoCredentials, Detail: err.Error(), Err: err}
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	// Resolve credentials up front so a missing profile or empty chain is
	// reported as NoCredentials rather than as a signing failure.
	if cfg.Credentials == nil {
		return nil, &AuthError{Kind: AuthNoCredentials, Detail: "no credential source configured"}
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, &AuthError{Kind: AuthNoCredentials, Detail: err.Error(), Err: err}
	}

	out, err := v.newSTS(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		authErr := classifyAuthError(err)
		log.Debug().Str("kind", string(authErr.Kind)).Err(err).Msg("credential validation failed")
		return nil, authErr
	}
	if out.Account == nil {
		return nil, &AuthError{Kind: AuthUnexpected, Detail: "STS GetCallerIdentity returned nil account"}
	}

	accountID := aws.ToString(out.Account)
	log.Debug().Str("account_id", accountID).Str("region", cfg.Region).Msg("credentials validated")

	return &Session{
		AccountID: accountID,
		CallerARN: aws.ToString(out.Arn),
		Region:    cfg.Region,
		Message:   fmt.Sprintf("Valid credentials for account: %s", accountID),
		Config:    cfg,
	}, nil
}

// ---------------------------------------------------------------------------
// Region discovery
// ---------------------------------------------------------------------------

// DefaultRegionResolver returns a fixed region list when one is configured
// and otherwise asks EC2 for the regions the account has opted into.
type DefaultRegionResolver struct {
	newEC2  EC2RegionFactory
	regions []string
}

// NewRegionResolver returns a resolver backed by the real EC2 client.
// A non-empty regions slice short-circuits discovery.
func NewRegionResolver(regions []string) *DefaultRegionResolver {
	return &DefaultRegionResolver{newEC2: NewEC2RegionClient, regions: regions}
}

// NewRegionResolverWithFactory returns a resolver that builds its EC2 client
// with f.
func NewRegionResolverWithFactory(f EC2RegionFactory, regions []string) *DefaultRegionResolver {
	return &DefaultRegionResolver{newEC2: f, regions: regions}
}

// ActiveRegions implements RegionResolver. DescribeRegions is a global call
// and works regardless of the session's home region.
func (r *DefaultRegionResolver) ActiveRegions(ctx context.Context, session *Session) ([]string, error) {
	if len(r.regions) > 0 {
		return append([]string(nil), r.regions...), nil
	}

	out, err := r.newEC2(session.Config).DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		// AllRegions false returns only regions the account has opted into.
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions for account %s: %w", session.AccountID, err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, reg := range out.Regions {
		if reg.RegionName != nil {
			regions = append(regions, *reg.RegionName)
		}
	}
	return regions, nil
}
