package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Credentials is the raw credential material supplied by the user.
// Either AccessKeyID/SecretAccessKey or Profile must be set.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string

	// Profile names a shared-config profile. It is only consulted when no
	// static access key is given.
	Profile string
}

// Session is an authenticated AWS context produced by the credential
// validator. It is read-only once created and safe to share between
// goroutines; check providers build their own SDK clients from Config.
type Session struct {
	// AccountID is the AWS account ID resolved via STS.
	AccountID string

	// CallerARN is the ARN of the identity behind the credentials.
	CallerARN string

	// Region is the home region used for global services and probes.
	Region string

	// Message is the human-readable confirmation shown to the user.
	Message string

	// Config is the fully loaded AWS SDK v2 configuration.
	Config aws.Config
}

// ConfigForRegion returns a copy of the session config with Region set.
func (s *Session) ConfigForRegion(region string) aws.Config {
	regional := s.Config
	regional.Region = region
	return regional
}

// CredentialValidator turns credential material into a Session.
// It performs exactly one identity call and never retries.
type CredentialValidator interface {
	Validate(ctx context.Context, creds Credentials) (*Session, error)
}

// RegionResolver returns the regions regional check providers iterate.
type RegionResolver interface {
	ActiveRegions(ctx context.Context, session *Session) ([]string, error)
}
