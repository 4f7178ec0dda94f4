package common

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// AuthErrorKind classifies credential validation failures.
type AuthErrorKind string

const (
	AuthNoCredentials     AuthErrorKind = "NoCredentials"
	AuthInvalidIdentifier AuthErrorKind = "InvalidIdentifier"
	AuthInvalidSecret     AuthErrorKind = "InvalidSecret"
	AuthExpiredToken      AuthErrorKind = "ExpiredToken"
	AuthPlatformError     AuthErrorKind = "PlatformError"
	AuthUnexpected        AuthErrorKind = "Unexpected"
)

// AuthError is returned by the credential validator. It is the only error
// class that aborts an audit run.
type AuthError struct {
	Kind   AuthErrorKind
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case AuthNoCredentials:
		return "no AWS credentials provided"
	case AuthInvalidIdentifier:
		return "invalid AWS access key ID"
	case AuthInvalidSecret:
		return "invalid AWS secret access key"
	case AuthExpiredToken:
		return "expired session token"
	case AuthPlatformError:
		return fmt.Sprintf("AWS API error: %s", e.Detail)
	default:
		return fmt.Sprintf("unexpected error: %s", e.Detail)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// classifyAuthError maps an STS failure onto the AuthError taxonomy.
func classifyAuthError(err error) *AuthError {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &AuthError{Kind: AuthUnexpected, Detail: err.Error(), Err: err}
	}
	switch apiErr.ErrorCode() {
	case "InvalidClientTokenId":
		return &AuthError{Kind: AuthInvalidIdentifier, Detail: apiErr.ErrorMessage(), Err: err}
	case "SignatureDoesNotMatch":
		return &AuthError{Kind: AuthInvalidSecret, Detail: apiErr.ErrorMessage(), Err: err}
	case "ExpiredToken", "ExpiredTokenException":
		return &AuthError{Kind: AuthExpiredToken, Detail: apiErr.ErrorMessage(), Err: err}
	default:
		return &AuthError{
			Kind:   AuthPlatformError,
			Detail: fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()),
			Err:    err,
		}
	}
}

// ErrorCode returns the AWS API error code carried by err, or "" when err is
// not an API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// accessDeniedCodes are the API error codes AWS services use for
// authorization failures.
var accessDeniedCodes = map[string]struct{}{
	"AccessDenied":          {},
	"AccessDeniedException": {},
	"UnauthorizedOperation": {},
	"AuthorizationError":    {},
}

// IsAccessDenied reports whether err is an authorization-denied API error.
func IsAccessDenied(err error) bool {
	_, ok := accessDeniedCodes[ErrorCode(err)]
	return ok
}
