package domain

import "errors"

// ErrorKind classifies terminal failures of privileged operations and analysis requests
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindPermissionDenied ErrorKind = "permission_denied"
	ErrorKindRateLimited      ErrorKind = "rate_limited"
	ErrorKindInvalidTarget    ErrorKind = "invalid_target"
	ErrorKindAmbiguousTarget  ErrorKind = "ambiguous_target"
	ErrorKindPayloadTooLarge  ErrorKind = "payload_too_large"
	ErrorKindProvider         ErrorKind = "provider_error"
	ErrorKindInternal         ErrorKind = "internal"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidTarget    = errors.New("invalid target")
	ErrAmbiguousTarget  = errors.New("ambiguous target")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrProvider         = errors.New("analysis provider error")
)

// KindOf maps an error to its ErrorKind. Unknown errors are ErrorKindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrPermissionDenied):
		return ErrorKindPermissionDenied
	case errors.Is(err, ErrRateLimited):
		return ErrorKindRateLimited
	case errors.Is(err, ErrInvalidTarget):
		return ErrorKindInvalidTarget
	case errors.Is(err, ErrAmbiguousTarget):
		return ErrorKindAmbiguousTarget
	case errors.Is(err, ErrPayloadTooLarge):
		return ErrorKindPayloadTooLarge
	case errors.Is(err, ErrProvider):
		return ErrorKindProvider
	default:
		return ErrorKindInternal
	}
}
