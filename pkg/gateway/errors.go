package gateway

import "github.com/pkg/errors"

// ErrorKind classifies a Model Gateway failure so callers can branch on
// handling policy without string-matching error text.
type ErrorKind string

const (
	KindTransient           ErrorKind = "transient_external"
	KindRateLimited         ErrorKind = "rate_limited"
	KindSchemaMismatch      ErrorKind = "schema_mismatch"
	KindContentInsufficient ErrorKind = "content_insufficient"
	KindProviderDown        ErrorKind = "provider_down"
	KindBudgetExhausted     ErrorKind = "budget_exhausted"
	KindFatal               ErrorKind = "fatal"
)

// GatewayError wraps an underlying error with a classification.
type GatewayError struct {
	Kind  ErrorKind
	cause error
}

func (e *GatewayError) Error() string {
	return string(e.Kind) + ": " + e.cause.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.cause
}

// Classify wraps err with kind, preserving the pkg/errors stack if present.
func Classify(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Kind: kind, cause: errors.Wrap(err, msg)}
}

// KindOf returns the classification attached to err, or KindFatal if err
// was never classified by this package.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindFatal
}

// Retryable reports whether the handling policy for kind calls for a retry
// at this layer (as opposed to surfacing to the caller or failing the job).
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindTransient, KindRateLimited, KindSchemaMismatch:
		return true
	default:
		return false
	}
}
