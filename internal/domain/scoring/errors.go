package scoring

import "errors"

// Sentinel kinds for scoring errors. All of them are caller errors: the input
// is malformed and retrying it unchanged cannot succeed.
var (
	ErrMissingPrediction    = errors.New("claim has no prediction")
	ErrMissingActual        = errors.New("outcome has no actual value")
	ErrTypeMismatch         = errors.New("claim type does not match prediction and actual")
	ErrUnsupportedClaimType = errors.New("unsupported claim type")
	ErrUnknownMatcher       = errors.New("unknown categorical matcher")
)

// IsCallerError reports whether err is one of the scoring validation errors.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrMissingPrediction) ||
		errors.Is(err, ErrMissingActual) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrUnsupportedClaimType)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrMissingPrediction):
		return "missing_prediction"
	case errors.Is(err, ErrMissingActual):
		return "missing_actual"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrUnsupportedClaimType):
		return "unsupported_claim_type"
	default:
		return "unknown"
	}
}
