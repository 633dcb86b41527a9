package credential

import "errors"

// Reason classifies why a credential failed verification.
type Reason string

const (
	ReasonMalformed    Reason = "malformed"
	ReasonBadSignature Reason = "bad_signature"
	ReasonExpired      Reason = "expired"
)

var (
	// ErrMalformed matches a VerificationError for an undecodable credential.
	ErrMalformed = errors.New("credential malformed")
	// ErrBadSignature matches a VerificationError for a signature mismatch.
	ErrBadSignature = errors.New("credential signature invalid")
	// ErrExpired matches a VerificationError for an elapsed credential.
	ErrExpired = errors.New("credential expired")
)

// VerificationError is returned by Codec.Verify. Callers answer every reason
// the same way; the reason exists for logs and metrics.
type VerificationError struct {
	Reason Reason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "credential verification failed: " + string(e.Reason)
	}
	return "credential verification failed: " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Is matches the reason sentinels.
func (e *VerificationError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Reason == ReasonMalformed
	case ErrBadSignature:
		return e.Reason == ReasonBadSignature
	case ErrExpired:
		return e.Reason == ReasonExpired
	}
	return false
}

// ReasonOf extracts the verification reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Reason, true
	}
	return "", false
}
