package confirm

import "errors"

var (
	// ErrInvalidState is returned when the Confirmer is misused by the local caller,
	// e.g. Submit called twice or Deliver called before Init.
	ErrInvalidState = errors.New("invalid confirmer state")
	// ErrEmptyValue is returned when an empty value is submitted.
	ErrEmptyValue = errors.New("empty value")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvariantViolation signals that previously validated state no longer validates.
	// It indicates a local bug or memory corruption, never a remote fault.
	ErrInvariantViolation = errors.New("internal invariant violation")
	// ErrInvalidEvidence is returned by VerifyEvidence for evidence that proves nothing.
	ErrInvalidEvidence = errors.New("invalid evidence")
)
