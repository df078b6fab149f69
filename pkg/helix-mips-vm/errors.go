package helixmipsvm

import "fmt"

// ErrorCode represents a Helix MIPS VM error code
type ErrorCode int

const (
	// ErrUnknown represents an unknown error
	ErrUnknown ErrorCode = iota

	// ErrInvalidConfig represents an invalid configuration error
	ErrInvalidConfig

	// ErrGuestLoad represents a guest image loading error
	ErrGuestLoad

	// ErrGuestFault represents a guest execution fault
	ErrGuestFault

	// ErrProofGeneration represents a segment proving error
	ErrProofGeneration

	// ErrContinuity represents a segment boundary continuity violation
	ErrContinuity

	// ErrProofVerification represents an aggregate verification error
	ErrProofVerification

	// ErrUnboundPrecompile represents a precompile call with no circuit
	// artifact bound to the run
	ErrUnboundPrecompile
)

// VMError represents a Helix MIPS VM error
type VMError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *VMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("helix-mips-vm error [%d]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("helix-mips-vm error [%d]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *VMError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *VMError) Is(target error) bool {
	t, ok := target.(*VMError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
