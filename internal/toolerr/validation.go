package toolerr

// ValidationDetail is the payload of a ValidationError.
type ValidationDetail struct {
	Argument string
	Expected string
	Received string
}

// NewValidationError reports a violated precondition at a component
// boundary.
func NewValidationError(message, source string, detail ValidationDetail) *Error {
	e := newError(message, NameValidation, source)
	e.ExitCode = ExitValidationError
	e.Validation = &detail
	return e
}

// NewRuntimeError reports that a batch of work could not complete. cause is
// the failure that stopped it.
func NewRuntimeError(message, source string, cause error) *Error {
	e := newError(message, NameRuntime, source)
	e.Cause = cause
	return e
}
