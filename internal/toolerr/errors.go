// Package toolerr provides the structured error envelope used across toolbelt.
//
// Every failure that crosses a component boundary is an *Error: a message, a
// machine-readable name, a provenance source, an optional cause and an
// optional variant payload (CLI, shell or validation detail). Layers that
// re-raise an error call AddToStack so the final report shows the path the
// failure took.
package toolerr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Exit codes returned by the toolbelt binary.
const (
	ExitSuccess         = 0
	ExitRuntimeError    = 1
	ExitValidationError = 2
)

// Error names. The name is the machine-readable kind of an Error.
const (
	NameGeneric     = "GenericError"
	NameValidation  = "ValidationError"
	NameCLI         = "CliError"
	NameShell       = "ShellError"
	NameRuntime     = "RuntimeError"
	NameUnknown     = "UnknownError"
	NameUnparseable = "UnparseableCliResponse"
	NameNotAnError  = "NotAnError"
)

// DefaultSource is used when the raising component does not name itself.
const DefaultSource = "Unhandled"

const wrappedStackMarker = "----- Wrapped Error Stack -----"

// Error is the structured error envelope.
//
// At most one of CLI, Shell and Validation is set; it identifies the variant
// and carries its payload.
type Error struct {
	Message  string
	Name     string
	Source   string
	Cause    error
	Actions  []string
	ExitCode int

	// Detail is free-form diagnostic data, distinct from Cause.
	Detail any

	CLI        *CLIDetail
	Shell      *ShellDetail
	Validation *ValidationDetail

	stack       string
	resultStack string
}

// Option customizes an Error at construction.
type Option func(*Error)

// WithCause sets the wrapped cause.
func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

// WithActions sets the suggested remediation actions.
func WithActions(actions ...string) Option {
	return func(e *Error) { e.Actions = append(e.Actions, actions...) }
}

// WithExitCode overrides the default exit code of 1.
func WithExitCode(code int) Option {
	return func(e *Error) { e.ExitCode = code }
}

// WithDetail attaches a diagnostic payload.
func WithDetail(detail any) Option {
	return func(e *Error) { e.Detail = detail }
}

// New creates an Error. Empty name and source fall back to NameGeneric and
// DefaultSource.
func New(message, name, source string, opts ...Option) *Error {
	e := newError(message, name, source)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newError(message, name, source string) *Error {
	if name == "" {
		name = NameGeneric
	}
	if source == "" {
		source = DefaultSource
	}
	return &Error{
		Message:  message,
		Name:     name,
		Source:   source,
		ExitCode: ExitRuntimeError,
		stack:    callers(3),
	}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Stack returns the call stack captured when the error was created.
func (e *Error) Stack() string {
	return e.stack
}

// ResultStack returns the trace built by AddToStack, most recent entry first.
func (e *Error) ResultStack() string {
	return e.resultStack
}

// AddToStack prepends item to the result stack. Earlier entries are pushed
// one indentation level deeper.
func (e *Error) AddToStack(item string) {
	if e.resultStack == "" {
		e.resultStack = item + "\n"
		return
	}
	e.resultStack = item + "\n" + indent(e.resultStack, "  ")
}

// RootCause follows the cause chain to the innermost error.
func (e *Error) RootCause() error {
	var cur error = e
	for {
		next := errors.Unwrap(cur)
		if next == nil {
			return cur
		}
		cur = next
	}
}

// HasName reports whether any *Error in err's chain carries name.
func HasName(err error, name string) bool {
	for err != nil {
		if te, ok := err.(*Error); ok && te.Name == name {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Wrap converts any value into an *Error.
//
// An *Error, or an error whose chain holds one, yields that *Error. Any
// other error becomes a generic Error carrying its message and type name
// with the original kept as Cause. Any other value, including nil, becomes
// an UnknownError with the value stored under Detail["unknownObj"].
func Wrap(v any, source string) *Error {
	switch val := v.(type) {
	case *Error:
		if val != nil {
			return val
		}
	case error:
		var te *Error
		if errors.As(val, &te) && te != nil {
			return te
		}
		e := newError(val.Error(), typeName(val), source)
		e.Cause = val
		if inner := foreignStack(val); inner != "" {
			e.stack = e.stack + "\n" + wrappedStackMarker + "\n" + inner
		}
		return e
	}
	e := newError("An unknown error was thrown or returned", NameUnknown, source)
	e.Detail = map[string]any{"unknownObj": v}
	return e
}

// GetExitCode returns the process exit code appropriate for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var te *Error
	if errors.As(err, &te) && te.ExitCode != 0 {
		return te.ExitCode
	}
	return ExitRuntimeError
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// callers formats the current call stack, dropping the innermost skip frames.
func callers(skip int) string {
	st := pkgerrors.New("").(stackTracer).StackTrace()
	if skip < len(st) {
		st = st[skip:]
	}
	return strings.TrimPrefix(fmt.Sprintf("%+v", st), "\n")
}

// foreignStack returns the stack carried by err, if any.
func foreignStack(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.stack
	}
	var st stackTracer
	if errors.As(err, &st) {
		return strings.TrimPrefix(fmt.Sprintf("%+v", st.StackTrace()), "\n")
	}
	return ""
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" && isExported(name) {
		return name
	}
	return NameGeneric
}

func isExported(name string) bool {
	return name[0] >= 'A' && name[0] <= 'Z'
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
