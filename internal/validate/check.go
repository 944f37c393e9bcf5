package validate

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"

	"github.com/aristath/toolbelt/internal/toolerr"
)

// CheckFunc validates one argument and returns a ValidationError on failure.
type CheckFunc func(v any, source, argName string) error

func fail(v any, source, argName, expected string) error {
	if argName == "" {
		argName = "the argument"
	}
	received := describe(v)
	msg := fmt.Sprintf("Expected %s to be %s but got %s.", argName, expected, received)
	return toolerr.NewValidationError(msg, source, toolerr.ValidationDetail{
		Argument: argName,
		Expected: expected,
		Received: received,
	})
}

func checkWith(pred Predicate, expected string) CheckFunc {
	return func(v any, source, argName string) error {
		if pred(v) {
			return fail(v, source, argName, expected)
		}
		return nil
	}
}

var (
	// CheckString fails when v is not a string.
	CheckString = checkWith(IsNullInvalidString, "a string")
	// CheckNonEmptyString fails when v is not a non-empty string.
	CheckNonEmptyString = checkWith(IsEmptyNullInvalidString, "a non-empty string")
	// CheckSlice fails when v is not a non-nil slice or array.
	CheckSlice = checkWith(IsNullInvalidSlice, "a non-null slice")
	// CheckNonEmptySlice fails when v is not a non-empty slice or array.
	CheckNonEmptySlice = checkWith(IsEmptyNullInvalidSlice, "a non-empty slice")
	// CheckObject fails when v is not a non-nil map or struct.
	CheckObject = checkWith(IsNullInvalidObject, "a non-null object")
	// CheckNonEmptyObject fails when v is not a non-empty map or struct.
	CheckNonEmptyObject = checkWith(IsEmptyNullInvalidObject, "a non-empty object")
	// CheckBool fails when v is not a bool.
	CheckBool = checkWith(IsNullInvalidBool, "a boolean")
	// CheckFuncValue fails when v is not a non-nil function.
	CheckFuncValue = checkWith(IsNullInvalidFunc, "a function")
	// CheckIterable fails when v cannot be ranged over.
	CheckIterable = checkWith(IsNotIterable, "an iterable")
)

// CheckInstanceOf fails when v is not an instance of want.
func CheckInstanceOf(v any, want reflect.Type, source, argName string) error {
	if IsNotInstanceOf(v, want) {
		return fail(v, source, argName, "an instance of "+want.String())
	}
	return nil
}

// ValidateTheValidator guards the multi-argument helpers against misuse:
// args and names must be non-nil slices of equal length and source must be
// a non-empty string.
func ValidateTheValidator(args []any, source string, names []string) error {
	const self = "validate:ValidateTheValidator"
	if args == nil {
		return fail(args, self, "args", "a non-null slice")
	}
	if source == "" {
		return fail(source, self, "source", "a non-empty string")
	}
	if names == nil {
		return fail(names, self, "names", "a non-null slice")
	}
	if len(names) != len(args) {
		return toolerr.NewValidationError(
			fmt.Sprintf("Expected %d argument names but got %d.", len(args), len(names)),
			self,
			toolerr.ValidationDetail{Argument: "names", Expected: fmt.Sprintf("%d names", len(args)), Received: fmt.Sprintf("%d names", len(names))},
		)
	}
	return nil
}

// Args runs check over each positional argument and returns the first
// failure.
func Args(source string, check CheckFunc, args []any, names []string) error {
	if err := ValidateTheValidator(args, source, names); err != nil {
		return err
	}
	for i, arg := range args {
		if err := check(arg, source, names[i]); err != nil {
			return err
		}
	}
	return nil
}

// CheckCommandPrefix fails unless the first token of command, after leading
// whitespace, equals one of programs case-insensitively.
func CheckCommandPrefix(command string, programs []string, source string) error {
	if err := CheckNonEmptyString(command, source, "command"); err != nil {
		return err
	}
	if HasProgram(command, programs) {
		return nil
	}
	expected := "a command starting with " + strings.Join(programs, " or ")
	return toolerr.NewValidationError(
		fmt.Sprintf("Expected command to be %s but got %q.", expected, command),
		source,
		toolerr.ValidationDetail{Argument: "command", Expected: expected, Received: command},
	)
}

// HasProgram reports whether the first token of command is one of programs,
// compared case-insensitively.
func HasProgram(command string, programs []string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	fold := cases.Fold()
	first := fold.String(fields[0])
	for _, p := range programs {
		if first == fold.String(p) {
			return true
		}
	}
	return false
}
