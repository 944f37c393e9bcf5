package toolerr

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/aristath/toolbelt/internal/jsonx"
)

const (
	defaultCLIMessage     = "Salesforce CLI command failed"
	unparseableCLIMessage = "Unable to parse the CLI response as JSON"
	unparseableCLIStatus  = 999
)

// CLIDetail is the payload of a CliError: what the CLI reported about the
// failure, parsed from its --json output when possible.
type CLIDetail struct {
	Command  string
	Name     string
	Message  string
	Status   int
	Actions  []string
	Warnings []string
	Stack    string

	// Result is the CLI's "result" field, a JSON object found inside its
	// stack, or {"rawResult": ...} when neither is available.
	Result any

	RawStdout    string
	RawStderr    string
	ParsedStdout map[string]any
	ParsedStderr map[string]any
}

// CLIParams describes a failed CLI invocation.
type CLIParams struct {
	Command string
	Stdout  string
	Stderr  string
	Message string
	Source  string
	Cause   error
}

// NewCLIError builds a CliError from a failed CLI invocation. Output that is
// not JSON never produces a second error; it yields an UnparseableCliResponse
// detail with status 999 instead.
func NewCLIError(p CLIParams) *Error {
	d := parseCLIOutput(p.Stdout)
	d.Command = p.Command
	d.RawStdout = p.Stdout
	d.RawStderr = p.Stderr
	d.ParsedStdout = jsonx.StdioToJSON(p.Stdout)
	d.ParsedStderr = jsonx.StdioToJSON(p.Stderr)

	message := p.Message
	if message == "" {
		message = defaultCLIMessage
	}

	e := newError(fmt.Sprintf("%s. %s", message, d.Message), NameCLI, p.Source)
	e.Cause = p.Cause
	e.CLI = d
	e.Actions = append(e.Actions, d.Actions...)
	return e
}

func parseCLIOutput(stdout string) *CLIDetail {
	parsed, ok := jsonx.ParseObject(stdout)
	if !ok {
		return &CLIDetail{
			Name:    NameUnparseable,
			Message: unparseableCLIMessage,
			Status:  unparseableCLIStatus,
			Result:  map[string]any{"rawResult": stdout},
		}
	}

	res := gjson.Parse(stdout)
	d := &CLIDetail{
		Name:    res.Get("name").String(),
		Message: res.Get("message").String(),
		Status:  1,
		Stack:   res.Get("stack").String(),
	}
	if d.Message == "" {
		d.Message = "The CLI reported an error without a message"
	}
	if status := res.Get("status"); status.Type == gjson.Number {
		d.Status = int(status.Int())
	}

	if actions := res.Get("actions"); actions.IsArray() {
		for _, a := range actions.Array() {
			d.Actions = append(d.Actions, a.String())
		}
	}
	if action := res.Get("action"); action.Type == gjson.String {
		d.Actions = append(d.Actions, action.String())
	}
	if warnings := res.Get("warnings"); warnings.IsArray() {
		for _, w := range warnings.Array() {
			d.Warnings = append(d.Warnings, w.String())
		}
	}

	if result, ok := parsed["result"]; ok {
		d.Result = result
	} else if embedded := jsonx.StdioToJSON(d.Stack); embedded != nil {
		d.Result = embedded
	} else {
		d.Result = map[string]any{"rawResult": parsed}
	}
	return d
}
