// Package workflow reads YAML workflow files and turns them into tasks for
// the runner.
//
// A workflow names the run, optionally overrides runner options, seeds the
// shared context and lists tasks in execution order:
//
//	name: scratch-setup
//	runner:
//	  exitOnError: true
//	context:
//	  alias: dev
//	tasks:
//	  - id: org
//	    title: Create scratch org
//	    command: sf org create scratch -f config/project-scratch-def.json -a ${ctx.alias}
//	    sf: true
//	    capture:
//	      username: result.username
//	  - title: Push source
//	    needs: [org]
//	    command: sf project deploy start -o ${ctx.username}
//	    sf: true
package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/aristath/toolbelt/internal/backend"
	"github.com/aristath/toolbelt/internal/orchestrator"
	"github.com/aristath/toolbelt/internal/scheduler"
	"github.com/aristath/toolbelt/internal/toolerr"
)

// Runner overrides runner options. Unset fields keep the caller's values.
type Runner struct {
	Concurrent       *bool  `yaml:"concurrent"`
	ExitOnError      *bool  `yaml:"exitOnError"`
	CollectErrors    string `yaml:"collectErrors"`
	ConcurrencyLimit int    `yaml:"concurrencyLimit"`
}

// Retry is a task's retry policy.
type Retry struct {
	Attempts        int    `yaml:"attempts"`
	InitialInterval string `yaml:"initialInterval"`
}

// Task describes one command. ID names the task for the Needs of other
// tasks.
type Task struct {
	ID                 string            `yaml:"id"`
	Needs              []string          `yaml:"needs"`
	Title              string            `yaml:"title"`
	Command            string            `yaml:"command"`
	Sf                 bool              `yaml:"sf"`
	Concurrent         bool              `yaml:"concurrent"`
	SuppressErrors     bool              `yaml:"suppressErrors"`
	RenderStdioOnError bool              `yaml:"renderStdioOnError"`
	Retry              *Retry            `yaml:"retry"`
	Locks              []string          `yaml:"locks"`
	Capture            map[string]string `yaml:"capture"` // context key -> gjson path into stdout
	Set                map[string]any    `yaml:"set"`     // static values stored on success
}

// File is a parsed workflow.
type File struct {
	Path    string         `yaml:"-"`
	Name    string         `yaml:"name"`
	Runner  Runner         `yaml:"runner"`
	Context map[string]any `yaml:"context"`
	Tasks   []Task         `yaml:"tasks"`
}

// Load reads and parses the workflow at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		e := toolerr.NewValidationError(fmt.Sprintf("Could not read workflow file %s.", path), "workflow:Load",
			toolerr.ValidationDetail{Argument: "path", Expected: "a readable workflow file", Received: path})
		e.Cause = err
		return nil, e
	}
	f, err := Parse(data)
	if err != nil {
		if te, ok := err.(*toolerr.Error); ok {
			te.AddToStack("workflow.Load: " + path)
		}
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Parse validates data against the workflow schema and decodes it.
func Parse(data []byte) (*File, error) {
	const source = "workflow:Parse"

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		e := toolerr.NewValidationError("Workflow is not valid YAML.", source,
			toolerr.ValidationDetail{Argument: "workflow", Expected: "a YAML document", Received: err.Error()})
		e.Cause = err
		return nil, e
	}

	if err := validateDocument(doc); err != nil {
		e := toolerr.NewValidationError("Workflow does not match the workflow schema.", source,
			toolerr.ValidationDetail{Argument: "workflow", Expected: "a document matching the workflow schema", Received: err.Error()})
		e.Cause = err
		return nil, e
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		e := toolerr.NewValidationError("Workflow could not be decoded.", source,
			toolerr.ValidationDetail{Argument: "workflow", Expected: "a workflow document", Received: err.Error()})
		e.Cause = err
		return nil, e
	}
	return &f, nil
}

// RunnerOptions applies the workflow's runner overrides to base.
func (f *File) RunnerOptions(base orchestrator.RunnerOptions) orchestrator.RunnerOptions {
	opts := base
	opts.Name = f.Name
	if f.Runner.Concurrent != nil {
		opts.Concurrent = *f.Runner.Concurrent
	}
	if f.Runner.ExitOnError != nil {
		opts.ExitOnError = *f.Runner.ExitOnError
	}
	if f.Runner.CollectErrors != "" {
		opts.CollectErrors = f.Runner.CollectErrors
	}
	if f.Runner.ConcurrencyLimit > 0 {
		opts.ConcurrencyLimit = f.Runner.ConcurrencyLimit
	}
	return opts
}

// Build creates the workflow's tasks in execution order: file order, with
// each task moved after the tasks it needs. defaults is the retry policy of
// tasks that do not declare one.
func (f *File) Build(defaults scheduler.RetryConfig) ([]scheduler.Unit, error) {
	order, err := f.order()
	if err != nil {
		return nil, err
	}
	units := make([]scheduler.Unit, 0, len(f.Tasks))
	for _, i := range order {
		u, err := f.Tasks[i].build(defaults)
		if err != nil {
			if te, ok := err.(*toolerr.Error); ok {
				te.AddToStack(fmt.Sprintf("workflow.Build: task %d", i+1))
			}
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// Register seeds the runner's shared context and adds every task to it.
func (f *File) Register(r *orchestrator.TaskRunner, defaults scheduler.RetryConfig) error {
	units, err := f.Build(defaults)
	if err != nil {
		return err
	}
	sc := r.Context()
	for k, v := range f.Context {
		sc.Set(k, v)
	}
	for _, u := range units {
		if _, err := r.AddTask(u); err != nil {
			return err
		}
	}
	return nil
}

func (t Task) build(defaults scheduler.RetryConfig) (*scheduler.CommandTask, error) {
	retry, err := t.retryConfig(defaults)
	if err != nil {
		return nil, err
	}

	opts := scheduler.Options{
		SuppressErrors:     t.SuppressErrors,
		RenderStdioOnError: t.RenderStdioOnError,
		Concurrent:         t.Concurrent,
		Retry:              retry,
		Locks:              t.Locks,
	}
	if len(t.Capture) > 0 || len(t.Set) > 0 {
		opts.OnSuccess = t.onSuccess
	}

	if t.Sf {
		return scheduler.NewSfTask(t.Title, t.Command, opts)
	}
	return scheduler.NewCommandTask(t.Title, t.Command, opts)
}

func (t Task) retryConfig(defaults scheduler.RetryConfig) (scheduler.RetryConfig, error) {
	if t.Retry == nil {
		return defaults, nil
	}
	cfg := defaults
	if t.Retry.Attempts > 0 {
		cfg.MaxAttempts = t.Retry.Attempts
	}
	if t.Retry.InitialInterval != "" {
		d, err := time.ParseDuration(t.Retry.InitialInterval)
		if err != nil {
			e := toolerr.NewValidationError(fmt.Sprintf("Task %q has an invalid retry interval.", t.Title), "workflow:Task",
				toolerr.ValidationDetail{Argument: "retry.initialInterval", Expected: "a duration such as 500ms", Received: t.Retry.InitialInterval})
			e.Cause = err
			return cfg, e
		}
		cfg.InitialInterval = d
	}
	return cfg, nil
}

// onSuccess stores the task's static values and captured output fields in
// the shared context.
func (t Task) onSuccess(_ context.Context, res *backend.Result, sc *scheduler.SharedContext, task *scheduler.CommandTask) error {
	for k, v := range t.Set {
		sc.Set(k, v)
	}
	if len(t.Capture) == 0 {
		return nil
	}

	raw, err := captureSource(res)
	if err != nil {
		return err
	}
	for key, path := range t.Capture {
		r := gjson.Get(raw, path)
		if !r.Exists() {
			return toolerr.New(fmt.Sprintf("Task %q output has no value at %q for context key %q.", task.Title(), path, key),
				toolerr.NameGeneric, "workflow:capture",
				toolerr.WithActions("Check the capture path against the command's --json output."),
				toolerr.WithDetail(map[string]any{"stdout": res.Stdout}))
		}
		sc.Set(key, r.Value())
	}
	return nil
}

// captureSource returns the JSON text capture paths are evaluated against:
// stdout itself when it is JSON, otherwise the object found in it.
func captureSource(res *backend.Result) (string, error) {
	if res == nil {
		return "{}", nil
	}
	if gjson.Valid(res.Stdout) {
		return res.Stdout, nil
	}
	if res.StdoutJSON == nil {
		return "{}", nil
	}
	data, err := json.Marshal(res.StdoutJSON)
	if err != nil {
		return "", fmt.Errorf("encode captured output: %w", err)
	}
	return string(data), nil
}
