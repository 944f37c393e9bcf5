package workflow

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/toolbelt/internal/backend"
	"github.com/aristath/toolbelt/internal/jsonx"
	"github.com/aristath/toolbelt/internal/orchestrator"
	"github.com/aristath/toolbelt/internal/scheduler"
	"github.com/aristath/toolbelt/internal/toolerr"
)

// fakeExecutor implements backend.Executor, answering each command with
// the stdout of the first matching prefix.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
}

func (f *fakeExecutor) Execute(_ context.Context, command string) (*backend.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()

	for prefix, out := range f.outputs {
		if strings.HasPrefix(command, prefix) {
			return &backend.Result{Command: command, Stdout: out, StdoutJSON: jsonx.StdioToJSON(out)}, nil
		}
	}
	return &backend.Result{Command: command}, nil
}

func TestLoad(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "scratch.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "scratch-setup", f.Name)
	assert.Equal(t, filepath.Join("testdata", "scratch.yaml"), f.Path)
	assert.Equal(t, map[string]any{"alias": "dev"}, f.Context)
	require.Len(t, f.Tasks, 4)

	create := f.Tasks[1]
	assert.True(t, create.Sf)
	require.NotNil(t, create.Retry)
	assert.Equal(t, 3, create.Retry.Attempts)
	assert.Equal(t, "2s", create.Retry.InitialInterval)
	assert.Equal(t, []string{"devhub"}, create.Locks)
	assert.Equal(t, map[string]string{"username": "result.username"}, create.Capture)
	assert.Equal(t, map[string]any{"ready": true}, f.Tasks[3].Set)
	assert.Equal(t, "org", create.ID)
	assert.Equal(t, []string{"org"}, f.Tasks[2].Needs)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, toolerr.HasName(err, toolerr.NameValidation))
	assert.Equal(t, toolerr.ExitValidationError, toolerr.GetExitCode(err))
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty document", doc: ""},
		{name: "not yaml", doc: "name: [unclosed"},
		{name: "missing name", doc: "tasks:\n  - title: a\n    command: echo a\n"},
		{name: "no tasks", doc: "name: x\ntasks: []\n"},
		{name: "unknown top-level field", doc: "name: x\nowner: me\ntasks:\n  - title: a\n    command: echo a\n"},
		{name: "unknown task field", doc: "name: x\ntasks:\n  - title: a\n    command: echo a\n    shell: bash\n"},
		{name: "blank command", doc: "name: x\ntasks:\n  - title: a\n    command: \"   \"\n"},
		{name: "bad collectErrors", doc: "name: x\nrunner:\n  collectErrors: some\ntasks:\n  - title: a\n    command: echo a\n"},
		{name: "zero concurrency", doc: "name: x\nrunner:\n  concurrencyLimit: 0\ntasks:\n  - title: a\n    command: echo a\n"},
		{name: "bad interval", doc: "name: x\ntasks:\n  - title: a\n    command: echo a\n    retry:\n      initialInterval: soon\n"},
		{name: "id with spaces", doc: "name: x\ntasks:\n  - id: my org\n    title: a\n    command: echo a\n"},
		{name: "repeated need", doc: "name: x\ntasks:\n  - title: a\n    needs: [b, b]\n    command: echo a\n"},
		{name: "non-string capture path", doc: "name: x\ntasks:\n  - title: a\n    command: echo a\n    capture:\n      k: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, toolerr.HasName(err, toolerr.NameValidation))
		})
	}
}

func TestRunnerOptions(t *testing.T) {
	f, err := Parse([]byte("name: deploy\nrunner:\n  concurrent: true\n  exitOnError: false\n  concurrencyLimit: 2\ntasks:\n  - title: a\n    command: echo a\n"))
	require.NoError(t, err)

	opts := f.RunnerOptions(orchestrator.DefaultRunnerOptions())
	assert.Equal(t, "deploy", opts.Name)
	assert.True(t, opts.Concurrent)
	assert.False(t, opts.ExitOnError)
	assert.Equal(t, orchestrator.CollectMinimal, opts.CollectErrors, "unset fields keep the base value")
	assert.Equal(t, 2, opts.ConcurrencyLimit)
	assert.True(t, opts.ForceColor)
}

func TestBuild(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "scratch.yaml"))
	require.NoError(t, err)

	defaults := scheduler.RetryConfig{MaxAttempts: 1, InitialInterval: 100 * time.Millisecond}
	units, err := f.Build(defaults)
	require.NoError(t, err)
	require.Len(t, units, 4)

	del := units[0].(*scheduler.CommandTask)
	assert.Equal(t, "sf org delete scratch -o ${ctx.alias} -p --json", del.Command())
	assert.True(t, del.Options().SuppressErrors)
	assert.Equal(t, defaults, del.Options().Retry)

	create := units[1].(*scheduler.CommandTask)
	assert.Equal(t, 3, create.Options().Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, create.Options().Retry.InitialInterval)
	assert.NotNil(t, create.Options().OnSuccess)

	record := units[3].(*scheduler.CommandTask)
	assert.Equal(t, "echo done", record.Command(), "non-sf commands are left alone")
}

func TestBuild_SfPrefixEnforced(t *testing.T) {
	f, err := Parse([]byte("name: x\ntasks:\n  - title: a\n    command: git status\n    sf: true\n"))
	require.NoError(t, err)

	_, err = f.Build(scheduler.RetryConfig{})
	require.Error(t, err)
	assert.True(t, toolerr.HasName(err, toolerr.NameValidation))

	var te *toolerr.Error
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.ResultStack(), "workflow.Build: task 1")
}

func TestRegisterAndRun_CapturesIntoContext(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "scratch.yaml"))
	require.NoError(t, err)

	exec := &fakeExecutor{outputs: map[string]string{
		"sf org create": `{"status":0,"result":{"username":"test-abc@example.com","orgId":"00D"}}`,
	}}
	r, err := orchestrator.NewSession(orchestrator.Deps{Executor: exec}).NewRunner(f.RunnerOptions(orchestrator.DefaultRunnerOptions()))
	require.NoError(t, err)
	require.NoError(t, f.Register(r, scheduler.RetryConfig{MaxAttempts: 1}))

	sc, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"sf org delete scratch -o dev -p --json",
		"sf org create scratch -f config/project-scratch-def.json -a dev --json",
		"sf project deploy start -o test-abc@example.com --json",
		"echo done",
	}, exec.calls)

	username, ok := sc.Get("username")
	require.True(t, ok)
	assert.Equal(t, "test-abc@example.com", username)
	ready, _ := sc.Get("ready")
	assert.Equal(t, true, ready)
	assert.Len(t, sc.CommandStrings(), 4)
}

func TestCapture_MissingPathFailsTask(t *testing.T) {
	f, err := Parse([]byte("name: x\ntasks:\n  - title: Create\n    command: sf org create scratch\n    sf: true\n    capture:\n      username: result.username\n"))
	require.NoError(t, err)

	exec := &fakeExecutor{outputs: map[string]string{"sf": `{"status":0,"result":{}}`}}
	r, err := orchestrator.NewSession(orchestrator.Deps{Executor: exec}).NewRunner(orchestrator.DefaultRunnerOptions())
	require.NoError(t, err)
	require.NoError(t, f.Register(r, scheduler.RetryConfig{}))

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.(*toolerr.Error).Cause.Error(), `"result.username"`)
}

func TestCaptureSource(t *testing.T) {
	raw, err := captureSource(&backend.Result{Stdout: "Warning: update available\n{\"result\":{\"id\":1}}"})
	require.NoError(t, err)
	assert.Equal(t, "{}", raw, "no parsed JSON means an empty object")

	out := "Warning: update available\n{\"result\":{\"id\":1}}"
	raw, err = captureSource(&backend.Result{Stdout: out, StdoutJSON: jsonx.StdioToJSON(out)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"id":1}}`, raw)

	raw, err = captureSource(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)
}
