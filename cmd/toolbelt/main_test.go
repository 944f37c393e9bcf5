package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/toolbelt/internal/config"
	"github.com/aristath/toolbelt/internal/toolerr"
)

type testEnv struct {
	dir string
	cfg *config.ToolbeltConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Runner.ForceColor = false
	cfg.Runner.ForceTTY = false
	cfg.History.Path = filepath.Join(dir, "history.db")
	return &testEnv{dir: dir, cfg: cfg}
}

// exec runs the CLI with a fresh app, as a separate process would.
func (e *testEnv) exec(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	a := newApp(&out, &errb)
	a.loadConfig = func() (*config.ToolbeltConfig, error) {
		cfg := *e.cfg
		return &cfg, nil
	}
	code = a.execute(context.Background(), args)
	return code, out.String(), errb.String()
}

func (e *testEnv) workflow(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const passingWorkflow = `name: smoke
tasks:
  - title: Say hello
    command: echo hello
  - title: Flaky cleanup
    command: exit 3
    suppressErrors: true
  - title: Say bye
    command: echo bye
`

const failingWorkflow = `name: broken
tasks:
  - title: Break
    command: exit 3
  - title: Never
    command: echo never
`

func TestValidate(t *testing.T) {
	env := newTestEnv(t)
	path := env.workflow(t, "smoke.yaml", passingWorkflow)

	code, stdout, stderr := env.exec(t, "validate", path)
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "smoke, 3 tasks in 3 stages")
}

func TestValidate_SchemaViolation(t *testing.T) {
	env := newTestEnv(t)
	path := env.workflow(t, "bad.yaml", "name: bad\n")

	code, _, stderr := env.exec(t, "validate", path)
	assert.Equal(t, toolerr.ExitValidationError, code)
	assert.Contains(t, stderr, "Workflow does not match the workflow schema.")
}

func TestDebugFlagEnablesTracing(t *testing.T) {
	tests := []struct {
		name string
		flag string
	}{
		{name: "wildcard", flag: "--debug=*"},
		{name: "namespace", flag: "--debug=toolbelt:orchestrator:runner"},
		{name: "all", flag: "--debug-all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			path := env.workflow(t, "smoke.yaml", passingWorkflow)

			code, _, stderr := env.exec(t, tt.flag, "run", "--no-history", path)
			require.Equal(t, toolerr.ExitSuccess, code, stderr)
			assert.Contains(t, stderr, "toolbelt:orchestrator:runner")
			assert.Contains(t, stderr, "added task")
		})
	}
}

func TestNoDebugFlagIsQuiet(t *testing.T) {
	env := newTestEnv(t)
	path := env.workflow(t, "smoke.yaml", passingWorkflow)

	code, _, stderr := env.exec(t, "run", "--no-history", path)
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.NotContains(t, stderr, "toolbelt:orchestrator:runner")
}

func TestRun_RecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	path := env.workflow(t, "smoke.yaml", passingWorkflow)

	code, stdout, stderr := env.exec(t, "run", path)
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Running smoke (3 tasks, 3 stages)")
	assert.Contains(t, stdout, "✔ Say hello")
	assert.Contains(t, stdout, "⚠ Flaky cleanup failed, continuing")
	assert.Contains(t, stdout, "Completed in")

	code, stdout, stderr = env.exec(t, "history")
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "smoke")
	assert.Contains(t, stdout, "completed")
}

func TestRun_Failure(t *testing.T) {
	env := newTestEnv(t)
	path := env.workflow(t, "broken.yaml", failingWorkflow)

	code, stdout, stderr := env.exec(t, "run", path)
	assert.Equal(t, toolerr.ExitRuntimeError, code)
	assert.Contains(t, stdout, "✖ Break")
	assert.Contains(t, stdout, "↷ Never skipped")
	assert.Contains(t, stdout, "Failed in")
	assert.Contains(t, stderr, `Task "Break" failed.`)
}

func TestRun_DryRun(t *testing.T) {
	env := newTestEnv(t)
	path := env.workflow(t, "broken.yaml", failingWorkflow)

	code, stdout, stderr := env.exec(t, "run", "--dry-run", path)
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "exit 3\necho never\n")

	_, stdout, _ = env.exec(t, "history")
	assert.Contains(t, stdout, "No runs recorded.")
}

func TestRun_MissingWorkflow(t *testing.T) {
	env := newTestEnv(t)

	code, _, stderr := env.exec(t, "run", filepath.Join(env.dir, "missing.yaml"))
	assert.Equal(t, toolerr.ExitValidationError, code)
	assert.Contains(t, stderr, "Could not read workflow file")
}

func TestRun_RequiresArgument(t *testing.T) {
	env := newTestEnv(t)

	code, _, _ := env.exec(t, "run")
	assert.Equal(t, toolerr.ExitRuntimeError, code)
}

func TestHistory_ShowRun(t *testing.T) {
	env := newTestEnv(t)
	path := env.workflow(t, "smoke.yaml", passingWorkflow)
	code, _, stderr := env.exec(t, "run", path)
	require.Equal(t, toolerr.ExitSuccess, code, stderr)

	store, err := (&app{cfg: env.cfg}).openStore(context.Background())
	require.NoError(t, err)
	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)

	code, stdout, stderr := env.exec(t, "history", runs[0].ID)
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Say hello")
	assert.Contains(t, stdout, "suppressed")

	code, _, stderr = env.exec(t, "history", "no-such-run")
	assert.Equal(t, toolerr.ExitRuntimeError, code)
	assert.Contains(t, stderr, "Run no-such-run not found.")
}

func TestConfigInit(t *testing.T) {
	env := newTestEnv(t)
	t.Chdir(env.dir)

	code, stdout, stderr := env.exec(t, "config", "init")
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, config.ProjectPath())
	assert.FileExists(t, filepath.Join(env.dir, config.ProjectPath()))

	code, _, stderr = env.exec(t, "config", "init")
	assert.Equal(t, toolerr.ExitRuntimeError, code)
	assert.Contains(t, stderr, "Pass --force")

	code, _, stderr = env.exec(t, "config", "init", "--force")
	assert.Equal(t, toolerr.ExitSuccess, code, stderr)
}

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := env.exec(t, "config", "show")
	require.Equal(t, toolerr.ExitSuccess, code, stderr)
	assert.Contains(t, stdout, `"collect_errors": "minimal"`)
}

func TestNegativeDepthRejected(t *testing.T) {
	env := newTestEnv(t)

	code, _, stderr := env.exec(t, "--depth", "-1", "config", "show")
	assert.Equal(t, toolerr.ExitValidationError, code)
	assert.Contains(t, stderr, "--depth")
}
