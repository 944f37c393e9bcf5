package toolerr

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	e := New("something broke", "", "")

	assert.Equal(t, "something broke", e.Error())
	assert.Equal(t, NameGeneric, e.Name)
	assert.Equal(t, DefaultSource, e.Source)
	assert.Equal(t, 1, e.ExitCode)
	assert.Nil(t, e.Cause)
	assert.NotEmpty(t, e.Stack())
	assert.Contains(t, e.Stack(), "TestNew_Defaults")
}

func TestNew_Options(t *testing.T) {
	cause := errors.New("root")
	e := New("outer", NameRuntime, "orchestrator:run",
		WithCause(cause),
		WithActions("Run sf org list", "Check your alias"),
		WithExitCode(7),
		WithDetail(map[string]any{"alias": "dev"}),
	)

	assert.Equal(t, NameRuntime, e.Name)
	assert.Equal(t, "orchestrator:run", e.Source)
	assert.Equal(t, []string{"Run sf org list", "Check your alias"}, e.Actions)
	assert.Equal(t, 7, e.ExitCode)
	assert.Equal(t, map[string]any{"alias": "dev"}, e.Detail)
	assert.ErrorIs(t, e, cause)
}

func TestAddToStack_MostRecentFirst(t *testing.T) {
	e := New("boom", "", "")
	e.AddToStack("executeTask")
	e.AddToStack("runStage")
	e.AddToStack("Run")

	lines := strings.Split(strings.TrimRight(e.ResultStack(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Run", lines[0])
	assert.Equal(t, "  runStage", lines[1])
	assert.Equal(t, "    executeTask", lines[2])
}

func TestRootCause(t *testing.T) {
	root := errors.New("exit status 1")
	middle := New("cli failed", NameCLI, "task", WithCause(root))
	top := New("run failed", NameRuntime, "runner", WithCause(middle))

	assert.Same(t, root, top.RootCause())

	alone := New("alone", "", "")
	assert.Same(t, alone, alone.RootCause())
}

func TestHasName(t *testing.T) {
	cli := New("cli failed", NameCLI, "task")
	top := New("run failed", NameRuntime, "runner", WithCause(fmt.Errorf("stage 2: %w", cli)))

	assert.True(t, HasName(top, NameCLI))
	assert.True(t, HasName(top, NameRuntime))
	assert.False(t, HasName(top, NameShell))
	assert.False(t, HasName(nil, NameCLI))
}

func TestWrap_Idempotent(t *testing.T) {
	base := errors.New("disk full")

	once := Wrap(base, "A")
	twice := Wrap(once, "B")

	assert.Same(t, once, twice)
	assert.Equal(t, "A", twice.Source)
}

func TestWrap_FindsErrorInChain(t *testing.T) {
	inner := New("org limit reached", NameCLI, "sf")
	wrapped := fmt.Errorf("create scratch org: %w", inner)

	e := Wrap(wrapped, "hook")

	assert.Same(t, inner, e)
	assert.Equal(t, NameCLI, e.Name)
	assert.Equal(t, "sf", e.Source)
}

func TestWrap_NativeError(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	require.Error(t, statErr)

	e := Wrap(statErr, "config:load")

	assert.Equal(t, statErr.Error(), e.Message)
	assert.Equal(t, "PathError", e.Name)
	assert.Equal(t, "config:load", e.Source)
	assert.Same(t, statErr, e.Cause)
	assert.NotContains(t, e.Stack(), wrappedStackMarker)
}

func TestWrap_SplicesForeignStack(t *testing.T) {
	inner := pkgerrors.New("from a library")

	e := Wrap(inner, "")

	assert.Contains(t, e.Stack(), wrappedStackMarker)
	parts := strings.SplitN(e.Stack(), wrappedStackMarker, 2)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[1], "TestWrap_SplicesForeignStack")
}

func TestWrap_UnexportedTypeFallsBackToGeneric(t *testing.T) {
	e := Wrap(errors.New("plain"), "")
	assert.Equal(t, NameGeneric, e.Name)
}

func TestWrap_NonErrorValues(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"string", "a thrown string"},
		{"map", map[string]any{"code": 3}},
		{"nil", nil},
		{"typed nil", (*Error)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Wrap(tt.v, "hook")

			assert.Equal(t, NameUnknown, e.Name)
			assert.Equal(t, "hook", e.Source)
			detail, ok := e.Detail.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.v, detail["unknownObj"])
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitRuntimeError, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitValidationError, GetExitCode(NewValidationError("bad", "", ValidationDetail{})))
	assert.Equal(t, 4, GetExitCode(fmt.Errorf("wrapped: %w", New("x", "", "", WithExitCode(4)))))
}

func TestNewRuntimeError(t *testing.T) {
	cause := errors.New("task failed")
	e := NewRuntimeError("Runtime Error", "orchestrator", cause)

	assert.Equal(t, NameRuntime, e.Name)
	assert.Equal(t, "Runtime Error", e.Message)
	assert.Same(t, cause, e.Cause)
}
