package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/toolbelt/internal/scheduler"
	"github.com/aristath/toolbelt/internal/toolerr"
)

func buildTitles(t *testing.T, doc string) ([]string, error) {
	t.Helper()
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	units, err := f.Build(scheduler.RetryConfig{})
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(units))
	for i, u := range units {
		titles[i] = u.Title()
	}
	return titles, nil
}

func TestBuild_NeedsReorderTasks(t *testing.T) {
	titles, err := buildTitles(t, `name: x
tasks:
  - title: push
    needs: [org]
    command: echo push
  - title: lint
    command: echo lint
  - id: org
    title: create org
    command: echo org
  - title: test
    needs: [org]
    command: echo test
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"lint", "create org", "push", "test"}, titles)
}

func TestBuild_FileOrderKeptWithoutNeeds(t *testing.T) {
	titles, err := buildTitles(t, "name: x\ntasks:\n  - title: b\n    command: echo b\n  - title: a\n    command: echo a\n  - title: c\n    command: echo c\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, titles)
}

func TestBuild_NeedsErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{
			name:    "cycle",
			doc:     "name: x\ntasks:\n  - id: a\n    title: a\n    needs: [b]\n    command: echo a\n  - id: b\n    title: b\n    needs: [a]\n    command: echo b\n",
			message: "cycle",
		},
		{
			name:    "unknown need",
			doc:     "name: x\ntasks:\n  - title: a\n    needs: [org]\n    command: echo a\n",
			message: `unknown task "org"`,
		},
		{
			name:    "self need",
			doc:     "name: x\ntasks:\n  - id: a\n    title: a\n    needs: [a]\n    command: echo a\n",
			message: "needs itself",
		},
		{
			name:    "duplicate id",
			doc:     "name: x\ntasks:\n  - id: a\n    title: a\n    command: echo a\n  - id: a\n    title: b\n    command: echo b\n",
			message: `share the id "a"`,
		},
		{
			name:    "need in same concurrent stage",
			doc:     "name: x\ntasks:\n  - id: a\n    title: a\n    concurrent: true\n    command: echo a\n  - title: b\n    needs: [a]\n    concurrent: true\n    command: echo b\n",
			message: "both run concurrently",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTitles(t, tt.doc)
			require.Error(t, err)
			assert.True(t, toolerr.HasName(err, toolerr.NameValidation))
			assert.Equal(t, toolerr.ExitValidationError, toolerr.GetExitCode(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestBuild_CycleKeepsToposortCause(t *testing.T) {
	_, err := buildTitles(t, "name: x\ntasks:\n  - title: root\n    command: echo root\n  - id: a\n    title: a\n    needs: [b]\n    command: echo a\n  - id: b\n    title: b\n    needs: [a]\n    command: echo b\n")
	require.Error(t, err)

	var te *toolerr.Error
	require.ErrorAs(t, err, &te)
	require.NotNil(t, te.Cause)
	assert.Contains(t, te.Cause.Error(), "cycle")
	require.NotNil(t, te.Validation)
	assert.Equal(t, `"a", "b"`, te.Validation.Received)
}

func TestBuild_ConcurrentNeedAcrossStages(t *testing.T) {
	titles, err := buildTitles(t, `name: x
tasks:
  - id: a
    title: a
    concurrent: true
    command: echo a
  - title: gate
    command: echo gate
  - title: b
    needs: [a]
    concurrent: true
    command: echo b
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "gate", "b"}, titles)
}
