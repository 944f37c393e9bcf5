package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/toolbelt/internal/toolerr"
)

func funcUnit(t *testing.T, title string, concurrent bool) Unit {
	t.Helper()
	u, err := NewFuncTask(title, concurrent, func(context.Context, *SharedContext) error { return nil })
	require.NoError(t, err)
	return u
}

func TestPlan_GroupsConsecutiveConcurrentUnits(t *testing.T) {
	units := []Unit{
		funcUnit(t, "delete org", false),
		funcUnit(t, "create org", false),
		funcUnit(t, "deploy a", true),
		funcUnit(t, "deploy b", true),
		funcUnit(t, "deploy c", true),
		funcUnit(t, "assign perms", false),
		funcUnit(t, "seed a", true),
	}

	stages, err := Plan(units)
	require.NoError(t, err)
	require.Len(t, stages, 5)

	assert.Equal(t, []string{"delete org"}, stages[0].Titles())
	assert.Equal(t, []string{"create org"}, stages[1].Titles())
	assert.Equal(t, []string{"deploy a", "deploy b", "deploy c"}, stages[2].Titles())
	assert.True(t, stages[2].Concurrent)
	assert.Equal(t, []string{"assign perms"}, stages[3].Titles())
	assert.False(t, stages[3].Concurrent)
	assert.Equal(t, []string{"seed a"}, stages[4].Titles())

	for i, s := range stages {
		assert.Equal(t, i, s.Index)
	}
	assert.Equal(t, []int{2, 3, 4}, stages[2].Seqs)
	assert.Equal(t, []int{6}, stages[4].Seqs)
}

func TestPlan_SameUnitRegisteredTwice(t *testing.T) {
	u := funcUnit(t, "deploy", true)
	stages, err := Plan([]Unit{u, u})
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, []int{0, 1}, stages[0].Seqs)
}

func TestStage_SeqDefaultsToPosition(t *testing.T) {
	s := Stage{Units: []Unit{funcUnit(t, "a", true), funcUnit(t, "b", true)}}
	assert.Equal(t, 0, s.Seq(0))
	assert.Equal(t, 1, s.Seq(1))
}

func TestPlan_SequentialOnly(t *testing.T) {
	stages, err := Plan([]Unit{funcUnit(t, "a", false), funcUnit(t, "b", false)})
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.False(t, stages[0].Concurrent)
}

func TestPlan_Empty(t *testing.T) {
	stages, err := Plan(nil)
	require.NoError(t, err)
	assert.Empty(t, stages)
}

func TestPlan_NilUnit(t *testing.T) {
	_, err := Plan([]Unit{funcUnit(t, "a", false), nil})
	require.Error(t, err)
	assert.True(t, toolerr.HasName(err, toolerr.NameValidation))
	assert.Contains(t, err.Error(), "unit 1")
}
