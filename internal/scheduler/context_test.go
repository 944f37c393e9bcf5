package scheduler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/toolbelt/internal/toolerr"
)

func TestSharedContext_SetGet(t *testing.T) {
	sc := NewSharedContext()
	sc.Set("alias", "dev")
	sc.Set("orgId", 42)
	sc.Set("alias", "qa")

	v, ok := sc.Get("alias")
	require.True(t, ok)
	assert.Equal(t, "qa", v)

	s, ok := sc.GetString("orgId")
	require.True(t, ok)
	assert.Equal(t, "42", s)

	_, ok = sc.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"alias", "orgId"}, sc.Keys())
	assert.Equal(t, map[string]any{"alias": "qa", "orgId": 42}, sc.Values())
}

func TestSharedContext_CommandStrings(t *testing.T) {
	sc := NewSharedContext()
	sc.AppendCommand("sf org delete scratch --json")
	sc.AppendCommand("sf org create scratch --json")

	cmds := sc.CommandStrings()
	assert.Equal(t, []string{"sf org delete scratch --json", "sf org create scratch --json"}, cmds)

	cmds[0] = "mutated"
	assert.Equal(t, "sf org delete scratch --json", sc.CommandStrings()[0])
}

func TestSharedContext_Overlay(t *testing.T) {
	parent := NewSharedContext()
	parent.Set("alias", "dev")

	child := parent.Overlay()
	v, ok := child.Get("alias")
	require.True(t, ok)
	assert.Equal(t, "dev", v)

	child.Set("alias", "child")
	child.Set("orgId", "00D")

	v, _ = parent.Get("alias")
	assert.Equal(t, "dev", v, "overlay writes stay local until merged")
	_, ok = parent.Get("orgId")
	assert.False(t, ok)
	assert.Equal(t, []string{"alias", "orgId"}, child.Keys())

	parent.Merge(child)
	v, _ = parent.Get("alias")
	assert.Equal(t, "child", v)
	v, _ = parent.Get("orgId")
	assert.Equal(t, "00D", v)
}

func TestSharedContext_MergeLastWriterWins(t *testing.T) {
	parent := NewSharedContext()
	a, b := parent.Overlay(), parent.Overlay()
	b.Set("k", "from-b")
	a.Set("k", "from-a")

	parent.Merge(a)
	parent.Merge(b)

	v, _ := parent.Get("k")
	assert.Equal(t, "from-b", v)

	parent.Merge(nil)
	parent.Merge(parent)
	assert.Equal(t, []string{"k"}, parent.Keys())
}

func TestSharedContext_ConcurrentAccess(t *testing.T) {
	sc := NewSharedContext()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			sc.Set(key, i)
			sc.Get(key)
			sc.AppendCommand(key)
			_ = sc.Keys()
		}()
	}
	wg.Wait()

	assert.Len(t, sc.Keys(), 5)
	assert.Len(t, sc.CommandStrings(), 50)
}

func TestSharedContext_Expand(t *testing.T) {
	sc := NewSharedContext()
	sc.Set("alias", "dev")
	sc.Set("days", 7)

	got, err := sc.Expand("sf org create scratch -a ${ctx.alias} -y ${ctx.days}")
	require.NoError(t, err)
	assert.Equal(t, "sf org create scratch -a dev -y 7", got)

	got, err = sc.Expand("echo ${HOME} $ctx.alias")
	require.NoError(t, err)
	assert.Equal(t, "echo ${HOME} $ctx.alias", got, "only ${ctx.*} is expanded")

	_, err = sc.Expand("sf org open -o ${ctx.missing}")
	require.Error(t, err)
	assert.True(t, toolerr.HasName(err, toolerr.NameValidation))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestSharedContext_ExpandReadsThroughOverlay(t *testing.T) {
	parent := NewSharedContext()
	parent.Set("alias", "dev")

	got, err := parent.Overlay().Expand("${ctx.alias}")
	require.NoError(t, err)
	assert.Equal(t, "dev", got)
}
