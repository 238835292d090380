package index

import (
	"testing"

	"github.com/cuemby/mgindb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStringIndexAndOnAdd(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))

	e.OnAdd("users:1:email", types.Str("ada@example.com"))

	kind, strVals, _, ok := e.Get("users:email")
	require.True(t, ok)
	assert.Equal(t, KindString, kind)
	assert.Equal(t, "users:1", strVals["ada@example.com"])
}

func TestCreateDuplicateFails(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	err := e.Create("users:email", KindString)
	assert.Error(t, err)
}

func TestCreateInvalidKind(t *testing.T) {
	e := NewEngine()
	err := e.Create("users:email", Kind("bogus"))
	assert.Error(t, err)
}

func TestSetIndexMultiValue(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("posts:tags", KindSet))

	e.OnAdd("posts:1:tags", types.List(types.Str("go"), types.Str("db")))
	e.OnAdd("posts:2:tags", types.List(types.Str("go")))

	_, _, setVals, ok := e.Get("posts:tags")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"posts:1", "posts:2"}, setVals["go"])
	assert.ElementsMatch(t, []string{"posts:1"}, setVals["db"])
}

func TestOnRemoveStringIndex(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	e.OnAdd("users:1:email", types.Str("ada@example.com"))

	e.OnRemove("users:1:email", types.Str("ada@example.com"))

	_, strVals, _, _ := e.Get("users:email")
	assert.Empty(t, strVals)
}

func TestOnRemoveSetIndexPrunesEmptyBucket(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("posts:tags", KindSet))
	e.OnAdd("posts:1:tags", types.Str("go"))

	e.OnRemove("posts:1:tags", types.Str("go"))

	_, _, setVals, _ := e.Get("posts:tags")
	_, exists := setVals["go"]
	assert.False(t, exists, "empty bucket must be pruned")
}

func TestRemoveEntityClearsAllIndicesUnderTopKey(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	require.NoError(t, e.Create("users:tags", KindSet))
	e.OnAdd("users:1:email", types.Str("ada@example.com"))
	e.OnAdd("users:1:tags", types.Str("admin"))

	e.RemoveEntity("users", "1")

	_, strVals, _, _ := e.Get("users:email")
	assert.Empty(t, strVals)
	_, _, setVals, _ := e.Get("users:tags")
	assert.Empty(t, setVals)
}

func TestDelRemovesSingleValue(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	e.OnAdd("users:1:email", types.Str("ada@example.com"))

	require.NoError(t, e.Del("users:email", "ada@example.com"))
	_, strVals, _, _ := e.Get("users:email")
	assert.Empty(t, strVals)
}

func TestDelMissingValueErrors(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	assert.Error(t, e.Del("users:email", "nope@example.com"))
}

func TestFlushRemovesSubtree(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	require.NoError(t, e.Flush("users"))

	_, ok := func() (Kind, bool) {
		k, _, _, ok := e.Get("users:email")
		return k, ok
	}()
	assert.False(t, ok)
}

func TestListReturnsAllIndexPaths(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	require.NoError(t, e.Create("posts:tags", KindSet))

	entries := e.List()
	var paths []string
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	assert.ElementsMatch(t, []string{"users:email", "posts:tags"}, paths)
}

func TestRebuildReproducesState(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Create("users:email", KindString))
	e.OnAdd("users:1:email", types.Str("stale@example.com"))

	e.Rebuild([]Entry{
		{Path: "users:1:email", Value: types.Str("fresh@example.com")},
		{Path: "users:2:email", Value: types.Str("second@example.com")},
	})

	_, strVals, _, ok := e.Get("users:email")
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"fresh@example.com":  "users:1",
		"second@example.com": "users:2",
	}, strVals)
}
