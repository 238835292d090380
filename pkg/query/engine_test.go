package query

import (
	"testing"

	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUsers(t *testing.T) (*document.Tree, *index.Engine) {
	t.Helper()
	tree := document.NewTree()
	tree.Set("users:1:name", types.Str("alice"))
	tree.Set("users:1:age", types.Int(30))
	tree.Set("users:2:name", types.Str("bob"))
	tree.Set("users:2:age", types.Int(20))
	tree.Set("users:3:name", types.Str("carol"))
	tree.Set("users:3:age", types.Int(20))
	return tree, index.NewEngine()
}

func TestRunCollectionNoConditions(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users")
	assert.Len(t, res.Rows, 3)
}

func TestRunEntityLookup(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users:1")
	require.Len(t, res.Rows, 1)
	name, ok := res.Rows[0].O.Get("name")
	require.True(t, ok)
	assert.Equal(t, "alice", name.S)
	key, ok := res.Rows[0].O.Get("key")
	require.True(t, ok)
	assert.Equal(t, "1", key.S)
}

func TestRunEntityLookupMissing(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users:99")
	assert.Len(t, res.Rows, 0)
}

func TestRunScanFallbackNoIndex(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users WHERE age=20")
	assert.Len(t, res.Rows, 2)
	assert.Nil(t, res.Plan)
}

func TestRunIndexedEvaluation(t *testing.T) {
	tree, idx := seedUsers(t)
	require.NoError(t, idx.Create("users:age", index.KindString))
	idx.OnAdd("users:1:age", types.Int(30))
	idx.OnAdd("users:2:age", types.Int(20))
	idx.OnAdd("users:3:age", types.Int(20))

	// A string index maps each value to one entity: the later OnAdd
	// for 20 (users:3) replaces users:2.
	ex := NewExecutor(tree, idx)
	res := ex.Run("users WHERE age=20")
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Plan, 1)
	assert.Equal(t, "index", res.Plan[0].Mode)
	names := []string{}
	for _, row := range res.Rows {
		n, _ := row.O.Get("name")
		names = append(names, n.S)
	}
	assert.ElementsMatch(t, []string{"carol"}, names)
}

func TestRunIndexedEvaluationSetKind(t *testing.T) {
	tree, idx := seedUsers(t)
	tree.Set("users:1:tags", types.List(types.Str("x"), types.Str("y")))
	require.NoError(t, idx.Create("users:tags", index.KindSet))
	idx.OnAdd("users:1:tags", types.List(types.Str("x"), types.Str("y")))

	ex := NewExecutor(tree, idx)
	res := ex.Run("users WHERE tags=x")
	require.Len(t, res.Rows, 1)
	name, _ := res.Rows[0].O.Get("name")
	assert.Equal(t, "alice", name.S)
}

func TestOrderByAndLimit(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users ORDERBY(age,ASC) LIMIT(2)")
	require.Len(t, res.Rows, 2)
	first, _ := res.Rows[0].O.Get("age")
	second, _ := res.Rows[1].O.Get("age")
	assert.Equal(t, int64(20), first.I)
	assert.Equal(t, int64(20), second.I)
}

func TestGroupBy(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users GROUPBY(age)")
	require.NotNil(t, res.Groups)
	assert.Len(t, res.Groups["20"], 2)
	assert.Len(t, res.Groups["30"], 1)
}

func TestIncludeProjection(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users:1 INCLUDE(name)")
	require.Len(t, res.Rows, 1)
	_, hasAge := res.Rows[0].O.Get("age")
	name, hasName := res.Rows[0].O.Get("name")
	assert.False(t, hasAge)
	assert.True(t, hasName)
	assert.Equal(t, "alice", name.S)
}

func TestExcludeProjection(t *testing.T) {
	tree, idx := seedUsers(t)
	ex := NewExecutor(tree, idx)

	res := ex.Run("users:1 EXCLUDE(age)")
	require.Len(t, res.Rows, 1)
	_, hasAge := res.Rows[0].O.Get("age")
	_, hasName := res.Rows[0].O.Get("name")
	assert.False(t, hasAge)
	assert.True(t, hasName)
}

func TestJoinWithIndex(t *testing.T) {
	tree, idx := seedUsers(t)
	tree.Set("posts:10:author_id", types.Str("1"))
	tree.Set("posts:10:title", types.Str("hello"))
	tree.Set("users:1:author_id", types.Str("1"))
	require.NoError(t, idx.Create("posts:author_id", index.KindSet))
	idx.OnAdd("posts:10:author_id", types.Str("1"))

	ex := NewExecutor(tree, idx)
	res := ex.Run("users:1 JOIN(posts,author_id)")
	require.Len(t, res.Rows, 1)
	posts, ok := res.Rows[0].O.Get("posts")
	require.True(t, ok)
	require.True(t, posts.IsList())
	require.Len(t, posts.L, 1)
	title, _ := posts.L[0].O.Get("title")
	assert.Equal(t, "hello", title.S)
}
