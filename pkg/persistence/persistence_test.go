package persistence

import (
	"testing"

	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadDataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	obj := types.NewObject()
	obj.Set("hits", types.Int(3))
	snapshot := types.ObjectValue(obj)

	require.NoError(t, store.SaveData(snapshot))

	loaded, err := store.LoadData()
	require.NoError(t, err)
	v, ok := loaded.O.Get("hits")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.I)
}

func TestLoadDataMissingFileReturnsEmptyObject(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	loaded, err := store.LoadData()
	require.NoError(t, err)
	assert.True(t, loaded.IsObject())
	assert.Equal(t, 0, loaded.O.Len())
}

func TestSaveLoadIndicesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	eng := index.NewEngine()
	require.NoError(t, eng.Create("users:age", index.KindString))
	eng.OnAdd("users:1:age", types.Int(30))
	require.NoError(t, eng.Create("users:tags", index.KindSet))
	eng.OnAdd("users:1:tags", types.List(types.Str("a"), types.Str("b")))

	require.NoError(t, store.SaveIndices(eng))

	loaded, err := store.LoadIndices()
	require.NoError(t, err)

	kind, strVals, _, ok := loaded.Get("users:age")
	require.True(t, ok)
	assert.Equal(t, index.KindString, kind)
	assert.Equal(t, "users:1", strVals["30"])

	kind2, _, setVals, ok2 := loaded.Get("users:tags")
	require.True(t, ok2)
	assert.Equal(t, index.KindSet, kind2)
	assert.Contains(t, setVals["a"], "users:1")
	assert.Contains(t, setVals["b"], "users:1")
}

func TestSaveLoadSchedulerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	reg := types.SchedulerRegistry{
		"* * * * *": {
			"counter:hits": &types.ScheduledTask{
				Key: "counter:hits", Cron: "* * * * *", Command: "SET counter:hits 1",
			},
		},
	}
	require.NoError(t, store.SaveScheduler(reg))

	loaded, err := store.LoadScheduler()
	require.NoError(t, err)
	require.Contains(t, loaded, "* * * * *")
	assert.Equal(t, "SET counter:hits 1", loaded["* * * * *"]["counter:hits"].Command)
}

func TestSaveLoadPendingTransactionsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	txs := []PendingTransaction{{Sender: "a", Receiver: "b", Amount: "10", Symbol: "MGX"}}
	require.NoError(t, store.SavePendingTransactions(txs))

	loaded, err := store.LoadPendingTransactions()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].Sender)
}
