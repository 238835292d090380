package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTTLStoreSweepRemovesExpired(t *testing.T) {
	store := NewTTLStore()
	store.Set("users:1:session", 100)
	store.Set("users:2:session", 200)

	expired := store.Sweep(150)
	assert.ElementsMatch(t, []string{"users:1:session"}, expired)
	assert.Equal(t, 1, store.Len())
}

func TestTTLStoreSweepExactBoundary(t *testing.T) {
	store := NewTTLStore()
	store.Set("k", 100)

	expired := store.Sweep(100)
	assert.ElementsMatch(t, []string{"k"}, expired)
}

func TestTTLStoreClear(t *testing.T) {
	store := NewTTLStore()
	store.Set("k", 100)
	store.Clear("k")

	_, ok := store.Get("k")
	assert.False(t, ok)
}

func TestTTLStoreRestore(t *testing.T) {
	store := NewTTLStore()
	store.Restore(map[string]int64{"a": 1, "b": 2})

	assert.Equal(t, 2, store.Len())
	exp, ok := store.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), exp)
}
