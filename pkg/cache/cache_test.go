package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGetHit(t *testing.T) {
	c := New(60)
	c.Put("QUERY users WHERE age>10", "users", `[{"age":20}]`, 1000)

	result, ok := c.Get("QUERY users WHERE age>10", 1010)
	assert.True(t, ok)
	assert.Equal(t, `[{"age":20}]`, result)
}

func TestGetMiss(t *testing.T) {
	c := New(60)
	_, ok := c.Get("nope", 1000)
	assert.False(t, ok)
}

func TestGetExpired(t *testing.T) {
	c := New(60)
	c.Put("QUERY users", "users", "[]", 1000)

	_, ok := c.Get("QUERY users", 1061)
	assert.False(t, ok)
}

func TestInvalidateExactKey(t *testing.T) {
	c := New(60)
	c.Put("QUERY users", "users", "[]", 1000)

	c.Invalidate("users")

	_, ok := c.Get("QUERY users", 1000)
	assert.False(t, ok)
}

func TestInvalidateSubstringMatch(t *testing.T) {
	c := New(60)
	c.Put("QUERY users:1:posts", "users:1:posts", "[]", 1000)

	c.Invalidate("users")

	_, ok := c.Get("QUERY users:1:posts", 1000)
	assert.False(t, ok, "broader key containing the mutated key must be dropped")
}

func TestInvalidateUnrelatedKeyUnaffected(t *testing.T) {
	c := New(60)
	c.Put("QUERY posts", "posts", "[]", 1000)

	c.Invalidate("users")

	_, ok := c.Get("QUERY posts", 1000)
	assert.True(t, ok)
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	c := New(60)
	c.Put("A", "users", "[]", 1000)
	c.Put("B", "users", "[]", 2000)

	c.Sweep(1061)

	_, okA := c.Get("A", 1061)
	_, okB := c.Get("B", 1061)
	assert.False(t, okA)
	assert.True(t, okB)
}

func TestFlushClearsEverything(t *testing.T) {
	c := New(60)
	c.Put("A", "users", "[]", 1000)
	c.Flush()
	assert.Equal(t, 0, c.Len())
}
