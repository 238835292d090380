package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryReturnsRowsAndCaches(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	p.Execute("SET users:2:name Bob", "")

	first := p.Execute("QUERY users", "")
	assert.Contains(t, first, "Alice")
	assert.Contains(t, first, "Bob")

	second := p.Execute("QUERY users", "")
	assert.Equal(t, first, second)
}

func TestQueryCacheInvalidatesOnMutation(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	p.Execute("QUERY users", "")
	p.Execute("SET users:2:name Bob", "")

	out := p.Execute("QUERY users", "")
	assert.Contains(t, out, "Bob")
}

func TestIndicesCreateBackfillsExistingData(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	p.Execute("SET users:2:name Bob", "")

	out := p.Execute("INDICES CREATE users:name string", "")
	require.Equal(t, "Index created successfully.", out)

	got := p.Execute("INDICES GET users:name", "")
	assert.Contains(t, got, "Alice")
	assert.Contains(t, got, "Bob")
}

func TestIndicesListShowsCreatedIndex(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("INDICES CREATE users:name string", "")
	out := p.Execute("INDICES LIST", "")
	assert.Contains(t, out, "users:name")
	assert.Contains(t, out, "string")
}

func TestIndicesCreateDuplicateErrors(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("INDICES CREATE users:name string", "")
	out := p.Execute("INDICES CREATE users:name string", "")
	assert.Contains(t, out, "ERROR")
}

func TestIndicesFlushRemovesIndex(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("INDICES CREATE users:name string", "")
	out := p.Execute("INDICES FLUSH users:name", "")
	assert.Contains(t, out, "flushed")
	assert.Contains(t, p.Execute("INDICES GET users:name", ""), "ERROR")
}
