package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGetScalarViaQuery(t *testing.T) {
	p := newTestProcessor(t)
	assert.Equal(t, "OK", p.Execute("SET users:1:name Alice", ""))
	out := p.Execute("QUERY users:1", "")
	assert.Contains(t, out, "Alice")
}

func TestSetJSONObjectRecursesPerField(t *testing.T) {
	p := newTestProcessor(t)
	assert.Equal(t, "OK", p.Execute(`SET users:1 {"name":"Bob","age":30}`, ""))
	out := p.Execute("QUERY users:1", "")
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "30")
}

func TestSetWildcardUpdatesEveryEntity(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:active 1", "")
	p.Execute("SET users:2:active 1", "")
	out := p.Execute("SET users:*:active 0", "")
	assert.Contains(t, out, "Updated 2 entries.")
}

func TestDelRemovesScalarField(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	assert.Equal(t, "OK", p.Execute("DEL users:1:name", ""))
	out := p.Execute("QUERY users:1", "")
	assert.NotContains(t, out, "Alice")
}

func TestDelMissingKeyErrors(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("DEL users:1:name", "")
	assert.Contains(t, out, "ERROR")
}

func TestIncrCreatesIntegerCounter(t *testing.T) {
	p := newTestProcessor(t)
	assert.Equal(t, "OK", p.Execute("INCR counter:hits 1", ""))
	assert.Equal(t, "OK", p.Execute("INCR counter:hits 2", ""))
	out := p.Execute("QUERY counter", "")
	assert.Contains(t, out, "3")
}

func TestIncrWithFloatAmountProducesFloat(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("INCR balance:acct1 1.5", "")
	out := p.Execute("QUERY balance", "")
	assert.Contains(t, out, "1.5")
}

func TestDecrSubtractsAmount(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("INCR counter:hits 10", "")
	p.Execute("DECR counter:hits 4", "")
	out := p.Execute("QUERY counter", "")
	assert.Contains(t, out, "6")
}

func TestRenameSpecificField(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	out := p.Execute("RENAME users:1:name TO fullname", "")
	assert.Contains(t, out, "1 key renamed")
	result := p.Execute("QUERY users:1", "")
	assert.Contains(t, result, "fullname")
	assert.NotContains(t, result, `"name"`)
}

func TestRenameMissingKeyReportsNothing(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	out := p.Execute("RENAME users:1:missing TO other", "")
	assert.Equal(t, "ERROR: Key not found to rename.", out)
}

func TestKeysListsTopLevel(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	p.Execute("SET sessions:1:ip 127.0.0.1", "")
	out := p.Execute("KEYS", "")
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "sessions")
}

func TestCountReusesQueryPipeline(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	p.Execute("SET users:2:name Bob", "")
	out := p.Execute("COUNT users", "")
	assert.Equal(t, "2", out)
}

func TestFlushAllClearsTreeIndexAndCache(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	out := p.Execute("FLUSHALL", "")
	assert.Contains(t, out, "flushed")
	assert.Equal(t, "[]", p.Execute("KEYS", ""))
	assert.False(t, p.Dirty())
}
