package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigSetAndShow(t *testing.T) {
	p := newTestProcessor(t)
	assert.Equal(t, "OK", p.Execute("CONFIG SET QUERY_CACHING_TTL 120", ""))
	out := p.Execute("CONFIG SHOW", "")
	assert.Contains(t, out, "QUERY_CACHING_TTL")
	assert.Contains(t, out, "120")
}

func TestConfigDelProtectedKeyErrors(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("CONFIG DEL HOST", "")
	assert.Contains(t, out, "ERROR")
}

func TestConfigDelUnprotectedKeySucceeds(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("CONFIG SET QUERY_CACHING_TTL 120", "")
	out := p.Execute("CONFIG DEL QUERY_CACHING_TTL", "")
	assert.Equal(t, "OK", out)
}

func TestConfigShardsAddAndDel(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("CONFIG SET SHARDS ADD node1:6380", "")
	assert.Equal(t, "OK", out)

	shown := p.Execute("CONFIG SHOW", "")
	assert.Contains(t, shown, "node1:6380")

	out = p.Execute("CONFIG SET SHARDS DEL node1:6380", "")
	assert.Equal(t, "OK", out)
}

func TestConfigShardsAddTwiceErrors(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("CONFIG SET SHARDS ADD node1:6380", "")
	out := p.Execute("CONFIG SET SHARDS ADD node1:6380", "")
	assert.Contains(t, out, "ERROR")
}

func TestConfigEnableShardingWithoutShardsErrors(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("CONFIG SET SHARDING 1", "")
	assert.Contains(t, out, "ERROR")
}
