package command

import (
	"os"
	"testing"

	"github.com/cuemby/mgindb/pkg/cache"
	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/persistence"
	"github.com/cuemby/mgindb/pkg/pubsub"
	"github.com/cuemby/mgindb/pkg/scheduler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(dir + "/conf.json")
	require.NoError(t, err)
	tree := document.NewTree()
	ttl := document.NewTTLStore()
	idx := index.NewEngine()
	c := cache.New(60)
	broker := pubsub.NewBroker()
	persist := persistence.NewStore(dir)
	sched := scheduler.NewManager(func(string) string { return "" }, func() bool { return false }, scheduler.TickHooks{}, 60)
	return NewProcessor(tree, ttl, idx, c, broker, cfg, sched, persist, zerolog.New(os.Stderr))
}

func TestExecuteUnknownVerb(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("NOPE foo", "")
	assert.Contains(t, out, "ERROR")
}

func TestExecuteStripsFormattingHint(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("-f KEYS", "")
	assert.Equal(t, "[]", out)
}

func TestExecuteSetThenKeys(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("SET users:1:name Alice", "")
	assert.Equal(t, "OK", out)
	assert.Equal(t, `["users"]`, p.Execute("KEYS", ""))
	assert.False(t, p.Dirty(), "synchronous persist should clear the dirty flag when the scheduler is inactive")
}

func TestExplainQueryReturnsPlan(t *testing.T) {
	p := newTestProcessor(t)
	p.Execute("SET users:1:name Alice", "")
	out := p.Execute("QUERY -f EXPLAIN users", "")
	assert.Contains(t, out, "plan")
}
