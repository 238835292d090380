package command

import (
	"testing"

	"github.com/cuemby/mgindb/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestSubUnknownSessionErrors(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Execute("SUB users", "missing-sid")
	assert.Contains(t, out, "ERROR")
}

func TestSubSubscribesKnownSession(t *testing.T) {
	p := newTestProcessor(t)
	sess := types.NewSession("sid-1", 8)
	p.Sessions = func(sid string) (*types.Session, bool) {
		if sid == sess.ID {
			return sess, true
		}
		return nil, false
	}

	out := p.Execute("SUB users,orders", sess.ID)
	assert.Equal(t, "OK", out)
	assert.True(t, sess.Subscribed("users"))
	assert.True(t, sess.Subscribed("orders"))

	listed := p.Execute("SUBLIST", "")
	assert.Contains(t, listed, "users")

	out = p.Execute("UNSUB users", sess.ID)
	assert.Equal(t, "OK", out)
	assert.False(t, sess.Subscribed("users"))
}
