package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/cuemby/mgindb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeNotifyExactKey(t *testing.T) {
	b := NewBroker()
	sess := types.NewSession("sid-1", 10)
	b.Subscribe(sess, "users:1:name")

	b.Notify("users:1:name", types.Str("ada"))

	select {
	case msg := <-sess.Send:
		var n notification
		require.NoError(t, json.Unmarshal(msg, &n))
		assert.Equal(t, "users:1:name", n.Key)
	default:
		t.Fatal("expected a notification")
	}
}

func TestNotifyWildcardPrefix(t *testing.T) {
	b := NewBroker()
	sess := types.NewSession("sid-1", 10)
	b.Subscribe(sess, "users:*")

	b.Notify("users:1:name", types.Str("ada"))

	select {
	case <-sess.Send:
	default:
		t.Fatal("expected wildcard subscriber to be notified")
	}
}

func TestNotifyTwoDeepWildcard(t *testing.T) {
	b := NewBroker()
	sess := types.NewSession("sid-1", 10)
	b.Subscribe(sess, "users:*:*")

	b.Notify("users:1:name", types.Str("ada"))

	select {
	case <-sess.Send:
	default:
		t.Fatal("expected two-deep wildcard subscriber to be notified")
	}
}

func TestUnsubscribeStopsNotification(t *testing.T) {
	b := NewBroker()
	sess := types.NewSession("sid-1", 10)
	b.Subscribe(sess, "users:1:name")
	b.Unsubscribe(sess, "users:1:name")

	b.Notify("users:1:name", types.Str("ada"))

	select {
	case <-sess.Send:
		t.Fatal("did not expect a notification after unsubscribe")
	default:
	}
}

func TestMonitorSubscription(t *testing.T) {
	b := NewBroker()
	sess := types.NewSession("sid-1", 10)
	b.Subscribe(sess, "MONITOR")

	b.NotifyMonitor("SET foo bar", "sid-2")

	select {
	case msg := <-sess.Send:
		var m monitorMessage
		require.NoError(t, json.Unmarshal(msg, &m))
		assert.Equal(t, "SET foo bar", m.Command)
		assert.Equal(t, "sid-2", m.Sid)
	default:
		t.Fatal("expected monitor notification")
	}
}

func TestNodeRoundRobin(t *testing.T) {
	b := NewBroker()
	a := types.NewSession("node-a", 10)
	c := types.NewSession("node-b", 10)
	b.Subscribe(a, "NODE")
	b.Subscribe(c, "NODE")

	b.NotifyNode("TX", "{}", "", "", NodeAll)
	b.NotifyNode("TX", "{}", "", "", NodeAll)

	assert.Equal(t, 2, len(a.Send)+len(c.Send), "two round-robin deliveries total")
	assert.Equal(t, 1, len(a.Send), "round robin should alternate targets")
	assert.Equal(t, 1, len(c.Send), "round robin should alternate targets")
}

func TestRemoveSessionClearsAllSets(t *testing.T) {
	b := NewBroker()
	sess := types.NewSession("sid-1", 10)
	b.Subscribe(sess, "users:1:name", "MONITOR", "NODE")

	b.RemoveSession(sess)

	assert.Empty(t, b.List())
	b.NotifyMonitor("anything", "sid-2")
	select {
	case <-sess.Send:
		t.Fatal("session should have been fully removed")
	default:
	}
}
