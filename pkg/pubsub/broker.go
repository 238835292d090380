// Package pubsub implements the engine's notification fan-out, per
// spec.md §3.5 and §4.9: per-key subscriber sets, the MONITOR/NODE/
// NODE_LITE special channels, and wildcard-prefix notification on
// mutation. The subscriber-set and broadcast shape is grounded on the
// teacher's pkg/events Broker; node round-robin and the wildcard
// notification set are new, grounded on
// original_source/mgindb/sub_pub_manager.py.
package pubsub

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/mgindb/pkg/types"
)

// NodeType selects which node subscriber population to target.
type NodeType string

const (
	NodeAll  NodeType = "ALL"
	NodeFull NodeType = "FULL"
	NodeLite NodeType = "LITE"
)

// Broker owns every process-wide subscription set described in
// spec.md §3.5: per-key subscribers, monitor subscribers, and the two
// blockchain node subscriber populations.
type Broker struct {
	mu sync.RWMutex

	byKey       map[string]map[string]*types.Session
	monitor     map[string]*types.Session
	nodeFull    map[string]*types.Session
	nodeLite    map[string]*types.Session
	lastNodeIdx int
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		byKey:    make(map[string]map[string]*types.Session),
		monitor:  make(map[string]*types.Session),
		nodeFull: make(map[string]*types.Session),
		nodeLite: make(map[string]*types.Session),
	}
}

// Subscribe adds sess to every key in keys, dispatching MONITOR, NODE
// and NODE_LITE to their dedicated populations per spec.md §4.9.
func (b *Broker) Subscribe(sess *types.Session, keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		switch key {
		case "MONITOR":
			b.monitor[sess.ID] = sess
		case "NODE":
			b.nodeFull[sess.ID] = sess
		case "NODE_LITE":
			b.nodeLite[sess.ID] = sess
		default:
			set, ok := b.byKey[key]
			if !ok {
				set = make(map[string]*types.Session)
				b.byKey[key] = set
			}
			set[sess.ID] = sess
		}
		sess.Subscribe(key)
	}
}

// Unsubscribe mirrors Subscribe.
func (b *Broker) Unsubscribe(sess *types.Session, keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		switch key {
		case "MONITOR":
			delete(b.monitor, sess.ID)
		case "NODE":
			delete(b.nodeFull, sess.ID)
		case "NODE_LITE":
			delete(b.nodeLite, sess.ID)
		default:
			if set, ok := b.byKey[key]; ok {
				delete(set, sess.ID)
				if len(set) == 0 {
					delete(b.byKey, key)
				}
			}
		}
		sess.Unsubscribe(key)
	}
}

// RemoveSession clears every trace of sess from the broker, called on
// websocket disconnect.
func (b *Broker) RemoveSession(sess *types.Session) {
	b.Unsubscribe(sess, sess.Keys()...)
	b.mu.Lock()
	delete(b.monitor, sess.ID)
	delete(b.nodeFull, sess.ID)
	delete(b.nodeLite, sess.ID)
	b.mu.Unlock()
}

// List returns every currently subscribed key and its subscriber sids,
// for the SUBLIST verb.
func (b *Broker) List() map[string][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]string, len(b.byKey))
	for key, set := range b.byKey {
		sids := make([]string, 0, len(set))
		for sid := range set {
			sids = append(sids, sid)
		}
		out[key] = sids
	}
	return out
}

// wildcardKeys produces every prefix pattern spec.md §4.9 notifies on
// for a mutated path: one-level wildcards at each depth plus every
// two-deep wildcard, exactly as original_source/mgindb's
// notify_subscribers builds its candidate key set.
func wildcardKeys(path string) []string {
	parts := strings.Split(path, ":")
	out := make([]string, 0, 2*len(parts))
	for i := 1; i <= len(parts); i++ {
		out = append(out, strings.Join(parts[:i], ":")+":*")
	}
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], ":")+":*:*")
	}
	return out
}

type notification struct {
	Key  string      `json:"key"`
	Data types.Value `json:"data"`
}

// Notify delivers {key, data} to every session subscribed to path
// itself or to any wildcard prefix of path, per spec.md §4.9.
func (b *Broker) Notify(path string, data types.Value) {
	b.mu.RLock()
	recipients := make(map[string]*types.Session)
	if set, ok := b.byKey[path]; ok {
		for sid, sess := range set {
			recipients[sid] = sess
		}
	}
	for _, key := range wildcardKeys(path) {
		if set, ok := b.byKey[key]; ok {
			for sid, sess := range set {
				recipients[sid] = sess
			}
		}
	}
	b.mu.RUnlock()

	if len(recipients) == 0 {
		return
	}
	payload, err := json.Marshal(notification{Key: path, Data: data})
	if err != nil {
		return
	}
	for _, sess := range recipients {
		deliver(sess, payload)
	}
}

type monitorMessage struct {
	Command string `json:"command"`
	Sid     string `json:"sid"`
}

// NotifyMonitor delivers the executed command line to every MONITOR
// subscriber, with the sid that issued it.
func (b *Broker) NotifyMonitor(commandLine, sid string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.monitor) == 0 {
		return
	}
	payload, err := json.Marshal(monitorMessage{Command: commandLine, Sid: sid})
	if err != nil {
		return
	}
	for _, sess := range b.monitor {
		deliver(sess, payload)
	}
}

type nodeMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	RequestID string `json:"request_id,omitempty"`
	Sid       string `json:"sid,omitempty"`
}

func (b *Broker) nodePopulation(nodeType NodeType) []*types.Session {
	switch nodeType {
	case NodeFull:
		out := make([]*types.Session, 0, len(b.nodeFull))
		for _, s := range b.nodeFull {
			out = append(out, s)
		}
		return out
	case NodeLite:
		out := make([]*types.Session, 0, len(b.nodeLite))
		for _, s := range b.nodeLite {
			out = append(out, s)
		}
		return out
	default:
		out := make([]*types.Session, 0, len(b.nodeFull)+len(b.nodeLite))
		for _, s := range b.nodeFull {
			out = append(out, s)
		}
		for _, s := range b.nodeLite {
			out = append(out, s)
		}
		return out
	}
}

// NotifyNode round-robins a single node message among the requested
// node subscriber population, per notify_node in
// original_source/mgindb/sub_pub_manager.py.
func (b *Broker) NotifyNode(msgType, data, requestID, sid string, nodeType NodeType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	population := b.nodePopulation(nodeType)
	if len(population) == 0 {
		return
	}
	sort.Slice(population, func(i, j int) bool { return population[i].ID < population[j].ID })
	b.lastNodeIdx = (b.lastNodeIdx + 1) % len(population)
	payload, err := json.Marshal(nodeMessage{Type: msgType, Data: data, RequestID: requestID, Sid: sid})
	if err != nil {
		return
	}
	deliver(population[b.lastNodeIdx], payload)
}

// NotifyNodes broadcasts a node message to every subscriber in the
// requested population, per notify_nodes.
func (b *Broker) NotifyNodes(msgType, data, requestID, sid string, nodeType NodeType) {
	b.mu.RLock()
	population := b.nodePopulation(nodeType)
	b.mu.RUnlock()
	if len(population) == 0 {
		return
	}
	payload, err := json.Marshal(nodeMessage{Type: msgType, Data: data, RequestID: requestID, Sid: sid})
	if err != nil {
		return
	}
	for _, sess := range population {
		deliver(sess, payload)
	}
}

// deliver writes payload to a session's outbound queue without
// blocking; a full queue drops the message rather than stall the
// broker, matching the teacher's broadcast default-case skip.
func deliver(sess *types.Session, payload []byte) {
	defer func() { recover() }()
	select {
	case sess.Send <- payload:
	default:
	}
}
