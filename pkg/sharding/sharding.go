// Package sharding implements key-hash routing across a fixed set of
// peer instances and the four-step reshard protocol described in
// spec.md §4.12/§8.5: broadcast, merge, redistribute, or roll back if
// any peer failed to respond. Grounded on
// original_source/mgindb/sharding_manager.py's ShardingManager.
package sharding

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/cuemby/mgindb/pkg/backup"
	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ShardFor deterministically picks which entry of shards owns key, by
// reducing a sha256 digest of key modulo the shard count, per
// get_shard.
func ShardFor(key string, shards []string) string {
	if len(shards) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	n := new(big.Int).SetBytes(sum[:])
	idx := new(big.Int).Mod(n, big.NewInt(int64(len(shards))))
	return shards[idx.Int64()]
}

// wsConn is the subset of *websocket.Conn the peer client needs,
// narrowed so tests can swap in a fake without opening a real socket.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a peer channel to uri ("host:port"). The default talks
// to another mgindb instance's wsserver over the same protocol a
// browser client would use.
type Dialer func(uri string) (wsConn, error)

func defaultDialer(uri string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+uri, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type indexDump struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type reshardPayload struct {
	Data    types.Value `json:"data"`
	Indices []indexDump `json:"indices"`
}

// Manager routes writes to the shard that owns their key and drives
// resharding. ApplyLocal runs a command against this node's own
// command.Processor; it is a function field rather than an interface
// to avoid an import cycle with pkg/command, which holds the
// corresponding CheckSharding/Reshard hook fields.
type Manager struct {
	Config *config.Store
	Tree   *document.Tree
	Index  *index.Engine
	Backup *backup.Manager
	Log    zerolog.Logger

	ApplyLocal func(command string) string

	Dial Dialer
}

// NewManager wires a Manager against the engine's shared state.
func NewManager(cfg *config.Store, tree *document.Tree, idx *index.Engine, bk *backup.Manager, logger zerolog.Logger) *Manager {
	return &Manager{Config: cfg, Tree: tree, Index: idx, Backup: bk, Log: logger, Dial: defaultDialer}
}

func (m *Manager) dial(uri string) (wsConn, error) {
	if m.Dial != nil {
		return m.Dial(uri)
	}
	return defaultDialer(uri)
}

func (m *Manager) auth() string {
	payload := map[string]string{
		"username": m.Config.Get("USERNAME"),
		"password": m.Config.Get("PASSWORD"),
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// sendToShard opens a channel to uri, completes the {username,
// password} handshake, and forwards command, per send_to_shard.
func (m *Manager) sendToShard(uri, command string) (string, error) {
	conn, err := m.dial(uri)
	if err != nil {
		return "", fmt.Errorf("sharding: dial %s: %w", uri, err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(m.auth())); err != nil {
		return "", err
	}
	_, authReply, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if !strings.Contains(string(authReply), "Welcome!") {
		return "", fmt.Errorf("sharding: %s refused authentication", uri)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(command)); err != nil {
		return "", err
	}
	_, reply, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(reply), nil
}

func (m *Manager) shardingEnabled() bool {
	return m.Config != nil && m.Config.GetBool("SHARDING")
}

func (m *Manager) isMaster() bool {
	return m.Config.Get("SHARDING_TYPE") == "MASTER"
}

func (m *Manager) selfHost() string {
	return m.Config.Get("HOST")
}

func (m *Manager) portSuffix() string {
	return m.Config.Get("PORT")
}

// CheckSharding implements command.Processor.CheckSharding: "LOCAL"
// when shardKey belongs to this instance or sharding/the master role
// does not apply, otherwise the peer's reply (or "ERROR" if the peer
// channel failed), per check_sharding.
func (m *Manager) CheckSharding(verb, command, shardKey string) string {
	if !m.shardingEnabled() {
		return "LOCAL"
	}
	shards := m.Config.GetList("SHARDS")
	if len(shards) == 0 {
		return "LOCAL"
	}
	owner := ShardFor(shardKey, shards)
	if !m.isMaster() || owner == m.selfHost() {
		return "LOCAL"
	}
	reply, err := m.sendToShard(owner+":"+m.portSuffix(), command)
	if err != nil {
		m.Log.Error().Err(err).Str("shard", owner).Msg("proxy command to shard")
		return "ERROR"
	}
	if reply == "" {
		return "ERROR"
	}
	return reply
}

// Reshard implements command.Processor.Reshard, per reshard_command:
// every node first snapshots and backs up its local state. A
// non-master node then hands its data and index definitions to
// whichever master asked ("dump and clear"); a master collects every
// peer's dump, merges it with its own, clears all local state, and
// redistributes the merged result by key ownership.
func (m *Manager) Reshard() string {
	if !m.shardingEnabled() {
		return "ERROR: Sharding is not enabled"
	}
	if m.Backup != nil {
		m.Backup.Create()
	}

	if !m.isMaster() {
		return m.dumpAndClear()
	}
	return m.orchestrate()
}

func (m *Manager) dumpAndClear() string {
	payload := reshardPayload{Data: m.Tree.Snapshot(), Indices: dumpIndexDefs(m.Index)}
	m.Tree.Restore(types.ObjectValue(types.NewObject()))
	m.Index.Reset()
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}
	return string(b)
}

func dumpIndexDefs(idx *index.Engine) []indexDump {
	entries := idx.List()
	out := make([]indexDump, 0, len(entries))
	for _, e := range entries {
		out = append(out, indexDump{Path: e.Path, Kind: string(e.Kind)})
	}
	return out
}

func (m *Manager) orchestrate() string {
	shards := m.Config.GetList("SHARDS")
	if len(shards) == 0 {
		return "ERROR: No shards configured"
	}
	self := m.selfHost()
	port := m.portSuffix()

	var peers []string
	for _, s := range shards {
		if s != self {
			peers = append(peers, s)
		}
	}

	allData := []types.Value{m.Tree.Snapshot()}
	allIndices := [][]indexDump{dumpIndexDefs(m.Index)}
	responded := 0
	for _, peer := range peers {
		reply, err := m.sendToShard(peer+":"+port, "RESHARD")
		if err != nil {
			m.Log.Error().Err(err).Str("shard", peer).Msg("reshard: peer did not respond")
			continue
		}
		var dump reshardPayload
		if err := json.Unmarshal([]byte(reply), &dump); err != nil {
			continue
		}
		allData = append(allData, dump.Data)
		allIndices = append(allIndices, dump.Indices)
		responded++
	}

	if len(peers) > 0 && responded != len(peers) {
		if m.Backup != nil {
			m.Backup.Rollback()
		}
		return "Resharding failed: not all shards responded, rolled back."
	}

	merged := mergeValues(allData)
	mergedIndices := mergeIndexDefs(allIndices)

	m.Tree.Restore(types.ObjectValue(types.NewObject()))
	m.Index.Reset()

	m.redistributeData(merged, shards, port, self)
	m.redistributeIndices(mergedIndices, shards, port, self)

	return "Resharding completed successfully."
}

// redistributeData sends each entity to the shard its combined
// "top:entity" key hashes to, batching SET commands up to
// SHARDING_BATCH_SIZE per shard, per redistribute_data/process_batch.
func (m *Manager) redistributeData(merged types.Value, shards []string, port, self string) {
	if !merged.IsObject() {
		return
	}
	batchSize := m.Config.GetInt("SHARDING_BATCH_SIZE")
	if batchSize <= 0 {
		batchSize = 100
	}
	pending := map[string][]string{}
	flush := func(owner string) {
		cmds := pending[owner]
		if len(cmds) == 0 {
			return
		}
		batch := "SET " + strings.Join(cmds, "|")
		if owner == self {
			if m.ApplyLocal != nil {
				m.ApplyLocal(batch)
			}
		} else {
			if _, err := m.sendToShard(owner+":"+port, batch); err != nil {
				m.Log.Error().Err(err).Str("shard", owner).Msg("redistribute data batch")
			}
		}
		pending[owner] = nil
	}

	for _, topKey := range merged.O.Keys() {
		v, _ := merged.O.Get(topKey)
		if v.IsObject() {
			for _, subKey := range v.O.Keys() {
				sv, _ := v.O.Get(subKey)
				combined := topKey + ":" + subKey
				owner := ShardFor(combined, shards)
				pending[owner] = append(pending[owner], combined+" "+scalarOrJSON(sv))
				if len(pending[owner]) >= batchSize {
					flush(owner)
				}
			}
			continue
		}
		owner := ShardFor(topKey, shards)
		pending[owner] = append(pending[owner], topKey+" "+scalarOrJSON(v))
		if len(pending[owner]) >= batchSize {
			flush(owner)
		}
	}
	for owner := range pending {
		flush(owner)
	}
}

// redistributeIndices recreates every merged index definition on
// every shard, not just the owner of the data it covers, matching
// redistribute_indices's broadcast-to-all behavior. INDICES CREATE
// backfills from whatever data that shard already holds.
func (m *Manager) redistributeIndices(defs []indexDump, shards []string, port, self string) {
	for _, def := range defs {
		command := fmt.Sprintf("INDICES CREATE %s %s", def.Path, def.Kind)
		for _, shard := range shards {
			if shard == self {
				if m.ApplyLocal != nil {
					m.ApplyLocal(command)
				}
				continue
			}
			if _, err := m.sendToShard(shard+":"+port, command); err != nil {
				m.Log.Error().Err(err).Str("shard", shard).Msg("redistribute index definition")
			}
		}
	}
}

func scalarOrJSON(v types.Value) string {
	if v.IsObject() || v.IsList() {
		return string(v.Canonical())
	}
	return v.String()
}

// mergeValues deep-merges a list of document snapshots the way
// deep_merge_dict does: nested objects recurse, lists concatenate,
// anything else is overwritten by the later source.
func mergeValues(values []types.Value) types.Value {
	merged := types.ObjectValue(types.NewObject())
	for _, v := range values {
		merged = deepMerge(merged, v)
	}
	return merged
}

func deepMerge(target, source types.Value) types.Value {
	if !source.IsObject() {
		return source
	}
	if !target.IsObject() {
		target = types.ObjectValue(types.NewObject())
	}
	for _, k := range source.O.Keys() {
		sv, _ := source.O.Get(k)
		if tv, ok := target.O.Get(k); ok {
			if tv.IsObject() && sv.IsObject() {
				target.O.Set(k, deepMerge(tv, sv))
				continue
			}
			if tv.IsList() && sv.IsList() {
				combined := append(append([]types.Value{}, tv.L...), sv.L...)
				target.O.Set(k, types.List(combined...))
				continue
			}
		}
		target.O.Set(k, sv)
	}
	return target
}

// mergeIndexDefs deduplicates index definitions collected from every
// shard's dump by path, keeping the first kind seen for each.
func mergeIndexDefs(all [][]indexDump) []indexDump {
	seen := map[string]bool{}
	var out []indexDump
	for _, defs := range all {
		for _, d := range defs {
			if seen[d.Path] {
				continue
			}
			seen[d.Path] = true
			out = append(out, d)
		}
	}
	return out
}
