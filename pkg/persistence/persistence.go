// Package persistence implements the on-disk JSON snapshot layout
// described in spec.md §6.2: data/data.json, data/indices.json and
// data/scheduler.json, written atomically and loaded at startup.
// Grounded on original_source/mgindb/data_manager.py's save_data/
// load_data and indices_manager.py's save_indices/load_indices.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/types"
)

// Store resolves the data directory's snapshot files and persists/
// restores them atomically (write to a temp file, then rename).
type Store struct {
	dataDir string
}

// NewStore builds a Store rooted at baseDir; baseDir/data holds the
// snapshot files per spec.md §6.2.
func NewStore(baseDir string) *Store {
	return &Store{dataDir: filepath.Join(baseDir, "data")}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.dataDir, 0o755)
}

// writeJSON marshals v and writes it atomically to name.
func (s *Store) writeJSON(name string, v interface{}) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	target := s.path(name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, target)
}

// readJSON reads name into dst. A missing file is not an error: dst
// is left at its zero value, matching load_data's "create empty" path.
func (s *Store) readJSON(name string, dst interface{}) error {
	b, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

// SaveData writes the document tree snapshot to data.json.
func (s *Store) SaveData(snapshot types.Value) error {
	return s.writeJSON("data.json", snapshot)
}

// LoadData reads data.json back into a Value; returns an empty Object
// if the file is absent, empty or holds null.
func (s *Store) LoadData() (types.Value, error) {
	var v types.Value
	if err := s.readJSON("data.json", &v); err != nil {
		return types.Value{}, err
	}
	if v.Kind == types.KindNull && v.O == nil {
		return types.ObjectValue(types.NewObject()), nil
	}
	return v, nil
}

// indexFileEntry mirrors one index.ListEntry plus its materialized
// values, the shape data.json's sibling indices.json persists. Sets
// serialize as JSON arrays per spec.md §6.2.
type indexFileEntry struct {
	Path    string              `json:"path"`
	Kind    string              `json:"kind"`
	Strings map[string]string   `json:"strings,omitempty"`
	Sets    map[string][]string `json:"sets,omitempty"`
}

// SaveIndices serializes every index in eng to indices.json.
func (s *Store) SaveIndices(eng *index.Engine) error {
	entries := eng.List()
	out := make([]indexFileEntry, 0, len(entries))
	for _, e := range entries {
		kind, strVals, setVals, ok := eng.Get(e.Path)
		if !ok {
			continue
		}
		out = append(out, indexFileEntry{
			Path:    e.Path,
			Kind:    string(kind),
			Strings: strVals,
			Sets:    setVals,
		})
	}
	return s.writeJSON("indices.json", out)
}

// LoadIndices reads indices.json and rebuilds a fresh index.Engine
// from it. Index creation plus direct bucket population stands in for
// the original's straight dict-load, since Go's Engine keeps its
// buckets behind a typed descriptor rather than a bare dict.
func (s *Store) LoadIndices() (*index.Engine, error) {
	var entries []indexFileEntry
	if err := s.readJSON("indices.json", &entries); err != nil {
		return nil, err
	}
	eng := index.NewEngine()
	for _, e := range entries {
		kind := index.Kind(e.Kind)
		if err := eng.Create(e.Path, kind); err != nil {
			continue
		}
		switch kind {
		case index.KindString:
			for value, entityKey := range e.Strings {
				parts := splitEntityKey(entityKey)
				if parts == nil {
					continue
				}
				eng.OnAdd(indexPathToDocPath(e.Path, parts[1]), types.Str(value))
			}
		case index.KindSet:
			for value, ids := range e.Sets {
				for _, entityKey := range ids {
					parts := splitEntityKey(entityKey)
					if parts == nil {
						continue
					}
					eng.OnAdd(indexPathToDocPath(e.Path, parts[1]), types.Str(value))
				}
			}
		}
	}
	return eng, nil
}

func splitEntityKey(entityKey string) []string {
	idx := -1
	for i, c := range entityKey {
		if c == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	return []string{entityKey[:idx], entityKey[idx+1:]}
}

// indexPathToDocPath rebuilds a mutation path ("top:entity:field...")
// from an index path ("top:field...") and an entity id, the inverse of
// index.docFieldPath.
func indexPathToDocPath(indexPath, entityID string) string {
	i := -1
	for idx, c := range indexPath {
		if c == ':' {
			i = idx
			break
		}
	}
	if i < 0 {
		return indexPath + ":" + entityID
	}
	return indexPath[:i] + ":" + entityID + indexPath[i:]
}

// SaveScheduler writes a scheduler registry to scheduler.json.
func (s *Store) SaveScheduler(registry types.SchedulerRegistry) error {
	return s.writeJSON("scheduler.json", registry)
}

// LoadScheduler reads scheduler.json.
func (s *Store) LoadScheduler() (types.SchedulerRegistry, error) {
	reg := make(types.SchedulerRegistry)
	if err := s.readJSON("scheduler.json", &reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// PendingTransaction mirrors one queued blockchain transaction awaiting
// inclusion in a block, per spec.md §3.7/§4.15.
type PendingTransaction struct {
	Sender       string `json:"sender"`
	Receiver     string `json:"receiver"`
	Amount       string `json:"amount"`
	Symbol       string `json:"symbol"`
	Data         string `json:"data"`
	Fee          string `json:"fee"`
	Action       string `json:"action"`
	ContractHash string `json:"contract_hash"`
	Txid         string `json:"txid"`
	Timestamp    int64  `json:"timestamp"`
}

// SavePendingTransactions writes the pending transaction pool.
func (s *Store) SavePendingTransactions(txs []PendingTransaction) error {
	return s.writeJSON("pending_transactions.json", txs)
}

// LoadPendingTransactions reads the pending transaction pool.
func (s *Store) LoadPendingTransactions() ([]PendingTransaction, error) {
	var txs []PendingTransaction
	if err := s.readJSON("pending_transactions.json", &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
