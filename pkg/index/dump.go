package index

import (
	"encoding/json"
	"strings"

	"github.com/cuemby/mgindb/pkg/types"
)

// DumpEntry is the JSON shape one index serializes to, shared by
// pkg/backup, pkg/replication and pkg/sharding's "send the whole index
// set to a peer" hooks.
type DumpEntry struct {
	Path    string              `json:"path"`
	Kind    string              `json:"kind"`
	Strings map[string]string   `json:"strings,omitempty"`
	Sets    map[string][]string `json:"sets,omitempty"`
}

// Dump serializes every index in eng to JSON, per indices_manager's
// plain dict-of-dicts save format.
func Dump(eng *Engine) (json.RawMessage, error) {
	entries := eng.List()
	out := make([]DumpEntry, 0, len(entries))
	for _, e := range entries {
		kind, strVals, setVals, ok := eng.Get(e.Path)
		if !ok {
			continue
		}
		out = append(out, DumpEntry{Path: e.Path, Kind: string(kind), Strings: strVals, Sets: setVals})
	}
	return json.Marshal(out)
}

// Restore rebuilds a fresh Engine from a Dump payload.
func Restore(raw json.RawMessage) (*Engine, error) {
	var entries []DumpEntry
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, err
		}
	}
	eng := NewEngine()
	for _, e := range entries {
		kind := Kind(e.Kind)
		if err := eng.Create(e.Path, kind); err != nil {
			continue
		}
		switch kind {
		case KindString:
			for value, entityKey := range e.Strings {
				if docPath, ok := entryDocPath(e.Path, entityKey); ok {
					eng.OnAdd(docPath, types.Str(value))
				}
			}
		case KindSet:
			for value, ids := range e.Sets {
				for _, entityKey := range ids {
					if docPath, ok := entryDocPath(e.Path, entityKey); ok {
						eng.OnAdd(docPath, types.Str(value))
					}
				}
			}
		}
	}
	return eng, nil
}

// entryDocPath rebuilds a mutation path ("top:entity:field...") from
// an index path ("top:field...") and an "top:entity" entity key, the
// inverse of docFieldPath.
func entryDocPath(indexPath, entityKey string) (string, bool) {
	colon := strings.IndexByte(entityKey, ':')
	if colon < 0 {
		return "", false
	}
	entityID := entityKey[colon+1:]

	i := strings.IndexByte(indexPath, ':')
	if i < 0 {
		return indexPath + ":" + entityID, true
	}
	return indexPath[:i] + ":" + entityID + indexPath[i:], true
}
