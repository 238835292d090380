// Package index implements the secondary index engine described in
// spec.md §3.3/§4.6: a nested index-descriptor tree mirroring the
// document tree's field paths (minus the entity-id segment), with
// string and set index types. Grounded on
// original_source/mgindb/indices_manager.py, reshaped from its
// dict-of-dicts-with-sentinel-keys scheme into a typed Go tree.
package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/mgindb/pkg/types"
)

// Kind is the type of a secondary index, per spec.md §3.3.
type Kind string

const (
	KindString Kind = "string"
	KindSet    Kind = "set"
)

// descriptor is a leaf index: either a unique value->entity mapping
// (string) or a value->set-of-entities mapping (set).
type descriptor struct {
	kind    Kind
	strVals map[string]string          // value -> entity key, for KindString
	setVals map[string]map[string]bool // value -> set of entity keys, for KindSet
}

func newDescriptor(kind Kind) *descriptor {
	d := &descriptor{kind: kind}
	if kind == KindString {
		d.strVals = make(map[string]string)
	} else {
		d.setVals = make(map[string]map[string]bool)
	}
	return d
}

// node is one level of the index tree: it may carry a descriptor (if
// this path is an indexed field) and/or child path segments.
type node struct {
	desc     *descriptor
	children map[string]*node
}

func newNode() *node { return &node{children: make(map[string]*node)} }

// Engine owns the whole index tree. All mutation enters through
// OnAdd/OnRemove/RemoveEntity, driven by the command processor as it
// mutates the document tree, so the engine never reads document state
// directly — callers hand it paths and values.
type Engine struct {
	mu   sync.RWMutex
	root *node
}

// NewEngine returns an empty index engine.
func NewEngine() *Engine {
	return &Engine{root: newNode()}
}

func splitIndexPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ":")
}

func (e *Engine) walk(segments []string, create bool) *node {
	cur := e.root
	for _, seg := range segments {
		child, ok := cur.children[seg]
		if !ok {
			if !create {
				return nil
			}
			child = newNode()
			cur.children[seg] = child
		}
		cur = child
	}
	return cur
}

// Create registers a new index at indexPath (a colon path over
// top-level-key plus field segments, with no entity-id segment) with
// the given kind. Returns an error if one already exists there or the
// kind is invalid.
func (e *Engine) Create(indexPath string, kind Kind) error {
	if kind != KindString && kind != KindSet {
		return fmt.Errorf("ERROR: Invalid index type %q, choose 'string' or 'set'", kind)
	}
	segments := splitIndexPath(indexPath)
	if len(segments) == 0 {
		return fmt.Errorf("ERROR: Missing index path")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.walk(segments, true)
	if n.desc != nil {
		return fmt.Errorf("ERROR: Index already exists")
	}
	n.desc = newDescriptor(kind)
	return nil
}

// docFieldPath splits a full document mutation path ("top:entity:field...")
// into the index path (top:field...) and the entity key (top:entity).
// Returns ok=false if the path is too short to address a field.
func docFieldPath(docPath string) (indexPath, entityKey string, ok bool) {
	segments := strings.Split(docPath, ":")
	if len(segments) < 3 {
		return "", "", false
	}
	top, entity, fields := segments[0], segments[1], segments[2:]
	entityKey = top + ":" + entity
	indexPath = strings.Join(append([]string{top}, fields...), ":")
	return indexPath, entityKey, true
}

// OnAdd applies value at docPath to the matching index, if one exists.
// It is a no-op if no index is registered for that field path.
func (e *Engine) OnAdd(docPath string, value types.Value) {
	indexPath, entityKey, ok := docFieldPath(docPath)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.walk(splitIndexPath(indexPath), false)
	if n == nil || n.desc == nil {
		return
	}
	addToDescriptor(n.desc, value, entityKey)
}

func addToDescriptor(d *descriptor, value types.Value, entityKey string) {
	switch d.kind {
	case KindString:
		d.strVals[value.String()] = entityKey
	case KindSet:
		items := valuesOf(value)
		for _, item := range items {
			key := item.String()
			bucket, ok := d.setVals[key]
			if !ok {
				bucket = make(map[string]bool)
				d.setVals[key] = bucket
			}
			bucket[entityKey] = true
		}
	}
}

// valuesOf returns the list of scalar values a set-index entry
// represents: a list value contributes one entry per item, any other
// value contributes itself, per spec.md §3.3's "supports multi-valued
// fields".
func valuesOf(v types.Value) []types.Value {
	if v.IsList() {
		return v.L
	}
	return []types.Value{v}
}

// OnRemove removes the previously-indexed value (oldValue) for the
// entity at docPath from its matching index, if any.
func (e *Engine) OnRemove(docPath string, oldValue types.Value) {
	indexPath, entityKey, ok := docFieldPath(docPath)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.walk(splitIndexPath(indexPath), false)
	if n == nil || n.desc == nil {
		return
	}
	removeFromDescriptor(n.desc, oldValue, entityKey)
}

func removeFromDescriptor(d *descriptor, oldValue types.Value, entityKey string) {
	switch d.kind {
	case KindString:
		for key, ek := range d.strVals {
			if ek == entityKey {
				delete(d.strVals, key)
			}
		}
		_ = oldValue
	case KindSet:
		for _, item := range valuesOf(oldValue) {
			key := item.String()
			bucket, ok := d.setVals[key]
			if !ok {
				continue
			}
			delete(bucket, entityKey)
			if len(bucket) == 0 {
				delete(d.setVals, key)
			}
		}
	}
}

// RemoveEntity strips entityKey (formatted "<top>:<id>") out of every
// index registered under topKey, per spec.md §3.3's invariant that no
// stale entries survive an entity delete.
func (e *Engine) RemoveEntity(topKey, entityID string) {
	entityKey := topKey + ":" + entityID
	e.mu.Lock()
	defer e.mu.Unlock()
	top, ok := e.root.children[topKey]
	if !ok {
		return
	}
	removeEntityFromNode(top, entityKey)
}

func removeEntityFromNode(n *node, entityKey string) {
	if n.desc != nil {
		switch n.desc.kind {
		case KindString:
			for key, ek := range n.desc.strVals {
				if ek == entityKey {
					delete(n.desc.strVals, key)
				}
			}
		case KindSet:
			for key, bucket := range n.desc.setVals {
				delete(bucket, entityKey)
				if len(bucket) == 0 {
					delete(n.desc.setVals, key)
				}
			}
		}
	}
	for _, child := range n.children {
		removeEntityFromNode(child, entityKey)
	}
}

// Get returns the string-typed lookup (value -> entity) or set-typed
// lookup (value -> entity set) at indexPath.
func (e *Engine) Get(indexPath string) (kind Kind, strVals map[string]string, setVals map[string][]string, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := e.walk(splitIndexPath(indexPath), false)
	if n == nil || n.desc == nil {
		return "", nil, nil, false
	}
	d := n.desc
	if d.kind == KindString {
		out := make(map[string]string, len(d.strVals))
		for k, v := range d.strVals {
			out[k] = v
		}
		return KindString, out, nil, true
	}
	out := make(map[string][]string, len(d.setVals))
	for k, bucket := range d.setVals {
		ids := make([]string, 0, len(bucket))
		for id := range bucket {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[k] = ids
	}
	return KindSet, nil, out, true
}

// ListEntry describes one indexed field path for the INDICES LIST verb.
type ListEntry struct {
	Path string
	Kind Kind
}

// List returns every indexed field path, in lexical order.
func (e *Engine) List() []ListEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []ListEntry
	collectList(e.root, nil, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func collectList(n *node, prefix []string, out *[]ListEntry) {
	if n.desc != nil {
		*out = append(*out, ListEntry{Path: strings.Join(prefix, ":"), Kind: n.desc.kind})
	}
	for seg, child := range n.children {
		collectList(child, append(prefix, seg), out)
	}
}

// Del removes a single value key (and its bucket) from the index at
// indexPath. The index itself stays registered even when no values
// remain; parent index nodes are not touched.
func (e *Engine) Del(indexPath, value string) error {
	segments := splitIndexPath(indexPath)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.walk(segments, false)
	if n == nil || n.desc == nil {
		return fmt.Errorf("ERROR: Index %q not found", indexPath)
	}
	switch n.desc.kind {
	case KindString:
		if _, ok := n.desc.strVals[value]; !ok {
			return fmt.Errorf("ERROR: Value %q not found under index %q", value, indexPath)
		}
		delete(n.desc.strVals, value)
	case KindSet:
		if _, ok := n.desc.setVals[value]; !ok {
			return fmt.Errorf("ERROR: Value %q not found under index %q", value, indexPath)
		}
		delete(n.desc.setVals, value)
	}
	return nil
}

// Flush deletes an entire index subtree at indexPath (the index itself
// and everything nested under it).
func (e *Engine) Flush(indexPath string) error {
	segments := splitIndexPath(indexPath)
	if len(segments) == 0 {
		return fmt.Errorf("ERROR: Missing index path")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	parent := e.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := parent.children[seg]
		if !ok {
			return fmt.Errorf("ERROR: Index %q not found", indexPath)
		}
		parent = child
	}
	last := segments[len(segments)-1]
	if _, ok := parent.children[last]; !ok {
		return fmt.Errorf("ERROR: Index %q not found", indexPath)
	}
	delete(parent.children, last)
	return nil
}

// Reset discards every registered index, used by FLUSHALL.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = newNode()
}

// ReplaceFrom swaps in other's index tree wholesale, for restoring a
// snapshot produced by Dump/Restore (BACKUP RESTORE, REPLICATE full
// sync, RESHARD) without callers needing to discard and re-share their
// *Engine pointer.
func (e *Engine) ReplaceFrom(other *Engine) {
	other.mu.RLock()
	root := other.root
	other.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = root
}

// Entry is one existing document field value, supplied by the caller
// when populating a freshly created index or rebuilding from scratch.
type Entry struct {
	Path  string
	Value types.Value
}

// Populate feeds existing document entries into the index at
// indexPath immediately after Create, matching
// original_source/mgindb's indices_create behavior of backfilling a
// new index from current data rather than starting empty.
func (e *Engine) Populate(entries []Entry) {
	for _, entry := range entries {
		e.OnAdd(entry.Path, entry.Value)
	}
}

// Rebuild clears every index's values (keeping its type and position
// in the tree) and replays entries to repopulate them from scratch.
// This is the property spec.md §8.1 exercises: rebuilding from the
// document tree must reproduce byte-identical index state.
func (e *Engine) Rebuild(entries []Entry) {
	e.mu.Lock()
	clearValues(e.root)
	e.mu.Unlock()
	e.Populate(entries)
}

func clearValues(n *node) {
	if n.desc != nil {
		if n.desc.kind == KindString {
			n.desc.strVals = make(map[string]string)
		} else {
			n.desc.setVals = make(map[string]map[string]bool)
		}
	}
	for _, child := range n.children {
		clearValues(child)
	}
}
