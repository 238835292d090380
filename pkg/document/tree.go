// Package document implements the process-wide document tree described
// in spec.md §3.1: a mapping from colon-joined paths to arbitrarily
// nested values, plus the TTL store that expires paths out of it.
package document

import (
	"strings"
	"sync"

	"github.com/cuemby/mgindb/pkg/types"
)

// Separator joins path segments: top-level key, entity id, field...
const Separator = ":"

// SplitPath splits a colon-joined path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// JoinPath re-joins segments into a colon path.
func JoinPath(segments ...string) string {
	return strings.Join(segments, Separator)
}

// Tree wraps a root Object behind a mutex. Per SPEC_FULL.md §2.1, all
// mutation enters through the command processor under its own
// single-writer discipline; the lock here only protects concurrent
// reads (session scatter reads, backup snapshotting) against a writer.
type Tree struct {
	mu   sync.RWMutex
	root *types.Object
}

// NewTree returns an empty document tree.
func NewTree() *Tree {
	return &Tree{root: types.NewObject()}
}

// Get navigates path and returns the value found there, if any.
func (t *Tree) Get(path string) (types.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return navigate(t.root, SplitPath(path))
}

func navigate(root *types.Object, segments []string) (types.Value, bool) {
	cur := types.ObjectValue(root)
	for _, seg := range segments {
		if !cur.IsObject() {
			return types.Value{}, false
		}
		v, ok := cur.O.Get(seg)
		if !ok {
			return types.Value{}, false
		}
		cur = v
	}
	return cur, true
}

// Set writes value at path, creating intermediate objects as needed.
// An empty path segments list is invalid and is a no-op.
func (t *Tree) Set(path string, value types.Value) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	setAt(t.root, segments, value)
}

func setAt(root *types.Object, segments []string, value types.Value) {
	obj := root
	for _, seg := range segments[:len(segments)-1] {
		existing, ok := obj.Get(seg)
		if !ok || !existing.IsObject() {
			existing = types.ObjectValue(types.NewObject())
			obj.Set(seg, existing)
		}
		obj = existing.O
	}
	obj.Set(segments[len(segments)-1], value)
}

// Delete removes path, then prunes any ancestor object left empty by the
// removal, per spec.md §3.2's ancestor-pruning rule. It returns whether
// anything was removed.
func (t *Tree) Delete(path string) bool {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return deleteAt(t.root, segments)
}

func deleteAt(root *types.Object, segments []string) bool {
	if len(segments) == 1 {
		if _, ok := root.Get(segments[0]); !ok {
			return false
		}
		root.Delete(segments[0])
		return true
	}
	head, rest := segments[0], segments[1:]
	child, ok := root.Get(head)
	if !ok || !child.IsObject() {
		return false
	}
	removed := deleteAt(child.O, rest)
	if removed && child.O.Len() == 0 {
		root.Delete(head)
	}
	return removed
}

// Keys returns the top-level keys currently in the tree.
func (t *Tree) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.Keys()
}

// Snapshot returns a deep-cloned copy of the whole tree as a Value,
// used by the persistence layer to write data.json without holding the
// tree lock during I/O.
func (t *Tree) Snapshot() types.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return types.ObjectValue(t.root).Clone()
}

// Restore replaces the tree's contents wholesale, used when loading a
// snapshot at startup or rolling back to a backup.
func (t *Tree) Restore(v types.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.IsObject() {
		t.root = v.O.Clone()
	} else {
		t.root = types.NewObject()
	}
}

// Count returns the number of entity ids under a top-level key, or the
// number of fields if path addresses a single entity. It is pure tree
// shape, independent of any WHERE clause; the COUNT verb itself runs
// through the query Executor instead.
func (t *Tree) Count(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := navigate(t.root, SplitPath(path))
	if !ok || !v.IsObject() {
		return 0
	}
	return v.O.Len()
}
