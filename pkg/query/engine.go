package query

import (
	"sort"
	"strings"

	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/types"
)

// ConditionPlan records, per condition field, whether evaluation used
// an index or fell back to a full scan — surfaced via QUERY -f EXPLAIN
// for the mgindb_query_plan_total metric, per SPEC_FULL.md §2.4. It
// changes no externally visible result.
type ConditionPlan struct {
	Field string
	Mode  string // "index" or "scan"
}

// Result is the outcome of running a parsed query.
type Result struct {
	Rows   []types.Value
	Groups map[string][]types.Value // non-nil only when GROUPBY was requested
	Plan   []ConditionPlan
	TopKey string
}

// Executor evaluates QUERY/COUNT argument strings against a document
// tree and its index engine.
type Executor struct {
	Tree  *document.Tree
	Index *index.Engine
}

// NewExecutor wires an Executor to the engine's tree and index engine.
func NewExecutor(tree *document.Tree, idx *index.Engine) *Executor {
	return &Executor{Tree: tree, Index: idx}
}

// Run executes a full QUERY argument string per the evaluation order
// in spec.md §4.7.
func (ex *Executor) Run(args string) Result {
	parsed := Parse(args)
	segments := strings.Split(parsed.Path, ":")
	topKey := segments[0]

	if len(segments) >= 2 {
		return ex.runEntityLookup(topKey, segments[1:], parsed)
	}
	return ex.runCollection(topKey, parsed)
}

func (ex *Executor) entryFor(topKey, id string) (types.Value, bool) {
	v, ok := ex.Tree.Get(document.JoinPath(topKey, id))
	if !ok {
		return types.Value{}, false
	}
	if !v.IsObject() {
		return types.ObjectValue(wrapScalar(v)), true
	}
	clone := v.Clone()
	clone.O.Set("key", types.Str(id))
	return clone, true
}

func wrapScalar(v types.Value) *types.Object {
	o := types.NewObject()
	o.Set("value", v)
	return o
}

func (ex *Executor) runEntityLookup(topKey string, rest []string, parsed Parsed) Result {
	path := document.JoinPath(append([]string{topKey}, rest...)...)
	v, ok := ex.Tree.Get(path)
	if !ok {
		return Result{TopKey: topKey}
	}
	var entry types.Value
	if v.IsObject() {
		entry = v.Clone()
		entry.O.Set("key", types.Str(rest[0]))
	} else {
		entry = types.ObjectValue(wrapScalar(v))
	}
	for _, j := range parsed.Modifiers.Joins {
		ex.applyJoin(&entry, j)
	}
	entry = projectOne(entry, parsed.Modifiers.Include, parsed.Modifiers.Exclude)
	return Result{Rows: []types.Value{entry}, TopKey: topKey}
}

func (ex *Executor) runCollection(topKey string, parsed Parsed) Result {
	var rows []types.Value
	var plan []ConditionPlan

	if strings.TrimSpace(parsed.Conditions) != "" {
		rows, plan = ex.evalIndexed(topKey, parsed.Conditions)
		if rows == nil {
			rows = ex.evalScan(topKey, parsed.Conditions)
		}
	} else {
		rows = ex.allEntries(topKey)
	}

	for i := range rows {
		for _, j := range parsed.Modifiers.Joins {
			ex.applyJoin(&rows[i], j)
		}
	}

	result := Result{Rows: rows, Plan: plan, TopKey: topKey}
	applyModifiers(&result, parsed.Modifiers)
	return result
}

func (ex *Executor) allEntries(topKey string) []types.Value {
	v, ok := ex.Tree.Get(topKey)
	if !ok || !v.IsObject() {
		return nil
	}
	ids := v.O.Keys()
	out := make([]types.Value, 0, len(ids))
	for _, id := range ids {
		entry, ok := ex.entryFor(topKey, id)
		if ok {
			out = append(out, entry)
		}
	}
	return out
}

// evalIndexed attempts index-backed evaluation of conditions flattened
// left-to-right, per eval_conditions_using_indices. Returns rows=nil
// when any condition's field has no index or empty bucket, signaling
// the caller to fall back to a full scan.
func (ex *Executor) evalIndexed(topKey, conditions string) ([]types.Value, []ConditionPlan) {
	flat := ParseConditionFlat(conditions)
	if len(flat) == 0 {
		return nil, nil
	}
	var currentIDs map[string]bool
	var plan []ConditionPlan

	for _, ft := range flat {
		indexPath := topKey + ":" + ft.Term.Field
		kind, strVals, setVals, ok := ex.Index.Get(indexPath)
		if !ok {
			return nil, nil
		}
		matched := make(map[string]bool)
		switch kind {
		case index.KindString:
			for val, entityKey := range strVals {
				if compare(types.Str(val), ft.Term.Op, ft.Term.Value, ft.Term.Low, ft.Term.High) {
					matched[entityKey] = true
				}
			}
		case index.KindSet:
			for val, ids := range setVals {
				if compare(types.Str(val), ft.Term.Op, ft.Term.Value, ft.Term.Low, ft.Term.High) {
					for _, id := range ids {
						matched[id] = true
					}
				}
			}
		}
		plan = append(plan, ConditionPlan{Field: ft.Term.Field, Mode: "index"})

		if currentIDs == nil {
			currentIDs = matched
			continue
		}
		if ft.Logic == "OR" {
			for id := range matched {
				currentIDs[id] = true
			}
		} else {
			intersected := make(map[string]bool)
			for id := range currentIDs {
				if matched[id] {
					intersected[id] = true
				}
			}
			currentIDs = intersected
		}
	}

	if len(currentIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(currentIDs))
	for entityKey := range currentIDs {
		ids = append(ids, entityKey)
	}
	sort.Strings(ids)

	out := make([]types.Value, 0, len(ids))
	for _, entityKey := range ids {
		parts := strings.SplitN(entityKey, ":", 2)
		if len(parts) != 2 {
			continue
		}
		entry, ok := ex.entryFor(parts[0], parts[1])
		if ok {
			out = append(out, entry)
		}
	}
	return out, plan
}

func (ex *Executor) evalScan(topKey, conditions string) []types.Value {
	tree := ParseConditionTree(conditions)
	all := ex.allEntries(topKey)
	out := make([]types.Value, 0, len(all))
	for _, entry := range all {
		if MatchTree(entry, tree) {
			out = append(out, entry)
		}
	}
	return out
}

func (ex *Executor) applyJoin(entry *types.Value, j Join) {
	if !entry.IsObject() {
		return
	}
	value, ok := entry.O.Get(j.Key)
	if !ok {
		return
	}
	var joinValues []types.Value
	if value.IsList() {
		joinValues = value.L
	} else {
		joinValues = []types.Value{value}
	}

	seen := make(map[string]bool)
	var joined []types.Value
	indexPath := j.Table + ":" + j.Key
	kind, strVals, setVals, ok := ex.Index.Get(indexPath)
	if ok {
		for _, jv := range joinValues {
			key := jv.String()
			var ids []string
			if kind == index.KindString {
				if id, ok := strVals[key]; ok {
					ids = []string{id}
				}
			} else {
				ids = setVals[key]
			}
			for _, entityKey := range ids {
				parts := strings.SplitN(entityKey, ":", 2)
				if len(parts) != 2 || seen[entityKey] {
					continue
				}
				seen[entityKey] = true
				if row, ok := ex.entryFor(parts[0], parts[1]); ok {
					joined = append(joined, row)
				}
			}
		}
	} else {
		// No index on the join field: scan the foreign collection.
		for _, row := range ex.allEntries(j.Table) {
			fv, ok := lookupField(row, j.Key)
			if !ok {
				continue
			}
			for _, jv := range joinValues {
				if fv.String() == jv.String() {
					joined = append(joined, row)
					break
				}
			}
		}
	}
	entry.O.Set(j.Table, types.List(joined...))
}

func applyModifiers(result *Result, mods Modifiers) {
	rows := result.Rows

	if mods.GroupBy != "" {
		groups := make(map[string][]types.Value)
		for _, row := range rows {
			if !row.IsObject() {
				continue
			}
			v, ok := row.O.Get(mods.GroupBy)
			if !ok {
				continue
			}
			key := v.String()
			groups[key] = append(groups[key], row)
		}
		if mods.OrderBy != "" {
			for k := range groups {
				sortRows(groups[k], mods.OrderBy, mods.OrderAsc)
			}
		}
		if mods.LimitCount != nil {
			for k := range groups {
				groups[k] = sliceRows(groups[k], mods.LimitStart, *mods.LimitCount)
			}
		}
		for k := range groups {
			groups[k] = projectRows(groups[k], mods.Include, mods.Exclude)
		}
		result.Groups = groups
		result.Rows = nil
		return
	}

	if mods.OrderBy != "" {
		sortRows(rows, mods.OrderBy, mods.OrderAsc)
	}
	if mods.LimitCount != nil {
		rows = sliceRows(rows, mods.LimitStart, *mods.LimitCount)
	}
	result.Rows = projectRows(rows, mods.Include, mods.Exclude)
}

func sliceRows(rows []types.Value, start, count int) []types.Value {
	if start < 0 {
		start = 0
	}
	if start >= len(rows) {
		return nil
	}
	end := start + count
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// sortRows implements custom_sort_key's ordering: strings (lower-cased)
// sort before numerics, which sort before anything else; missing keys
// sort last, per spec.md §4.7.
func sortRows(rows []types.Value, field string, asc bool) {
	rank := func(v types.Value, present bool) (int, string, float64) {
		if !present {
			return 3, "", 0
		}
		switch v.Kind {
		case types.KindStr:
			return 0, strings.ToLower(v.S), 0
		case types.KindInt, types.KindFloat:
			f, _ := v.Float64()
			return 1, "", f
		default:
			return 2, v.String(), 0
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, oki := fieldOf(rows[i], field)
		vj, okj := fieldOf(rows[j], field)
		ri, si, fi := rank(vi, oki)
		rj, sj, fj := rank(vj, okj)
		var less bool
		switch {
		case ri != rj:
			less = ri < rj
		case ri == 0:
			less = si < sj
		case ri == 1:
			less = fi < fj
		default:
			less = si < sj
		}
		if !asc {
			return !less
		}
		return less
	})
}

func fieldOf(v types.Value, field string) (types.Value, bool) {
	if !v.IsObject() {
		return types.Value{}, false
	}
	return v.O.Get(field)
}

func projectRows(rows []types.Value, include, exclude []string) []types.Value {
	out := make([]types.Value, len(rows))
	for i, row := range rows {
		out[i] = projectOne(row, include, exclude)
	}
	return out
}

// projectOne applies INCLUDE/EXCLUDE field projection with nested and
// wildcard ("a:*:b") support, per spec.md §4.7 step 6.
func projectOne(row types.Value, include, exclude []string) types.Value {
	if len(include) == 0 && len(exclude) == 0 {
		return row
	}
	if !row.IsObject() {
		return row
	}
	if len(include) > 0 {
		result := types.NewObject()
		for _, field := range include {
			includeField(row.O, result, strings.Split(field, ":"))
		}
		return types.ObjectValue(result)
	}
	excluded := make(map[string]bool, len(exclude))
	for _, field := range exclude {
		if !strings.Contains(field, ":") {
			excluded[field] = true
		}
	}
	result := types.NewObject()
	for _, key := range row.O.Keys() {
		if excluded[key] {
			continue
		}
		v, _ := row.O.Get(key)
		result.Set(key, v)
	}
	return types.ObjectValue(result)
}

func includeField(src, dst *types.Object, segments []string) {
	if len(segments) == 0 {
		return
	}
	head, rest := segments[0], segments[1:]
	if head == "*" {
		for _, key := range src.Keys() {
			v, _ := src.Get(key)
			if len(rest) == 0 {
				dst.Set(key, v)
				continue
			}
			if v.IsObject() {
				child := types.NewObject()
				includeField(v.O, child, rest)
				dst.Set(key, types.ObjectValue(child))
			}
		}
		return
	}
	v, ok := src.Get(head)
	if !ok {
		return
	}
	if len(rest) == 0 {
		dst.Set(head, v)
		return
	}
	if !v.IsObject() {
		return
	}
	child := types.NewObject()
	includeField(v.O, child, rest)
	dst.Set(head, types.ObjectValue(child))
}
