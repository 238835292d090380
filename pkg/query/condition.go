package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cuemby/mgindb/pkg/types"
)

// Term is one parsed `<field> <op> <literal>` condition, per spec.md
// §4.7's grammar.
type Term struct {
	Field string
	Op    string
	Value string // literal text; BETWEEN stores "low,high" here
	Low   float64
	High  float64
}

var (
	termRe    = regexp.MustCompile(`^([a-zA-Z0-9_:\[\]]+)\s*(=|!=|>=|<=|>|<|LIKE)\s*['"]?(.*?)['"]?$`)
	betweenRe = regexp.MustCompile(`^(.+?)\s+BETWEEN\s+(.+)$`)
)

// parseTerm parses a single condition term, handling BETWEEN specially
// since its literal is a pair rather than a single value.
func parseTerm(raw string) (Term, bool) {
	raw = strings.TrimSpace(raw)
	if m := betweenRe.FindStringSubmatch(raw); m != nil {
		bounds := strings.SplitN(m[2], ",", 2)
		if len(bounds) == 2 {
			low, err1 := strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64)
			high, err2 := strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64)
			if err1 == nil && err2 == nil {
				return Term{Field: strings.TrimSpace(m[1]), Op: "BETWEEN", Low: low, High: high}, true
			}
		}
		return Term{}, false
	}
	m := termRe.FindStringSubmatch(raw)
	if m == nil {
		return Term{}, false
	}
	return Term{Field: m[1], Op: strings.ToUpper(m[2]), Value: m[3]}, true
}

// andGroup is one AND-joined run of terms; ConditionTree is an
// OR-joined list of andGroups, matching the precedence
// original_source/mgindb's eval_condition/eval_and_conditions apply
// (AND binds tighter than OR) for full-scan evaluation.
type andGroup []Term

// ParseConditionTree splits raw on " OR " then " AND ", matching
// eval_condition's precedence for full-scan filtering.
func ParseConditionTree(raw string) []andGroup {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var groups []andGroup
	for _, orPart := range splitKeyword(raw, "OR") {
		var terms andGroup
		for _, andPart := range splitKeyword(orPart, "AND") {
			if t, ok := parseTerm(andPart); ok {
				terms = append(terms, t)
			}
		}
		groups = append(groups, terms)
	}
	return groups
}

// FlatTerm is one term in the left-to-right accumulation used for
// index-backed evaluation, paired with the logic operator that
// combines it with the running id set (ignored for the first term).
type FlatTerm struct {
	Term  Term
	Logic string // "AND" or "OR"
}

// ParseConditionFlat splits raw sequentially on AND/OR without
// precedence, matching eval_conditions_using_indices's flat
// accumulation for index-backed evaluation.
func ParseConditionFlat(raw string) []FlatTerm {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	tokens := splitKeywordTokens(raw)
	var out []FlatTerm
	logic := "AND"
	for _, tok := range tokens {
		upper := strings.ToUpper(strings.TrimSpace(tok))
		if upper == "AND" || upper == "OR" {
			logic = upper
			continue
		}
		if t, ok := parseTerm(tok); ok {
			out = append(out, FlatTerm{Term: t, Logic: logic})
		}
	}
	return out
}

var wordSplitRe = regexp.MustCompile(`(?i)\s+(AND|OR)\s+`)

func splitKeyword(raw, keyword string) []string {
	re := regexp.MustCompile(`(?i)\s+` + keyword + `\s+`)
	return re.Split(raw, -1)
}

func splitKeywordTokens(raw string) []string {
	loc := wordSplitRe.FindAllStringSubmatchIndex(raw, -1)
	if len(loc) == 0 {
		return []string{raw}
	}
	var out []string
	prev := 0
	for _, idx := range loc {
		out = append(out, raw[prev:idx[0]])
		out = append(out, raw[idx[2]:idx[3]])
		prev = idx[1]
	}
	out = append(out, raw[prev:])
	return out
}

// Match reports whether entry (an Object-kind Value) satisfies term.
// Field may be a colon-path into nested objects.
func (t Term) Match(entry types.Value) bool {
	value, ok := lookupField(entry, t.Field)
	if !ok {
		return false
	}
	return compare(value, t.Op, t.Value, t.Low, t.High)
}

func lookupField(entry types.Value, field string) (types.Value, bool) {
	cur := entry
	for _, seg := range strings.Split(field, ":") {
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

func compare(value types.Value, op, literal string, low, high float64) bool {
	switch op {
	case "BETWEEN":
		f, ok := value.Float64()
		if !ok {
			return false
		}
		return low <= f && f <= high
	case "LIKE":
		pattern := strings.ToLower(literal)
		pattern = "^" + regexp.QuoteMeta(pattern) + "$"
		pattern = strings.ReplaceAll(pattern, regexp.QuoteMeta("%"), ".*")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(strings.ToLower(value.String()))
	case "=", "!=":
		if value.Kind == types.KindStr {
			eq := value.S == literal
			if op == "=" {
				return eq
			}
			return !eq
		}
		vf, vok := value.Float64()
		lf, lerr := strconv.ParseFloat(literal, 64)
		if !vok || lerr != nil {
			eq := value.String() == literal
			if op == "=" {
				return eq
			}
			return !eq
		}
		eq := vf == lf
		if op == "=" {
			return eq
		}
		return !eq
	case ">", ">=", "<", "<=":
		vf, vok := value.Float64()
		lf, lerr := strconv.ParseFloat(literal, 64)
		if !vok || lerr != nil {
			return false
		}
		switch op {
		case ">":
			return vf > lf
		case ">=":
			return vf >= lf
		case "<":
			return vf < lf
		case "<=":
			return vf <= lf
		}
	}
	return false
}

// MatchTree reports whether entry satisfies the OR-of-ANDs tree.
func MatchTree(entry types.Value, tree []andGroup) bool {
	if len(tree) == 0 {
		return true
	}
	for _, group := range tree {
		allMatch := true
		for _, term := range group {
			if !term.Match(entry) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
