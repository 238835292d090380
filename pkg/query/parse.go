// Package query implements the QUERY/COUNT condition grammar and
// evaluator described in spec.md §4.7: WHERE conditions, JOIN,
// GROUPBY, ORDERBY, LIMIT and INCLUDE/EXCLUDE projection. Grounded on
// original_source/mgindb/command_utils.py's QueryUtil, reshaped from
// regex-heavy string surgery into a small hand-written parser over
// Go's tagged Value type.
package query

import (
	"regexp"
	"strconv"
	"strings"
)

// Join is a JOIN(table,key) clause: for each result row, rows from
// table whose key matches this row's field are attached under table.
type Join struct {
	Table string
	Key   string
}

// Modifiers holds every post-filter clause a QUERY can carry.
type Modifiers struct {
	GroupBy    string
	OrderBy    string
	OrderAsc   bool
	LimitStart int
	LimitCount *int
	Include    []string
	Exclude    []string
	Joins      []Join
}

// Parsed is the fully decomposed form of a QUERY/COUNT argument string.
type Parsed struct {
	Path       string
	Conditions string // raw WHERE predicate, joins/modifiers/projection stripped
	Modifiers  Modifiers
}

var (
	groupbyRe = regexp.MustCompile(`GROUPBY\(([^)]*)\)`)
	orderbyRe = regexp.MustCompile(`ORDERBY\(([^)]*)\)`)
	limitRe   = regexp.MustCompile(`LIMIT\(([^)]*)\)`)
	joinRe    = regexp.MustCompile(`JOIN\(\s*([^)]+)\s*\)`)
	includeRe = regexp.MustCompile(`INCLUDE\(([^)]*)\)`)
	excludeRe = regexp.MustCompile(`EXCLUDE\(([^)]*)\)`)
)

// Parse splits a full QUERY/COUNT argument string ("<path> [WHERE ...]
// [modifiers]") into its path and Parsed components, per the order
// spec.md §4.7 specifies: modifiers first, then INCLUDE/EXCLUDE, then
// JOIN, leaving the bare WHERE predicate.
func Parse(args string) Parsed {
	args = strings.TrimSpace(args)
	fields := strings.SplitN(args, " ", 2)
	path := fields[0]
	rest := ""
	if len(fields) > 1 {
		rest = fields[1]
	}

	var mods Modifiers
	mods.OrderAsc = true

	if m := groupbyRe.FindStringSubmatch(rest); m != nil {
		mods.GroupBy = strings.TrimSpace(m[1])
		rest = groupbyRe.ReplaceAllString(rest, "")
	}
	if m := orderbyRe.FindStringSubmatch(rest); m != nil {
		parts := strings.SplitN(m[1], ",", 2)
		mods.OrderBy = strings.TrimSpace(parts[0])
		if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[1]), "DESC") {
			mods.OrderAsc = false
		}
		rest = orderbyRe.ReplaceAllString(rest, "")
	}
	if m := limitRe.FindStringSubmatch(rest); m != nil {
		parts := strings.Split(m[1], ",")
		nums := make([]int, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err == nil {
				nums = append(nums, n)
			}
		}
		switch len(nums) {
		case 1:
			n := nums[0]
			mods.LimitCount = &n
		case 2:
			mods.LimitStart = nums[0]
			n := nums[1]
			mods.LimitCount = &n
		}
		rest = limitRe.ReplaceAllString(rest, "")
	}

	if m := includeRe.FindStringSubmatch(rest); m != nil {
		mods.Include = splitFieldList(m[1])
		rest = includeRe.ReplaceAllString(rest, "")
	}
	if m := excludeRe.FindStringSubmatch(rest); m != nil {
		mods.Exclude = splitFieldList(m[1])
		rest = excludeRe.ReplaceAllString(rest, "")
	}

	for _, m := range joinRe.FindAllStringSubmatch(rest, -1) {
		parts := strings.SplitN(m[1], ",", 2)
		if len(parts) == 2 {
			mods.Joins = append(mods.Joins, Join{
				Table: strings.TrimSpace(parts[0]),
				Key:   strings.TrimSpace(parts[1]),
			})
		}
	}
	rest = joinRe.ReplaceAllString(rest, "")

	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "WHERE")
	rest = strings.TrimSpace(rest)

	return Parsed{Path: path, Conditions: rest, Modifiers: mods}
}

func splitFieldList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
