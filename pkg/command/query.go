package command

import (
	"strings"

	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/types"
)

// cmdQuery handles QUERY, per spec.md §4.7: parse, plan, execute,
// optionally serving or populating the result cache.
func (p *Processor) cmdQuery(args, sid string) string {
	trimmed := strings.TrimSpace(args)
	caching := p.Config == nil || p.Config.GetBool("QUERY_CACHING")
	cacheKey := "QUERY " + trimmed

	if caching {
		if cached, ok := p.Cache.Get(cacheKey, p.now()); ok {
			return cached
		}
	}

	result := p.Executor.Run(trimmed)
	p.recordPlan(result.Plan)

	var out string
	if result.Groups != nil {
		out = jsonEncode(result.Groups)
	} else {
		out = jsonEncode(result.Rows)
	}

	if caching {
		p.Cache.Put(cacheKey, result.TopKey, out, p.now())
	}
	return out
}

// cmdIndices handles INDICES LIST/GET/CREATE/DEL/FLUSH, per spec.md
// §4.6. Grounded on
// original_source/mgindb/indices_manager.py's indice_command dispatch.
func (p *Processor) cmdIndices(args, sid string) string {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return "ERROR: Invalid INDICES syntax"
	}
	sub := strings.ToUpper(fields[0])
	rest := ""
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}
	switch sub {
	case "LIST":
		return p.indicesList()
	case "GET":
		return p.indicesGet(rest)
	case "CREATE":
		return p.indicesCreate(rest)
	case "DEL":
		return p.indicesDel(rest)
	case "FLUSH":
		return p.indicesFlush(rest)
	default:
		return "ERROR: Unknown INDICES subcommand"
	}
}

func (p *Processor) indicesList() string {
	entries := p.Index.List()
	out := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]string{"path": e.Path, "type": string(e.Kind)})
	}
	return jsonEncode(out)
}

func (p *Processor) indicesGet(indexPath string) string {
	kind, strVals, setVals, ok := p.Index.Get(indexPath)
	if !ok {
		return "ERROR: Index not found"
	}
	if kind == index.KindString {
		return jsonEncode(strVals)
	}
	return jsonEncode(setVals)
}

// indicesCreate registers a new index and backfills it from existing
// document data, matching original_source/mgindb's indices_create
// behavior of populating a freshly created index rather than leaving
// it empty until the next write.
func (p *Processor) indicesCreate(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "ERROR: Usage: INDICES CREATE <path> <string|set>"
	}
	indexPath, kindArg := fields[0], strings.ToLower(fields[1])
	kind := index.KindString
	if kindArg == "set" {
		kind = index.KindSet
	} else if kindArg != "string" {
		return "ERROR: Invalid index type, choose 'string' or 'set'"
	}
	if err := p.Index.Create(indexPath, kind); err != nil {
		return err.Error()
	}
	p.Index.Populate(p.collectEntries(indexPath))
	p.markDirty()
	return "Index created successfully."
}

func (p *Processor) indicesDel(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "ERROR: Usage: INDICES DEL <path> <value>"
	}
	if err := p.Index.Del(fields[0], fields[1]); err != nil {
		return err.Error()
	}
	p.markDirty()
	return "OK"
}

func (p *Processor) indicesFlush(indexPath string) string {
	if err := p.Index.Flush(indexPath); err != nil {
		return err.Error()
	}
	p.markDirty()
	return "Index flushed successfully."
}

// collectEntries walks the document tree under indexPath's top-level
// key, gathering every entity's value at the indexed field so a newly
// created index can be backfilled from current data.
func (p *Processor) collectEntries(indexPath string) []index.Entry {
	segments := strings.Split(indexPath, ":")
	if len(segments) == 0 {
		return nil
	}
	topKey, fields := segments[0], segments[1:]
	container, ok := p.Tree.Get(topKey)
	if !ok || !container.IsObject() {
		return nil
	}
	var entries []index.Entry
	for _, entityID := range container.O.Keys() {
		entity, _ := container.O.Get(entityID)
		if !entity.IsObject() {
			continue
		}
		v, ok := navigateFields(entity, fields)
		if !ok {
			continue
		}
		path := document.JoinPath(append([]string{topKey, entityID}, fields...)...)
		entries = append(entries, index.Entry{Path: path, Value: v})
	}
	return entries
}

func navigateFields(v types.Value, fields []string) (types.Value, bool) {
	cur := v
	for _, f := range fields {
		if !cur.IsObject() {
			return types.Value{}, false
		}
		next, ok := cur.O.Get(f)
		if !ok {
			return types.Value{}, false
		}
		cur = next
	}
	return cur, true
}
