package command

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/expr"
	"github.com/cuemby/mgindb/pkg/types"
)

var (
	walletSenderRe   = regexp.MustCompile(`FOR WALLET:([A-Za-z0-9]+)`)
	walletReceiverRe = regexp.MustCompile(`TO WALLET:([A-Za-z0-9]+)`)
	setSyntaxRe      = regexp.MustCompile(`^(\S+)\s+(.+)$`)
	expireRe         = regexp.MustCompile(`EXPIRE\((\d+)\)`)
)

// cmdSet handles SET, per spec.md §4.2: a pipe-separated batch of
// independent assignments, each producing one reply line. Grounded on
// original_source/mgindb/command_processing.py's DataCommandHandler.set_command.
func (p *Processor) cmdSet(args, sid string) string {
	sharding := p.shardingActive()
	parts := strings.Split(args, "|")
	replies := make([]string, 0, len(parts))
	for _, raw := range parts {
		replies = append(replies, p.setOne(strings.TrimSpace(raw), sharding))
	}
	return strings.Join(replies, "\n")
}

func (p *Processor) setOne(cmd string, shardingActive bool) string {
	var walletSender, walletReceiver string
	if m := walletSenderRe.FindStringSubmatch(cmd); m != nil {
		walletSender = m[1]
		cmd = strings.TrimSpace(walletSenderRe.ReplaceAllString(cmd, ""))
	}
	if m := walletReceiverRe.FindStringSubmatch(cmd); m != nil {
		walletReceiver = m[1]
		cmd = strings.TrimSpace(walletReceiverRe.ReplaceAllString(cmd, ""))
	}

	m := setSyntaxRe.FindStringSubmatch(cmd)
	if m == nil {
		return "ERROR: Invalid SET syntax"
	}
	keyPattern, rawValue := m[1], m[2]

	if strings.Contains(rawValue, "EXPIRE") && (p.Scheduler == nil || !p.Scheduler.Running()) {
		return "Scheduler is not active. Run the command CONFIG SET SCHEDULER 1 to activate"
	}

	value, expiry, hasExpire := p.parseValueInstructions(rawValue)

	parts := strings.Split(keyPattern, ":")
	shardKey := shardKeyFor(parts)

	if containsWildcard(parts) && shardingActive {
		return "ERROR: Wildcard operations are not supported in sharding mode."
	}

	if p.CheckSharding != nil {
		switch result := p.CheckSharding("SET", cmd, shardKey); result {
		case "LOCAL":
		case "ERROR":
			return "ERROR: Sharding failed"
		default:
			return "OK"
		}
	}

	value = p.evaluateValue(parts, value)

	var reply string
	if containsWildcard(parts) {
		idx := indexOf(parts, "*")
		reply = fmt.Sprintf("Updated %d entries.", p.setWildcard(parts[:idx], parts[len(parts)-1], value))
	} else {
		reply = p.setSpecific(parts, value)
	}

	if hasExpire && p.TTL != nil {
		p.TTL.Set(keyPattern, expiry)
	}

	if p.BlockchainEnabled && p.BlockchainAddTx != nil {
		data := fmt.Sprintf(`{"command":"SET","key":%q,"value":%q}`, keyPattern, value)
		p.BlockchainAddTx(walletSender, walletReceiver, 0, data)
	}

	if p.IsReplicationMaster != nil && p.IsReplicationMaster() && p.BroadcastToSlaves != nil {
		p.BroadcastToSlaves(fmt.Sprintf("SET %s %s", strings.Join(parts, ":"), value))
	}

	return reply
}

// parseValueInstructions extracts a trailing EXPIRE(n) clause, per
// spec.md §4.2 step 1.
func (p *Processor) parseValueInstructions(raw string) (value string, expiry int64, hasExpire bool) {
	value = raw
	if m := expireRe.FindStringSubmatch(raw); m != nil {
		seconds, _ := strconv.ParseInt(m[1], 10, 64)
		expiry = p.now() + seconds
		hasExpire = true
		value = strings.TrimSpace(expireRe.ReplaceAllString(raw, ""))
	}
	return value, expiry, hasExpire
}

// evaluateValue substitutes %field placeholders from the parent
// document and evaluates embedded expression functions, per spec.md
// §4.2 step 3 / §4.11. A placeholder or function error is itself
// stored as the value, matching
// original_source/mgindb's handle_expression_functions, which catches
// the error and returns its message as the result rather than
// aborting the SET.
func (p *Processor) evaluateValue(parts []string, value string) string {
	ctx := expr.Context{}
	if len(parts) > 1 {
		parentPath := document.JoinPath(parts[:len(parts)-1]...)
		if parent, ok := p.Tree.Get(parentPath); ok && parent.IsObject() {
			for _, k := range parent.O.Keys() {
				v, _ := parent.O.Get(k)
				ctx[k] = v.String()
			}
		}
	}
	evaluated, err := expr.Evaluate(value, ctx)
	if err != nil {
		return err.Error()
	}
	return evaluated
}

func scalarValue(raw string) types.Value {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		var v types.Value
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return types.Str(raw)
}

// setSpecific writes a single non-wildcard path, per spec.md §4.2's
// write path. A JSON-object value recurses into one SET per field at
// the parent path.
func (p *Processor) setSpecific(parts []string, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var parsed types.Value
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.IsObject() {
			for _, k := range parsed.O.Keys() {
				v, _ := parsed.O.Get(k)
				p.setIndividual(append(append([]string{}, parts...), k), v)
			}
			return "OK"
		}
	}
	return p.setIndividual(parts, scalarValue(raw))
}

func (p *Processor) setIndividual(parts []string, value types.Value) string {
	path := document.JoinPath(parts...)
	if old, existed := p.Tree.Get(path); existed && !valuesEqual(old, value) {
		p.Index.OnRemove(path, old)
	}
	p.Tree.Set(path, value)
	p.Index.OnAdd(path, value)

	p.Cache.Invalidate(parts[0])

	parentPath := document.JoinPath(parts[:len(parts)-1]...)
	payload, ok := p.Tree.Get(parentPath)
	if !ok {
		payload = value
	}
	p.Broker.Notify(path, payload)

	p.markDirty()
	return "OK"
}

// setWildcard applies a wildcard SET to every entity under basePath,
// per spec.md §4.2's "Wildcard SET iterates the wildcard-resolved set"
// rule, supporting the same JSON-object-recurses-per-field shape as
// the scalar case.
func (p *Processor) setWildcard(basePath []string, lastKey, raw string) int {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var parsed types.Value
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.IsObject() {
			total := 0
			for _, k := range parsed.O.Keys() {
				v, _ := parsed.O.Get(k)
				total += p.setWildcardValue(basePath, lastKey+":"+k, v)
			}
			return total
		}
	}
	return p.setWildcardValue(basePath, lastKey, scalarValue(raw))
}

func (p *Processor) setWildcardValue(basePath []string, lastKey string, value types.Value) int {
	basePathStr := document.JoinPath(basePath...)
	container, ok := p.Tree.Get(basePathStr)
	if !ok || !container.IsObject() {
		return 0
	}
	count := 0
	for _, entityID := range container.O.Keys() {
		fieldParts := append(append(append([]string{}, basePath...), entityID), strings.Split(lastKey, ":")...)
		path := document.JoinPath(fieldParts...)
		if old, existed := p.Tree.Get(path); existed && !valuesEqual(old, value) {
			p.Index.OnRemove(path, old)
		}
		p.Tree.Set(path, value)
		p.Index.OnAdd(path, value)
		count++
	}
	if count > 0 {
		p.Cache.Invalidate(basePath[0])
		updated, _ := p.Tree.Get(basePathStr)
		p.Broker.Notify(document.JoinPath(append(append([]string{}, basePath...), lastKey)...), updated)
		p.markDirty()
	}
	return count
}

// cmdDel handles DEL, per spec.md §4.3.
func (p *Processor) cmdDel(args, sid string) string {
	sharding := p.shardingActive()
	cmds := strings.Split(args, "|")
	replies := make([]string, 0, len(cmds))
	for _, raw := range cmds {
		replies = append(replies, p.delOne(strings.TrimSpace(raw), sharding))
	}
	return strings.Join(replies, "\n")
}

func (p *Processor) delOne(cmd string, shardingActive bool) string {
	parts := strings.Split(cmd, ":")
	if len(parts) == 0 || containsEmpty(parts) {
		return "ERROR: Invalid DEL syntax"
	}
	shardKey := shardKeyFor(parts)

	if containsWildcard(parts) && shardingActive {
		return "ERROR: Wildcard deletions are not supported in sharding mode."
	}

	if p.CheckSharding != nil {
		switch result := p.CheckSharding("DEL", cmd, shardKey); result {
		case "LOCAL":
		case "ERROR":
			return "ERROR: Sharding failed"
		default:
			return "OK"
		}
	}

	var reply string
	if containsWildcard(parts) {
		idx := indexOf(parts, "*")
		reply = fmt.Sprintf("Deleted %d entries.", p.deleteWildcard(parts[:idx], parts[len(parts)-1]))
	} else {
		reply = p.deleteSpecific(parts)
	}

	if reply == "OK" && p.IsReplicationMaster != nil && p.IsReplicationMaster() && p.BroadcastToSlaves != nil {
		p.BroadcastToSlaves("DEL " + cmd)
	}
	return reply
}

// deleteSpecific removes the leaf at parts, per spec.md §4.3: an
// object-valued leaf is treated as an entity and strips every indexed
// field beneath it; a scalar leaf removes only its own index entry.
// Ancestor pruning happens inside document.Tree.Delete.
func (p *Processor) deleteSpecific(parts []string) string {
	path := document.JoinPath(parts...)
	old, ok := p.Tree.Get(path)
	if !ok {
		return "ERROR: Key does not exist"
	}
	if old.IsObject() {
		if len(parts) >= 2 {
			p.Index.RemoveEntity(parts[0], parts[1])
		}
	} else {
		p.Index.OnRemove(path, old)
	}
	p.Tree.Delete(path)
	p.Cache.Invalidate(parts[0])
	p.markDirty()
	return "OK"
}

func (p *Processor) deleteWildcard(basePath []string, lastKey string) int {
	basePathStr := document.JoinPath(basePath...)
	container, ok := p.Tree.Get(basePathStr)
	if !ok || !container.IsObject() {
		return 0
	}
	count := recursiveDeleteKey(container.O, lastKey)
	if count > 0 {
		p.Cache.Invalidate(basePath[0])
		p.markDirty()
	}
	return count
}

func recursiveDeleteKey(obj *types.Object, key string) int {
	count := 0
	for _, k := range obj.Keys() {
		if k == key {
			obj.Delete(k)
			count++
			continue
		}
		if v, ok := obj.Get(k); ok && v.IsObject() {
			count += recursiveDeleteKey(v.O, key)
		}
	}
	return count
}

// cmdIncr and cmdDecr handle INCR/DECR, per spec.md §4.4.
func (p *Processor) cmdIncr(args, sid string) string { return p.incrDecr(args, true) }
func (p *Processor) cmdDecr(args, sid string) string { return p.incrDecr(args, false) }

func (p *Processor) incrDecr(args string, increment bool) string {
	cmds := strings.Split(args, "|")
	replies := make([]string, 0, len(cmds))
	for _, raw := range cmds {
		replies = append(replies, p.incrOne(strings.TrimSpace(raw), increment))
	}
	return strings.Join(replies, "\n")
}

func (p *Processor) incrOne(cmd string, increment bool) string {
	fields := strings.Fields(cmd)
	if len(fields) < 2 {
		return "ERROR: Invalid syntax"
	}
	keys := strings.Split(fields[0], ":")
	amount, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "ERROR: Invalid amount"
	}
	amountIsFloat := strings.Contains(fields[1], ".")

	verb := "INCR"
	if !increment {
		verb = "DECR"
	}
	if p.CheckSharding != nil {
		switch result := p.CheckSharding(verb, cmd, shardKeyFor(keys)); result {
		case "LOCAL":
		case "ERROR":
			return "ERROR: Sharding failed"
		default:
			return "OK"
		}
	}

	path := document.JoinPath(keys...)
	current, _ := p.Tree.Get(path)
	old, oldIsFloat := 0.0, false
	switch current.Kind {
	case types.KindInt:
		old = float64(current.I)
	case types.KindFloat:
		old, oldIsFloat = current.F, true
	}

	var newVal float64
	if increment {
		newVal = old + amount
	} else {
		newVal = old - amount
	}

	var result types.Value
	if oldIsFloat || amountIsFloat {
		result = types.Float(newVal)
	} else {
		result = types.Int(int64(newVal))
	}
	p.Tree.Set(path, result)
	p.markDirty()
	p.Broker.Notify(path, result)

	if p.IsReplicationMaster != nil && p.IsReplicationMaster() && p.BroadcastToSlaves != nil {
		p.BroadcastToSlaves(fmt.Sprintf("%s %s", verb, cmd))
	}
	return "OK"
}

// cmdRename handles RENAME, per spec.md §4.5.
func (p *Processor) cmdRename(args, sid string) string {
	splitIdx := strings.Index(args, " TO ")
	if splitIdx < 0 {
		return "ERROR: Invalid RENAME syntax"
	}
	path := strings.TrimSpace(args[:splitIdx])
	newKey := strings.TrimSpace(args[splitIdx+len(" TO "):])
	parts := strings.Split(path, ":")

	if p.CheckSharding != nil {
		switch result := p.CheckSharding("RENAME", path, shardKeyFor(parts)); result {
		case "LOCAL":
		case "ERROR":
			return "ERROR: Sharding failed"
		default:
			return "OK"
		}
	}

	var reply string
	if containsWildcard(parts) {
		idx := indexOf(parts, "*")
		reply = p.renameWildcard(parts[:idx], parts[len(parts)-1], newKey)
	} else {
		reply = p.renameSpecific(parts, newKey)
	}

	if !strings.HasPrefix(reply, "ERROR") && p.IsReplicationMaster != nil && p.IsReplicationMaster() && p.BroadcastToSlaves != nil {
		p.BroadcastToSlaves("RENAME " + args)
	}
	return reply
}

func (p *Processor) renameSpecific(parts []string, newKey string) string {
	parentPath := document.JoinPath(parts[:len(parts)-1]...)
	parent, ok := p.Tree.Get(parentPath)
	if !ok || !parent.IsObject() {
		return "ERROR: Path not found"
	}
	last := parts[len(parts)-1]
	v, ok := parent.O.Get(last)
	if !ok {
		return "ERROR: Key not found to rename."
	}
	parent.O.Delete(last)
	parent.O.Set(newKey, v)
	p.markDirty()
	return "RENAME successful: 1 key renamed."
}

func (p *Processor) renameWildcard(basePath []string, targetKey, newKey string) string {
	container, ok := p.Tree.Get(document.JoinPath(basePath...))
	if !ok || !container.IsObject() {
		return "Nothing to rename"
	}
	renamed := 0
	for _, entityID := range container.O.Keys() {
		entity, _ := container.O.Get(entityID)
		if !entity.IsObject() {
			continue
		}
		if v, ok := entity.O.Get(targetKey); ok {
			entity.O.Delete(targetKey)
			entity.O.Set(newKey, v)
			renamed++
		}
	}
	if renamed == 0 {
		return "Nothing to rename"
	}
	p.markDirty()
	return fmt.Sprintf("RENAME successful: %d keys renamed.", renamed)
}

// cmdKeys handles KEYS, per SPEC_FULL.md §2.5's depth-argument
// supplement: a bare KEYS lists top-level keys; KEYS <path> lists the
// entries one level below path.
func (p *Processor) cmdKeys(args, sid string) string {
	path := strings.TrimSpace(args)
	if path == "" {
		keys := p.Tree.Keys()
		sort.Strings(keys)
		return jsonEncode(keys)
	}
	v, ok := p.Tree.Get(path)
	if !ok || !v.IsObject() {
		return jsonEncode([]string{})
	}
	keys := v.O.Keys()
	sort.Strings(keys)
	return jsonEncode(keys)
}

// cmdCount handles COUNT, reusing the query pipeline per spec.md §4.7's
// "COUNT reuses the same filter pipeline" rule.
func (p *Processor) cmdCount(args, sid string) string {
	result := p.Executor.Run(args)
	p.recordPlan(result.Plan)
	if result.Groups != nil {
		return strconv.Itoa(len(result.Groups))
	}
	return strconv.Itoa(len(result.Rows))
}

// cmdFlushAll handles FLUSHALL, per spec.md §4.1's recognized verb list.
func (p *Processor) cmdFlushAll(args, sid string) string {
	p.Tree.Restore(types.ObjectValue(types.NewObject()))
	p.Index.Reset()
	p.Cache.Flush()
	if p.Persist != nil {
		_ = p.Persist.SaveData(p.Tree.Snapshot())
		_ = p.Persist.SaveIndices(p.Index)
	}
	p.clearDirty()
	return "All indices and data flushed successfully."
}

// cmdFlushCache handles FLUSHCACHE.
func (p *Processor) cmdFlushCache(args, sid string) string {
	p.Cache.Flush()
	return "Cache flushed successfully."
}
