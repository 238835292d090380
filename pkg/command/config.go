package command

import "strings"

// cmdConfig handles CONFIG SHOW/SET/DEL, per spec.md §6.4. Grounded on
// original_source/mgindb/config_manager.py's config_command dispatch.
func (p *Processor) cmdConfig(args, sid string) string {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return "ERROR: Invalid CONFIG syntax"
	}
	sub := strings.ToUpper(fields[0])
	rest := ""
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}
	switch sub {
	case "SHOW":
		return jsonEncode(p.Config.All())
	case "SET":
		return p.configSet(rest)
	case "DEL":
		return p.configDel(rest)
	default:
		return "ERROR: Unknown CONFIG subcommand"
	}
}

func (p *Processor) configSet(rest string) string {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) != 2 {
		return "ERROR: Usage: CONFIG SET <key> <value>"
	}
	key, value := strings.ToUpper(fields[0]), strings.TrimSpace(fields[1])

	if key == "SHARDING" && value == "1" && len(p.Config.GetList("SHARDS")) == 0 {
		return "ERROR: Cannot enable sharding without configured SHARDS"
	}

	if key == "SHARDS" || key == "REPLICATION_AUTHORIZED_SLAVES" || key == "REPLICATION_SLAVES" {
		return p.configSetList(key, value)
	}

	if err := p.Config.Set(key, value); err != nil {
		return "ERROR: " + err.Error()
	}
	return "OK"
}

// configSetList applies ADD/DEL mutations to a comma-separated config
// list (SHARDS, REPLICATION_SLAVES, REPLICATION_AUTHORIZED_SLAVES),
// reshading automatically when the shard list changes, per spec.md
// §4.12's "adding or removing a shard triggers RESHARD" rule.
func (p *Processor) configSetList(key, value string) string {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return "ERROR: Usage: CONFIG SET " + key + " <ADD|DEL> <value>"
	}
	op, item := strings.ToUpper(fields[0]), strings.TrimSpace(fields[1])
	current := p.Config.GetList(key)

	switch op {
	case "ADD":
		for _, existing := range current {
			if existing == item {
				return "ERROR: Value already present"
			}
		}
		current = append(current, item)
	case "DEL":
		idx := -1
		for i, existing := range current {
			if existing == item {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "ERROR: Value not found"
		}
		current = append(current[:idx], current[idx+1:]...)
	default:
		return "ERROR: Unknown list operation " + op
	}

	if err := p.Config.Set(key, strings.Join(current, ",")); err != nil {
		return "ERROR: " + err.Error()
	}

	if key == "SHARDS" && p.Reshard != nil {
		return p.Reshard()
	}
	return "OK"
}

func (p *Processor) configDel(key string) string {
	if err := p.Config.Del(strings.ToUpper(key)); err != nil {
		return err.Error()
	}
	return "OK"
}
