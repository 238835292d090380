// Package backup implements the timestamped snapshot archive described
// in spec.md §6.2/§4.16: BACKUP/ROLLBACK copy the current data,
// indices and scheduler snapshots into backup/<kind>_<timestamp>.backup
// files, and ROLLBACK restores the most recent trio. Grounded on
// original_source/mgindb/backup_manager.py's BackupManager.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/mgindb/pkg/types"
)

const timeLayout = "20060102150405"

// Manager writes and restores backup archives for one data directory.
type Manager struct {
	dir string

	LoadData     func() (types.Value, error)
	LoadIndices  func() (json.RawMessage, error)
	LoadSchedule func() (types.SchedulerRegistry, error)

	RestoreData     func(types.Value) error
	RestoreIndices  func(json.RawMessage) error
	RestoreSchedule func(types.SchedulerRegistry) error

	Now func() time.Time
}

// NewManager returns a Manager writing backups under dir/backup.
func NewManager(dir string) *Manager {
	return &Manager{dir: filepath.Join(dir, "backup"), Now: time.Now}
}

func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.dir, 0o755)
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Handle dispatches BACKUP LIST/RESTORE/DEL/<none>, per
// handle_backup_command.
func (m *Manager) Handle(args string) string {
	trimmed := strings.TrimSpace(args)
	upper := strings.ToUpper(trimmed)
	switch {
	case upper == "LIST":
		return m.List()
	case strings.HasPrefix(upper, "RESTORE"):
		fields := strings.SplitN(trimmed, " ", 2)
		if len(fields) < 2 {
			return "ERROR: Usage: BACKUP RESTORE <filename>"
		}
		return m.Restore(strings.TrimSpace(fields[1]))
	case strings.HasPrefix(upper, "DEL"):
		fields := strings.SplitN(trimmed, " ", 2)
		if len(fields) < 2 {
			return "ERROR: Usage: BACKUP DEL <ALL|filename>"
		}
		arg := strings.TrimSpace(fields[1])
		if strings.EqualFold(arg, "ALL") {
			return m.DeleteAll()
		}
		return m.DeleteOne(arg)
	default:
		return m.Create()
	}
}

type backupEntry struct {
	file string
	kind string
	ts   time.Time
}

func (m *Manager) listEntries() ([]backupEntry, error) {
	files, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []backupEntry
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".backup") {
			continue
		}
		kind, ts, ok := parseBackupName(name)
		if !ok {
			continue
		}
		out = append(out, backupEntry{file: name, kind: kind, ts: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ts.After(out[j].ts) })
	return out, nil
}

func parseBackupName(name string) (kind string, ts time.Time, ok bool) {
	stem := strings.TrimSuffix(name, ".backup")
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return "", time.Time{}, false
	}
	kind = stem[:idx]
	parsed, err := time.Parse(timeLayout, stem[idx+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return kind, parsed, true
}

// List returns a JSON array of every backup file and its timestamp,
// per backups_list.
func (m *Manager) List() string {
	entries, err := m.listEntries()
	if err != nil {
		return jsonList([]map[string]string{{"message": "Backup directory not found."}})
	}
	if len(entries) == 0 {
		return jsonList([]map[string]string{{"message": "No backup files found."}})
	}
	out := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]string{
			"file": e.file,
			"date": e.ts.Format("2006-01-02 15:04:05"),
		})
	}
	return jsonList(out)
}

func jsonList(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}
	return string(b)
}

// Create writes one backup file per available snapshot source, per
// backup_data.
func (m *Manager) Create() string {
	if err := m.ensureDir(); err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}
	ts := m.now().Format(timeLayout)
	var results []string

	if m.LoadData != nil {
		if data, err := m.LoadData(); err == nil {
			if err := m.writeBackup("data", ts, data); err != nil {
				results = append(results, fmt.Sprintf("Failed to backup data file: %s", err))
			} else {
				results = append(results, "Data backup completed successfully.")
			}
		}
	}
	if m.LoadIndices != nil {
		if raw, err := m.LoadIndices(); err == nil {
			if err := m.writeBackupRaw("indices", ts, raw); err != nil {
				results = append(results, fmt.Sprintf("Failed to backup indices file: %s", err))
			} else {
				results = append(results, "Indices backup completed successfully.")
			}
		}
	}
	if m.LoadSchedule != nil {
		if reg, err := m.LoadSchedule(); err == nil {
			if err := m.writeBackup("scheduler", ts, reg); err != nil {
				results = append(results, fmt.Sprintf("Failed to backup scheduler file: %s", err))
			} else {
				results = append(results, "Scheduler backup completed successfully.")
			}
		}
	}

	if len(results) == 0 {
		return "No files to backup or data is empty."
	}
	return strings.Join(results, "\n")
}

func (m *Manager) writeBackup(kind, ts string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return m.writeBackupRaw(kind, ts, raw)
}

func (m *Manager) writeBackupRaw(kind, ts string, raw json.RawMessage) error {
	path := filepath.Join(m.dir, fmt.Sprintf("%s_%s.backup", kind, ts))
	return os.WriteFile(path, raw, 0o644)
}

// Restore reloads filename into the matching in-memory store, per
// backup_restore.
func (m *Manager) Restore(filename string) string {
	path := filepath.Join(m.dir, filename)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("ERROR: Backup file %s does not exist", filename)
	}

	switch {
	case strings.Contains(filename, "data_"):
		var v types.Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Sprintf("ERROR: %s", err)
		}
		if m.RestoreData != nil {
			if err := m.RestoreData(v); err != nil {
				return fmt.Sprintf("ERROR: %s", err)
			}
		}
	case strings.Contains(filename, "indices_"):
		if m.RestoreIndices != nil {
			if err := m.RestoreIndices(raw); err != nil {
				return fmt.Sprintf("ERROR: %s", err)
			}
		}
	case strings.Contains(filename, "scheduler_"):
		var reg types.SchedulerRegistry
		if err := json.Unmarshal(raw, &reg); err != nil {
			return fmt.Sprintf("ERROR: %s", err)
		}
		if m.RestoreSchedule != nil {
			if err := m.RestoreSchedule(reg); err != nil {
				return fmt.Sprintf("ERROR: %s", err)
			}
		}
	default:
		return "ERROR: Unknown file type for restore"
	}
	return "Restore completed successfully. Data reloaded."
}

// Rollback restores the most recent data/indices/scheduler trio, per
// backup_rollback. Returns an error reply if any of the three is
// missing, matching the original's all-or-nothing rollback gate.
func (m *Manager) Rollback() string {
	entries, err := m.listEntries()
	if err != nil {
		return "ERROR: No backup files available for rollback."
	}
	latest := map[string]string{}
	for _, e := range entries {
		if _, ok := latest[e.kind]; !ok {
			latest[e.kind] = e.file
		}
	}
	data, hasData := latest["data"]
	indices, hasIndices := latest["indices"]
	sched, hasSched := latest["scheduler"]
	if !hasData || !hasIndices || !hasSched {
		return "ERROR: No backup files available for rollback."
	}

	dataResult := m.Restore(data)
	indicesResult := m.Restore(indices)
	m.Restore(sched)

	return fmt.Sprintf("Rollback completed - Data: %s, Indices: %s", dataResult, indicesResult)
}

// DeleteOne removes a single named backup file, per backup_delete_file.
func (m *Manager) DeleteOne(filename string) string {
	path := filepath.Join(m.dir, filename)
	if err := os.Remove(path); err != nil {
		return fmt.Sprintf("Backup file %s does not exist.", filename)
	}
	return fmt.Sprintf("Backup file %s has been deleted.", filename)
}

// DeleteAll removes every local backup file, per
// backup_delete_all_files's local-deletion half; shard-wide broadcast
// is layered on by pkg/sharding, which wraps this with peer fan-out.
func (m *Manager) DeleteAll() string {
	entries, err := m.listEntries()
	if err != nil {
		return "Backup directory not found."
	}
	deleted := 0
	for _, e := range entries {
		if err := os.Remove(filepath.Join(m.dir, e.file)); err == nil {
			deleted++
		}
	}
	if deleted == 0 {
		return "No backup files found to delete."
	}
	return fmt.Sprintf("%d backup files have been deleted.", deleted)
}
