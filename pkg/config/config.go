// Package config implements the typed key/value settings store described
// in spec.md §6.4: a flat map of string keys to string values, a fixed
// set of recognized options with defaults, and a list of keys that
// refuse CONFIG DEL.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// defaults mirrors spec.md §6.4's recognized option table.
var defaults = map[string]string{
	"HOST":                          "0.0.0.0",
	"PORT":                          "6380",
	"USERNAME":                      "",
	"PASSWORD":                      "",
	"AUTO_UPDATE":                   "0",
	"SAVE_ON_FILE_INTERVAL":         "60",
	"BACKUP_ON_SHUTDOWN":            "0",
	"SCHEDULER":                     "0",
	"QUERY_CACHING":                 "1",
	"QUERY_CACHING_TTL":             "60",
	"REPLICATION":                   "0",
	"REPLICATION_TYPE":              "MASTER",
	"REPLICATION_MASTER":            "",
	"REPLICATION_SLAVES":            "",
	"REPLICATION_AUTHORIZED_SLAVES": "",
	"SHARDING":                      "0",
	"SHARDING_TYPE":                 "MASTER",
	"SHARDING_BATCH_SIZE":           "100",
	"SHARDS":                        "",
	"BLOCKCHAIN":                    "0",
	"BLOCKCHAIN_SYMBOL":             "MGDB",
	"BLOCKCHAIN_SUPPLY":             "21000000",
	"BLOCKCHAIN_DECIMALS":           "8",
	"BLOCKCHAIN_CAN_MINT":           "0",
	"BLOCKCHAIN_CAN_BURN":           "0",
	"BLOCKCHAIN_BLOCK_MAX_SIZE":     "1048576",
	"BLOCKCHAIN_BLOCK_INTERVAL":     "10",
	"BLOCKCHAIN_FEE":                "0.001",
	"BLOCKCHAIN_VALIDATOR_REWARD":   "1",
	"BLOCKCHAIN_GENESIS_ADDRESS":    "genesis",
	"BLOCKCHAIN_DIFFICULTY":         "1",
	"BLOCKCHAIN_TX_PER_BLOCK":       "10",
}

// protected lists keys that refuse CONFIG DEL, per spec.md §6.4.
var protected = map[string]bool{
	"HOST": true, "PORT": true, "USERNAME": true, "PASSWORD": true,
	"BACKUP_ON_SHUTDOWN": true, "SCHEDULER": true,
}

func isProtected(key string) bool {
	if protected[key] {
		return true
	}
	return strings.HasPrefix(key, "REPLICATION") || strings.HasPrefix(key, "SHARDING")
}

// Store is the process-wide configuration, loaded from conf.json with
// defaults filled in for anything missing.
type Store struct {
	mu   sync.RWMutex
	path string
	vals map[string]string
}

// Load reads conf.json at path, creating it with defaults if absent.
func Load(path string) (*Store, error) {
	s := &Store{path: path, vals: make(map[string]string, len(defaults))}
	for k, v := range defaults {
		s.vals[k] = v
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, s.save()
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var loaded map[string]string
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for k, v := range loaded {
		s.vals[k] = v
	}
	return s, nil
}

func (s *Store) save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.vals, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Get returns a raw string value. Defaults are filled in when the store
// is loaded; a key removed by Del reads as the empty string.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vals[key]
}

// GetBool reports whether the config value is "1" (spec.md's 0/1 flags).
func (s *Store) GetBool(key string) bool {
	return s.Get(key) == "1"
}

// GetInt parses an integer config value, falling back to 0 on error.
func (s *Store) GetInt(key string) int {
	n, _ := strconv.Atoi(s.Get(key))
	return n
}

// GetList splits a comma-separated config value (SHARDS, REPLICATION_SLAVES).
func (s *Store) GetList(key string) []string {
	raw := s.Get(key)
	if raw == "" {
		return nil
	}
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

// Set writes a key and persists conf.json.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	s.vals[key] = value
	s.mu.Unlock()
	return s.save()
}

// Del removes a key unless it is protected, per spec.md §6.4/§7.
func (s *Store) Del(key string) error {
	if isProtected(key) {
		return fmt.Errorf("ERROR: Cannot delete protected config key %s", key)
	}
	s.mu.Lock()
	delete(s.vals, key)
	s.mu.Unlock()
	return s.save()
}

// All returns a snapshot copy of every configured key.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}
