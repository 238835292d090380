// Package scheduler implements the cron-driven task registry and
// cooperative tick loop described in spec.md §3.6/§4.10: a single
// goroutine wakes once a second, runs any due tasks through an
// injected command runner, sweeps expired TTL/cache entries, and
// periodically triggers a snapshot. Grounded on
// original_source/mgindb/scheduler.py's SchedulerManager/SchedulerTasks,
// reshaped from asyncio coroutines into a ticker goroutine the way
// pkg/scheduler's teacher predecessor ran its own scheduling loop.
package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/mgindb/pkg/log"
	"github.com/cuemby/mgindb/pkg/types"
	"github.com/rs/zerolog"
)

// Runner executes one fully-formed inner command and returns its
// textual reply, the same shape process_command returns to a client.
type Runner func(command string) string

// TickHooks lets the engine wire TTL sweep, cache sweep, and periodic
// snapshotting into the scheduler's one-second tick without the
// scheduler importing those packages directly.
type TickHooks struct {
	SweepExpired func(now int64)
	Snapshot     func()
}

// Manager owns the cron registry and the tick goroutine.
type Manager struct {
	mu       sync.Mutex
	registry types.SchedulerRegistry
	logger   zerolog.Logger

	active func() bool
	runner Runner
	hooks  TickHooks

	saveInterval int
	saveTimer    int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager builds a Manager. active reports whether SCHEDULER=1 in
// configuration; saveIntervalTicks is SAVE_ON_FILE_INTERVAL.
func NewManager(runner Runner, active func() bool, hooks TickHooks, saveIntervalTicks int) *Manager {
	if saveIntervalTicks <= 0 {
		saveIntervalTicks = 60
	}
	return &Manager{
		registry:     make(types.SchedulerRegistry),
		logger:       log.WithComponent("scheduler"),
		active:       active,
		runner:       runner,
		hooks:        hooks,
		saveInterval: saveIntervalTicks,
	}
}

// Start begins the tick loop if the scheduler isn't already running.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()
	go m.run()
}

// Stop halts the tick loop. Safe to call when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.stopCh = nil
	m.doneCh = nil
	m.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// Running reports whether the tick loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCh != nil
}

func (m *Manager) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	m.mu.Lock()
	doneCh := m.doneCh
	stopCh := m.stopCh
	m.mu.Unlock()
	defer close(doneCh)

	for {
		select {
		case now := <-ticker.C:
			m.tick(now)
		case <-stopCh:
			return
		}
	}
}

func (m *Manager) tick(now time.Time) {
	ts := now.Unix()
	executed := 0

	m.mu.Lock()
	for cron, tasks := range m.registry {
		for key, task := range tasks {
			if task.NextRun == 0 {
				if next, err := NextRun(cron, now); err == nil {
					task.NextRun = next.Unix()
				}
				continue
			}
			if ts >= task.NextRun {
				command := task.Command
				task.LastRun = ts
				if next, err := NextRun(cron, time.Unix(task.LastRun, 0)); err == nil {
					task.NextRun = next.Unix()
				}
				executed++
				m.mu.Unlock()
				m.runner(command)
				m.logger.Info().Str("task", key).Str("cron", cron).Msg("scheduled task executed")
				m.mu.Lock()
			}
		}
	}
	m.mu.Unlock()

	if m.hooks.SweepExpired != nil {
		m.hooks.SweepExpired(ts)
	}

	m.saveTimer++
	if m.saveTimer >= m.saveInterval {
		m.saveTimer = 0
		if m.hooks.Snapshot != nil {
			m.hooks.Snapshot()
		}
	}
}

// HandleCommand dispatches a SCHEDULE SHOW/ADD/DEL/FLUSH command line.
func (m *Manager) HandleCommand(args string) string {
	if !m.active() {
		return "Scheduler is not active. Run the command CONFIG SET SCHEDULER 1 to activate"
	}
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return "ERROR: Missing arguments for SCHEDULE command"
	}
	action := strings.ToUpper(parts[0])
	details := parts[1]

	switch action {
	case "SHOW":
		detail := strings.TrimSpace(details)
		if strings.EqualFold(detail, "ALL") {
			return m.showAll()
		}
		if IsCronFormat(detail) {
			return m.showSchedule(detail)
		}
		return m.findByKey(detail)
	case "ADD":
		return m.add(details)
	case "DEL":
		return m.del(strings.TrimSpace(details))
	case "FLUSH":
		detail := strings.ToUpper(strings.TrimSpace(details))
		if detail == "ALL" {
			return m.flushAll()
		}
		return m.flushSchedule(detail)
	default:
		return "ERROR: Invalid SCHEDULE command"
	}
}

func (m *Manager) showAll() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.registry) == 0 {
		return ""
	}
	b, _ := json.Marshal(m.registry)
	return string(b)
}

func (m *Manager) showSchedule(cron string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks, ok := m.registry[cron]
	if !ok || len(tasks) == 0 {
		return ""
	}
	b, _ := json.MarshalIndent(tasks, "", "    ")
	return string(b)
}

func (m *Manager) findByKey(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]map[string]*types.ScheduledTask)
	for cron, tasks := range m.registry {
		if task, ok := tasks[key]; ok {
			found[cron] = map[string]*types.ScheduledTask{key: task}
		}
	}
	if len(found) == 0 {
		return fmt.Sprintf("No tasks found for key %s.", key)
	}
	b, _ := json.MarshalIndent(found, "", "    ")
	return string(b)
}

// add parses "<cron> COMMAND(<inner command>)" per add_schedule_task.
// The task key is the second whitespace-separated token of the inner
// command (its target path), matching the original's extraction.
func (m *Manager) add(details string) string {
	idx := strings.Index(details, " COMMAND(")
	if idx < 0 || !strings.HasSuffix(strings.TrimSpace(details), ")") {
		return "ERROR: Failed to add task - missing COMMAND(...)"
	}
	cron := strings.TrimSpace(details[:idx])
	inner := strings.TrimSpace(details[idx+len(" COMMAND("):])
	inner = strings.TrimSuffix(inner, ")")

	elements := strings.Fields(inner)
	if len(elements) < 2 {
		return "ERROR: Command format incorrect, missing key"
	}
	key := elements[1]

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registry[cron]; !ok {
		m.registry[cron] = make(map[string]*types.ScheduledTask)
	}
	next, err := NextRun(cron, time.Now())
	if err != nil {
		return fmt.Sprintf("ERROR: Failed to add task - %s", err)
	}
	m.registry[cron][key] = &types.ScheduledTask{
		Key:     key,
		Cron:    cron,
		Command: inner,
		LastRun: 0,
		NextRun: next.Unix(),
	}
	return "OK"
}

func (m *Manager) del(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cron, tasks := range m.registry {
		if _, ok := tasks[key]; ok {
			delete(tasks, key)
			if len(tasks) == 0 {
				delete(m.registry, cron)
			}
			return "OK"
		}
	}
	return fmt.Sprintf("ERROR: Task with key %s not found", key)
}

func (m *Manager) flushAll() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = make(types.SchedulerRegistry)
	return "OK"
}

func (m *Manager) flushSchedule(cron string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registry[cron]; !ok {
		return fmt.Sprintf("ERROR: Schedule %s not found", cron)
	}
	delete(m.registry, cron)
	return "OK"
}

// Snapshot returns a deep-enough copy of the registry for persistence.
func (m *Manager) Snapshot() types.SchedulerRegistry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(types.SchedulerRegistry, len(m.registry))
	for cron, tasks := range m.registry {
		copyTasks := make(map[string]*types.ScheduledTask, len(tasks))
		for k, v := range tasks {
			clone := *v
			copyTasks[k] = &clone
		}
		out[cron] = copyTasks
	}
	return out
}

// Restore replaces the registry wholesale, used when loading
// scheduler.json at startup.
func (m *Manager) Restore(reg types.SchedulerRegistry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg == nil {
		reg = make(types.SchedulerRegistry)
	}
	m.registry = reg
}

// Count returns the total number of registered tasks across all cron
// expressions, for the mgindb_scheduled_tasks_total gauge.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tasks := range m.registry {
		n += len(tasks)
	}
	return n
}
