package types

// ScheduledTask is one entry in the scheduler registry (spec.md §3.6):
// exactly one per TaskKey, grouped under its cron expression.
type ScheduledTask struct {
	Key     string `json:"key"`
	Cron    string `json:"cron"`
	Command string `json:"command"`
	LastRun int64  `json:"last"`
	NextRun int64  `json:"next"`
}

// SchedulerRegistry mirrors spec.md §3.6: cron expression -> task key -> task.
type SchedulerRegistry map[string]map[string]*ScheduledTask
