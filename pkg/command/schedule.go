package command

// cmdSchedule handles SCHEDULE SHOW/ADD/DEL/FLUSH, delegating directly
// to the scheduler manager's own command handler, per spec.md §4.10.
func (p *Processor) cmdSchedule(args, sid string) string {
	if p.Scheduler == nil {
		return "ERROR: Scheduler is not configured"
	}
	return p.Scheduler.HandleCommand(args)
}
