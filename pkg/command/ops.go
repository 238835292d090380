package command

// cmdBackup handles BACKUP, delegating to the backup hook wired in by
// pkg/engine, per spec.md §6.2.
func (p *Processor) cmdBackup(args, sid string) string {
	if p.Backup == nil {
		return "ERROR: Backup is not configured"
	}
	return p.Backup(args)
}

// cmdRollback handles ROLLBACK, per spec.md §6.2.
func (p *Processor) cmdRollback(args, sid string) string {
	if p.Rollback == nil {
		return "ERROR: Backup is not configured"
	}
	result := p.Rollback()
	if result == "OK" {
		p.clearDirty()
	}
	return result
}

// cmdReplicate handles REPLICATE, a slave's bulk-sync request served
// by the replication hook, per spec.md §4.13.
func (p *Processor) cmdReplicate(args, sid string) string {
	if p.ServeReplicate == nil {
		return "ERROR: Replication is not configured"
	}
	return p.ServeReplicate(sid)
}

// cmdReshard handles RESHARD, per spec.md §4.12.
func (p *Processor) cmdReshard(args, sid string) string {
	if p.Reshard == nil {
		return "ERROR: Sharding is not configured"
	}
	return p.Reshard()
}

// cmdServerStop handles SERVERSTOP, per spec.md §4.1's graceful
// shutdown verb.
func (p *Processor) cmdServerStop(args, sid string) string {
	if p.Stop != nil {
		p.Stop()
	}
	return "exit"
}

// cmdCheckUpdate handles CHECKUPDATE, delegating to the CheckUpdate
// hook when one is set. pkg/engine sets none, so the reply is the
// "not configured" error.
func (p *Processor) cmdCheckUpdate(args, sid string) string {
	if p.CheckUpdate == nil {
		return "ERROR: Update checking is not configured"
	}
	return p.CheckUpdate()
}

// blockchainVerb routes a blockchain-family verb to the blockchain
// hook, common to BLOCKCHAIN/NEW_WALLET/GET_WALLET/BLOCK, per spec.md
// §4.15.
func (p *Processor) blockchainVerb(verb, args string) string {
	if !p.BlockchainEnabled || p.BlockchainExecute == nil {
		return "ERROR: Blockchain is not enabled"
	}
	return p.BlockchainExecute(verb, args)
}

func (p *Processor) cmdBlockchain(args, sid string) string { return p.blockchainVerb("BLOCKCHAIN", args) }
func (p *Processor) cmdNewWallet(args, sid string) string  { return p.blockchainVerb("NEW_WALLET", args) }
func (p *Processor) cmdGetWallet(args, sid string) string  { return p.blockchainVerb("GET_WALLET", args) }
func (p *Processor) cmdBlock(args, sid string) string      { return p.blockchainVerb("BLOCK", args) }
