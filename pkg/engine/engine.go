// Package engine assembles every subsystem package into one running
// instance: the document tree and secondary indices, the query cache,
// the pub/sub broker, the scheduler's tick loop, on-disk persistence,
// the command processor, and the optional sharding, replication and
// blockchain managers. Grounded on the teacher's pkg/manager, which
// plays the same "construct every subsystem, wire their callbacks,
// own the startup/shutdown sequence" role for a cluster manager.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/mgindb/pkg/backup"
	"github.com/cuemby/mgindb/pkg/blockchain"
	"github.com/cuemby/mgindb/pkg/cache"
	"github.com/cuemby/mgindb/pkg/command"
	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/log"
	"github.com/cuemby/mgindb/pkg/persistence"
	"github.com/cuemby/mgindb/pkg/pubsub"
	"github.com/cuemby/mgindb/pkg/replication"
	"github.com/cuemby/mgindb/pkg/scheduler"
	"github.com/cuemby/mgindb/pkg/sharding"
	"github.com/cuemby/mgindb/pkg/types"
	"github.com/cuemby/mgindb/pkg/wsserver"
	"github.com/rs/zerolog"
)

// Engine owns every subsystem and the order they start and stop in.
type Engine struct {
	Config *config.Store

	Tree  *document.Tree
	TTL   *document.TTLStore
	Index *index.Engine
	Cache *cache.Cache

	Broker      *pubsub.Broker
	Persist     *persistence.Store
	Scheduler   *scheduler.Manager
	Backup      *backup.Manager
	Sharding    *sharding.Manager
	Replication *replication.Manager
	Blockchain  *blockchain.Manager

	Processor *command.Processor
	WS        *wsserver.Server

	log zerolog.Logger
}

// New builds an Engine rooted at baseDir, loading conf.json and any
// persisted data/indices/schedule snapshots found there. The returned
// Engine has not started its scheduler or websocket listener yet; call
// Start for that.
func New(baseDir string) (*Engine, error) {
	cfg, err := config.Load(filepath.Join(baseDir, "conf.json"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	tree := document.NewTree()
	ttl := document.NewTTLStore()
	idx := index.NewEngine()
	qcache := cache.New(int64(cfg.GetInt("QUERY_CACHING_TTL")))
	broker := pubsub.NewBroker()
	persist := persistence.NewStore(baseDir)
	bk := backup.NewManager(baseDir)
	shardMgr := sharding.NewManager(cfg, tree, idx, bk, log.WithComponent("sharding"))
	replMgr := replication.NewManager(cfg, tree, log.WithComponent("replication"))

	chain, err := blockchain.NewManager(cfg, broker, baseDir, log.WithComponent("blockchain"))
	if err != nil {
		return nil, fmt.Errorf("open blockchain store: %w", err)
	}

	// command.NewProcessor needs a *scheduler.Manager up front, but the
	// scheduler's Runner needs to call back into the Processor it has
	// not been built with yet. proc is assigned once NewProcessor
	// returns; by the time the tick loop actually runs (Start, below),
	// it is never nil.
	var proc *command.Processor
	sched := scheduler.NewManager(
		func(cmd string) string { return proc.Execute(cmd, "") },
		func() bool { return cfg.GetBool("SCHEDULER") },
		scheduler.TickHooks{
			SweepExpired: func(now int64) {
				for _, path := range ttl.Sweep(now) {
					if old, ok := tree.Get(path); ok {
						parts := document.SplitPath(path)
						if !old.IsObject() {
							idx.OnRemove(path, old)
						} else if len(parts) >= 2 {
							idx.RemoveEntity(parts[0], parts[1])
						}
					}
					tree.Delete(path)
				}
				qcache.Sweep(now)
			},
			Snapshot: func() {
				proc.Snapshot()
				chain.Tick()
			},
		},
		cfg.GetInt("SAVE_ON_FILE_INTERVAL"),
	)

	proc = command.NewProcessor(tree, ttl, idx, qcache, broker, cfg, sched, persist, log.WithComponent("command"))

	proc.CheckSharding = shardMgr.CheckSharding
	proc.Reshard = shardMgr.Reshard
	proc.IsReplicationMaster = replMgr.IsReplicationMaster
	proc.BroadcastToSlaves = replMgr.BroadcastToSlaves
	proc.ServeReplicate = replMgr.ServeReplicate
	proc.BlockchainEnabled = cfg.GetBool("BLOCKCHAIN")
	proc.BlockchainExecute = chain.Execute
	proc.BlockchainAddTx = chain.AddTx
	proc.Backup = bk.Handle
	proc.Rollback = bk.Rollback

	shardMgr.ApplyLocal = func(cmd string) string { return proc.Execute(cmd, "") }

	bk.LoadData = persist.LoadData
	bk.LoadIndices = func() (json.RawMessage, error) { return index.Dump(idx) }
	bk.LoadSchedule = func() (types.SchedulerRegistry, error) { return sched.Snapshot(), nil }
	bk.RestoreData = func(v types.Value) error { tree.Restore(v); return nil }
	bk.RestoreIndices = func(raw json.RawMessage) error { return replaceIndices(idx, raw) }
	bk.RestoreSchedule = func(reg types.SchedulerRegistry) error { sched.Restore(reg); return nil }

	replMgr.DumpIndices = func() (json.RawMessage, error) { return index.Dump(idx) }
	replMgr.RestoreData = func(v types.Value) error { tree.Restore(v); return nil }
	replMgr.RestoreIndices = func(raw json.RawMessage) error { return replaceIndices(idx, raw) }

	ws := wsserver.NewServer(cfg, proc, broker, log.WithComponent("wsserver"))

	e := &Engine{
		Config:      cfg,
		Tree:        tree,
		TTL:         ttl,
		Index:       idx,
		Cache:       qcache,
		Broker:      broker,
		Persist:     persist,
		Scheduler:   sched,
		Backup:      bk,
		Sharding:    shardMgr,
		Replication: replMgr,
		Blockchain:  chain,
		Processor:   proc,
		WS:          ws,
		log:         log.WithComponent("engine"),
	}

	if err := e.loadSnapshots(); err != nil {
		return nil, err
	}

	return e, nil
}

// Start launches the scheduler tick loop and the websocket listener,
// blocking until ctx is cancelled or the listener fails.
func (e *Engine) Start(ctx context.Context, addr string) error {
	e.Scheduler.Start()
	return e.WS.Start(ctx, addr)
}

// Stop halts the scheduler, persists final state, optionally backs up
// on shutdown per BACKUP_ON_SHUTDOWN, and closes the blockchain store.
func (e *Engine) Stop() {
	e.Scheduler.Stop()
	e.WS.Shutdown()
	e.Processor.Snapshot()
	if err := e.Persist.SaveScheduler(e.Scheduler.Snapshot()); err != nil {
		e.log.Error().Err(err).Msg("save scheduler snapshot")
	}
	if e.Config.GetBool("BACKUP_ON_SHUTDOWN") {
		e.Backup.Create()
	}
	if err := e.Blockchain.Close(); err != nil {
		e.log.Error().Err(err).Msg("close blockchain store")
	}
}

// loadSnapshots restores document, index and scheduler state persisted
// from a previous run, per spec.md §4.16's startup sequence.
func (e *Engine) loadSnapshots() error {
	data, err := e.Persist.LoadData()
	if err != nil {
		return fmt.Errorf("load data snapshot: %w", err)
	}
	e.Tree.Restore(data)

	restored, err := e.Persist.LoadIndices()
	if err != nil {
		return fmt.Errorf("load indices snapshot: %w", err)
	}
	e.Index.ReplaceFrom(restored)

	registry, err := e.Persist.LoadScheduler()
	if err != nil {
		return fmt.Errorf("load scheduler snapshot: %w", err)
	}
	e.Scheduler.Restore(registry)

	return nil
}

// replaceIndices rebuilds an index.Engine from a Dump payload and
// swaps it into idx in place, so every package already holding a
// pointer to idx (the processor, sharding) sees the restored state.
func replaceIndices(idx *index.Engine, raw json.RawMessage) error {
	restored, err := index.Restore(raw)
	if err != nil {
		return err
	}
	idx.ReplaceFrom(restored)
	return nil
}
