package main

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/mgindb/pkg/backup"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/persistence"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup [list|del <file|ALL>]",
	Short: "Snapshot (or inspect) data/indices/scheduler state on disk",
	Long: `With no arguments, writes a new backup trio (data, indices, scheduler)
from whatever is currently persisted in the data directory. "list"
prints existing backups; "del" removes one file or every backup file.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := offlineBackupManager(cmd)
		if err != nil {
			return err
		}
		switch {
		case len(args) == 0:
			fmt.Println(mgr.Create())
		case args[0] == "list":
			fmt.Println(mgr.List())
		case args[0] == "del" && len(args) == 2:
			if args[1] == "ALL" {
				fmt.Println(mgr.DeleteAll())
			} else {
				fmt.Println(mgr.DeleteOne(args[1]))
			}
		default:
			return fmt.Errorf("usage: mgindb backup [list|del <file|ALL>]")
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the most recent backup trio over the persisted data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := offlineBackupManager(cmd)
		if err != nil {
			return err
		}
		fmt.Println(mgr.Rollback())
		return nil
	},
}

// offlineBackupManager wires a backup.Manager directly against
// pkg/persistence's on-disk snapshots, for operating on a data
// directory without a live server holding the document tree in
// memory. A running server's pkg/engine wires the same hooks against
// its live tree/index/scheduler instead, so a backup taken while the
// server is up reflects whatever it last snapshotted rather than
// requiring a stop-the-world read.
func offlineBackupManager(cmd *cobra.Command) (*backup.Manager, error) {
	dir := dataDir(cmd)
	persist := persistence.NewStore(dir)
	mgr := backup.NewManager(dir)

	mgr.LoadData = persist.LoadData
	mgr.LoadIndices = func() (json.RawMessage, error) {
		eng, err := persist.LoadIndices()
		if err != nil {
			return nil, err
		}
		return index.Dump(eng)
	}
	mgr.LoadSchedule = persist.LoadScheduler

	mgr.RestoreData = persist.SaveData
	mgr.RestoreIndices = func(raw json.RawMessage) error {
		eng, err := index.Restore(raw)
		if err != nil {
			return err
		}
		return persist.SaveIndices(eng)
	}
	mgr.RestoreSchedule = persist.SaveScheduler

	return mgr, nil
}
