package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/mgindb/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit conf.json without starting the server",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every configured key and value",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		vals := cfg.All()
		keys := make([]string, 0, len(vals))
		for k := range vals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, vals[k])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Println(cfg.Get(args[0]))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return cfg.Set(args[0], args[1])
	},
}

var configDelCmd = &cobra.Command{
	Use:   "del <key>",
	Short: "Remove a configuration key (refused for protected keys)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return cfg.Del(args[0])
	},
}

func init() {
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configDelCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Store, error) {
	return config.Load(filepath.Join(dataDir(cmd), "conf.json"))
}
