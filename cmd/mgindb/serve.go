package main

import (
	"fmt"

	"github.com/cuemby/mgindb/pkg/engine"
	"github.com/cuemby/mgindb/pkg/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MginDB server",
	Long: `Start the MginDB WebSocket server, loading conf.json and any
persisted data/indices/scheduler snapshots from the data directory.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus /metrics endpoint")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := dataDir(cmd)
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	eng, err := engine.New(dir)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	addr := fmt.Sprintf("%s:%s", eng.Config.Get("HOST"), eng.Config.Get("PORT"))

	startMetricsServer(metricsAddr)
	log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	ctx, cancel := signalContext()
	defer cancel()

	log.Logger.Info().Str("addr", addr).Str("data_dir", dir).Msg("mgindb starting")
	if err := eng.Start(ctx, addr); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}

	eng.Stop()
	log.Logger.Info().Msg("mgindb stopped")
	return nil
}
