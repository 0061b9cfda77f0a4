package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/courier/internal/cmd/client"
	serverrun "github.com/rzbill/courier/internal/cmd/server"
	"github.com/rzbill/courier/internal/runtime"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := clientcmd.NewRoot(apiURL)
	rootCmd.AddCommand(newBrokerCommand())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newBrokerCommand constructs `broker start`, which hosts the Pebble-backed
// broker over gRPC together with the HTTP front end.
func newBrokerCommand() *cobra.Command {
	brokerCmd := &cobra.Command{Use: "broker", Short: "Broker commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the broker (gRPC queue service and HTTP front end)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientcmd.LoadConfig(cmd)
			if err != nil {
				return err
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			probeWorkers, _ := cmd.Flags().GetInt("probe-workers")
			benchRequests, _ := cmd.Flags().GetInt("bench-requests")
			benchTPS, _ := cmd.Flags().GetInt("bench-tps")
			benchRounds, _ := cmd.Flags().GetInt("bench-rounds")

			if dataDir == "" {
				dataDir = cfg.Transport.DataDir
			}
			if fsyncMode == "" {
				fsyncMode = cfg.Transport.Fsync
			}
			mode, err := runtime.ParseFsync(fsyncMode)
			if err != nil {
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			if err := serverrun.Run(cmd.Context(), serverrun.Options{
				DataDir:       dataDir,
				GRPCAddr:      grpcAddr,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
				ProbeWorkers:  probeWorkers,
				Bench: serverrun.BenchOptions{
					Requests: benchRequests,
					TPS:      benchTPS,
					Rounds:   benchRounds,
				},
			}); err != nil {
				return fmt.Errorf("broker error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	startCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses the configured or OS-specific application data directory)")
	startCmd.Flags().String("grpc", "", "gRPC listen address (default from config, :7070)")
	startCmd.Flags().String("http", "", "HTTP listen address (default from config, :7080)")
	startCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never (default from config)")
	startCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	startCmd.Flags().Int("probe-workers", 0, "In-process probe workers on the request queue")
	startCmd.Flags().Int("bench-requests", 0, "Requests per in-process load-test round (0 disables)")
	startCmd.Flags().Int("bench-tps", 50, "Target TPS of in-process load-test rounds")
	startCmd.Flags().Int("bench-rounds", 0, "In-process load-test rounds (0 = until shutdown)")
	brokerCmd.AddCommand(startCmd)
	return brokerCmd
}

func apiURL() string {
	if v := os.Getenv("COURIER_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:7080"
}
