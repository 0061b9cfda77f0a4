package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/runtime"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// NewSubmitCommand constructs the `submit` command: one request, one response.
func NewSubmitCommand() *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a JSON request and print the worker's response",
		Example: `  courier submit --transport grpc --data '{"requestNumber":1}'
  courier submit --data '"A"' --timeout 2s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd)
			if err != nil {
				return err
			}
			data, _ := cmd.Flags().GetString("data")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--data must be valid JSON")
			}
			if timeout <= 0 {
				timeout = cfg.Client.RequestTimeout()
			}

			logger := commandLogger(cmd, cfg)
			tr, err := openBackend(cmd.Context(), cfg.Transport, logger)
			if err != nil {
				return err
			}
			defer tr.Close()

			client, err := rpc.NewClient[json.RawMessage, json.RawMessage](tr,
				runtime.QueueNames(cfg),
				runtime.ClientOptions(cfg, logger.With(logpkg.Component("client"))))
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Initialize(cmd.Context()); err != nil {
				return err
			}

			start := time.Now()
			resp, err := client.Call(cmd.Context(), json.RawMessage(data), timeout)
			if err != nil {
				return err
			}
			logger.Debug("response received", logpkg.Dur("latency", time.Since(start)))
			fmt.Fprintln(cmd.OutOrStdout(), string(resp))
			return nil
		},
	}
	submitCmd.Flags().String("data", "{}", "Request payload (JSON)")
	submitCmd.Flags().Duration("timeout", 0, "Request timeout (default from config)")
	return submitCmd
}
