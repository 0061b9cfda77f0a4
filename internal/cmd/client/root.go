package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs the root Cobra command for courier. It carries the
// persistent configuration flags and registers the client command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "courier",
		Short: "Request/response RPC over durable queues",
		Long: `courier submits requests to a shared request queue and receives
responses on a per-instance reply queue. Workers lease requests, run a
handler and publish the response to the queue named in the request.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "JSON config file (defaults apply when empty)")
	pf.String("transport", "", "Transport: memory|pebble|grpc|redis (overrides config)")
	pf.String("instance", "", "Instance name used to derive the reply queue")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: text|json")

	root.AddCommand(
		NewWorkerCommand(),
		NewSubmitCommand(),
		NewBenchCommand(baseURL),
		NewStatsCommand(),
		NewPeekCommand(),
		NewResultsCommand(baseURL),
	)
	return root
}
