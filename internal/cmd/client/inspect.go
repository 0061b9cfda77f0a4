package client

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rzbill/courier/internal/transport"
)

// NewStatsCommand constructs the `stats` command.
func NewStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ready and in-flight counts for a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd)
			if err != nil {
				return err
			}
			queue, _ := cmd.Flags().GetString("queue")
			if queue == "" {
				queue = cfg.Queues.Request
			}
			tr, err := openBackend(cmd.Context(), cfg.Transport, commandLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer tr.Close()
			st, err := tr.Stats(cmd.Context(), queue)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
	statsCmd.Flags().String("queue", "", "Queue name (default: the request queue)")
	return statsCmd
}

// NewPeekCommand constructs the `peek` command.
func NewPeekCommand() *cobra.Command {
	peekCmd := &cobra.Command{
		Use:   "peek",
		Short: "List queued messages without leasing them",
		Example: `  courier peek --queue request-queue --limit 5
  courier peek --filter 'deliveries > 1'
  courier peek --filter 'has(json.requestNumber) && json.requestNumber > 10.0'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd)
			if err != nil {
				return err
			}
			queue, _ := cmd.Flags().GetString("queue")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			if queue == "" {
				queue = cfg.Queues.Request
			}
			tr, err := openBackend(cmd.Context(), cfg.Transport, commandLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer tr.Close()
			msgs, err := tr.Peek(cmd.Context(), queue, transport.PeekOptions{Limit: limit, Filter: filter})
			if err != nil {
				return err
			}
			for _, m := range msgs {
				out := decodedBody(m.Body)
				out["seq"] = m.Seq
				out["deliveries"] = m.Deliveries
				out["leased"] = m.Leased
				out["enqueued_ms"] = m.EnqueuedAtMs
				if err := printJSON(cmd, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
	peekCmd.Flags().String("queue", "", "Queue name (default: the request queue)")
	peekCmd.Flags().Int("limit", 20, "Maximum messages to list")
	peekCmd.Flags().String("filter", "", "CEL filter over seq, deliveries, size, text, json, leased, enqueued_ms, now_ms")
	return peekCmd
}

// NewResultsCommand constructs the `results` command, which reads recorded
// load-test rounds from the broker's HTTP front end.
func NewResultsCommand(baseURL BaseURLFunc) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Show recent load-test rounds recorded by the broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			base := "http://127.0.0.1:7080"
			if baseURL != nil {
				base = baseURL()
			}
			u := strings.TrimRight(base, "/") + "/v1/results?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("results: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	resultsCmd.Flags().Int("limit", 20, "Rounds to show")
	return resultsCmd
}
