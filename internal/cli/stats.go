package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/retrieval"
	"github.com/rcliao/recall/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show storage and retrieval statistics",
		Long: "Show database counts and the in-memory retrieval state after restoring global " +
			"memory. --metrics adds the recall_* Prometheus counters collected by this run.",
		Run: runStats,
	}

	cmd.Flags().Bool("offline", false, "Skip contacting the embedding provider")
	cmd.Flags().Bool("metrics", false, "Include Prometheus metrics")

	RootCmd.AddCommand(cmd)
}

type statsOutput struct {
	Store     *store.Stats     `json:"store" yaml:"store"`
	Retrieval retrieval.Stats  `json:"retrieval" yaml:"retrieval"`
	Metrics   []metrics.Family `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) {
	offline, _ := cmd.Flags().GetBool("offline")
	withMetrics, _ := cmd.Flags().GetBool("metrics")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	// An unreachable provider is reported as a disabled engine, not an error.
	if !offline {
		if err := a.ready(cmd.Context()); err != nil {
			a.log.Warn("retrieval not ready", zap.Error(err))
		}
	}

	out, err := collectStats(cmd.Context(), a, withMetrics)
	if err != nil {
		exitErr("stats", err)
	}
	printValue(out)
}

func collectStats(ctx context.Context, a *app, withMetrics bool) (statsOutput, error) {
	st, err := a.store.Stats(ctx, getDBPath(a.cfg))
	if err != nil {
		return statsOutput{}, err
	}
	out := statsOutput{Store: st, Retrieval: a.engine.Stats()}
	if withMetrics {
		if out.Metrics, err = metrics.Snapshot(nil); err != nil {
			return statsOutput{}, err
		}
	}
	return out, nil
}
