package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show in-memory timing statistics of the server since its last restart:
session checks, media location, downloads, muxing, thumbnails, whole
acquisitions and database queries.

Prometheus series are available at /metrics on the server.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(stats *metrics.Snapshot) {
	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", stats.UptimeSeconds)

	sections := []struct {
		title string
		op    *metrics.OperationSnapshot
	}{
		{"Session Checks", stats.Validate},
		{"Locate", stats.Locate},
		{"Download", stats.Download},
		{"Mux", stats.Mux},
		{"Thumbnail", stats.Thumbnail},
		{"Acquisitions", stats.Process},
		{"DB Query", stats.DBQuery},
	}
	for _, s := range sections {
		if s.op == nil {
			continue
		}
		fmt.Printf("\n%s:\n", s.title)
		printOpStats(s.op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalBytes != nil {
		fmt.Printf("  Bytes: %s total", formatBytes(*op.TotalBytes))
		if op.AvgBytes != nil {
			fmt.Printf(", avg %s", formatBytes(int64(*op.AvgBytes)))
		}
		if op.MinBytes != nil && op.MaxBytes != nil {
			fmt.Printf(", min %s, max %s", formatBytes(*op.MinBytes), formatBytes(*op.MaxBytes))
		}
		fmt.Println()
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
