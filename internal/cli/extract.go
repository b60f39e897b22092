package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Locate the media streams of a page without storing anything",
	Long: `Open a video page with the stored session and report the media
streams found, without creating a video or downloading.

Useful to check that a page is reachable before queueing it.

Examples:
  fbparty extract https://www.facebook.com/watch/?v=123
  fbparty extract https://fb.watch/abc/ -v`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	loc, err := apiClient.Extract(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	if loc.Title != "" {
		fmt.Printf("Title: %s\n", loc.Title)
	}
	fmt.Printf("Strategy: %s\n", loc.Strategy)
	if loc.Pairing != "" {
		fmt.Printf("Pairing: %s\n", loc.Pairing)
	}
	fmt.Printf("Video: %s\n", loc.VideoURL)
	if loc.AudioURL != "" {
		fmt.Printf("Audio: %s\n", loc.AudioURL)
	}
	if verbose && len(loc.Candidates) > 0 {
		fmt.Printf("\nCandidates (%d):\n", len(loc.Candidates))
		for _, c := range loc.Candidates {
			fmt.Printf("  %s\n", c)
		}
	}
	return nil
}
