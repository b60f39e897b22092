// Package cli provides the command-line interface for fbparty.
package cli

import (
	"fmt"
	"strconv"

	"github.com/raphaelgruber/fbparty-go/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fbparty",
	Short: "Watch-party rooms for Facebook videos",
	Long: `fbparty manages watch-party rooms on an fbparty server.

Queue Facebook video pages in a room, let the server acquire the media
with a stored browser session, and watch together in sync.

The server URL defaults to FBPARTY_SERVER_URL or http://localhost:3020.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $FBPARTY_SERVER_URL or "+client.DefaultServerURL+")")

	rootCmd.AddCommand(cookieCmd)
	rootCmd.AddCommand(roomCmd)
	rootCmd.AddCommand(videoCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(statsCmd)
}

// parseID parses a numeric room or video id argument.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", arg)
	}
	return id, nil
}
