package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/client"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	processAsync bool
	processNoUI  bool
	watchedUnset bool
)

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Inspect and acquire queued videos",
	Long: `Inspect queued videos and run the acquisition pipeline on them.

Processing locates the media streams of the page with the stored session,
downloads them, optionally merges audio and video and captures a thumbnail.

Examples:
  fbparty video process 12          # progress bar on a terminal
  fbparty video process 12 --async  # return once the video is claimed
  fbparty video show 12
  fbparty video urls 12
  fbparty video watched 12 --unset`,
}

var videoShowCmd = &cobra.Command{
	Use:   "show <id|code>",
	Short: "Show a video by id or short code",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideoShow,
}

var videoProcessCmd = &cobra.Command{
	Use:   "process <id>",
	Short: "Acquire the media of a queued video",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideoProcess,
}

var videoURLsCmd = &cobra.Command{
	Use:   "urls <id>",
	Short: "Print the public artifact URLs of a completed video",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideoURLs,
}

var videoWatchedCmd = &cobra.Command{
	Use:   "watched <id>",
	Short: "Mark a video as watched",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideoWatched,
}

var videoDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a video and its files",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideoDelete,
}

func init() {
	videoProcessCmd.Flags().BoolVar(&processAsync, "async", false, "return as soon as the video is claimed")
	videoProcessCmd.Flags().BoolVar(&processNoUI, "no-progress", false, "wait without the progress bar")
	videoWatchedCmd.Flags().BoolVar(&watchedUnset, "unset", false, "mark as not watched")

	videoCmd.AddCommand(videoShowCmd)
	videoCmd.AddCommand(videoProcessCmd)
	videoCmd.AddCommand(videoURLsCmd)
	videoCmd.AddCommand(videoWatchedCmd)
	videoCmd.AddCommand(videoDeleteCmd)
}

func runVideoShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	var (
		v   *api.Video
		err error
	)
	if id, perr := parseID(args[0]); perr == nil {
		v, err = apiClient.GetVideo(ctx, id)
	} else {
		v, err = apiClient.GetVideoByCode(ctx, args[0])
	}
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("video not found: %s", args[0])
		}
		return fmt.Errorf("get video: %w", err)
	}
	printVideo(v)
	return nil
}

func runVideoProcess(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()

	interactive := !processNoUI && term.IsTerminal(int(os.Stdout.Fd()))
	if processAsync || interactive {
		v, err := apiClient.ProcessVideo(ctx, id, true)
		if err != nil {
			return fmt.Errorf("process video: %w", err)
		}
		if processAsync {
			fmt.Printf("Processing video %d in background\n", v.ID)
			fmt.Printf("Use 'fbparty video show %d' to check status\n", v.ID)
			return nil
		}
		return RunVideoProgress(apiClient, v)
	}

	v, err := apiClient.ProcessVideo(ctx, id, false)
	if err != nil {
		return fmt.Errorf("process video: %w", err)
	}
	printVideo(v)
	if v.Status == models.VideoStatusFailed {
		return fmt.Errorf("acquisition failed")
	}
	return nil
}

func runVideoURLs(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	urls, err := apiClient.VideoURLs(context.Background(), id)
	if err != nil {
		return fmt.Errorf("video urls: %w", err)
	}
	fmt.Printf("video: %s\n", urls.Video)
	if urls.Audio != nil {
		fmt.Printf("audio: %s\n", *urls.Audio)
	}
	if urls.Thumbnail != nil {
		fmt.Printf("thumbnail: %s\n", *urls.Thumbnail)
	}
	return nil
}

func runVideoWatched(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	v, err := apiClient.SetWatched(context.Background(), id, !watchedUnset)
	if err != nil {
		return fmt.Errorf("set watched: %w", err)
	}
	fmt.Printf("Video %d watched: %t\n", v.ID, v.Watched)
	return nil
}

func runVideoDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.DeleteVideo(context.Background(), id); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	fmt.Printf("Deleted video %d\n", id)
	return nil
}

func printVideo(v *api.Video) {
	fmt.Printf("Video: %d (%s)\n", v.ID, v.Code)
	fmt.Printf("  Room: %d\n", v.RoomID)
	fmt.Printf("  Page: %s\n", v.PageURL)
	if v.Title != nil {
		fmt.Printf("  Title: %s\n", *v.Title)
	}
	status := string(v.Status)
	if v.Stage != nil && v.Status == models.VideoStatusProcessing {
		status += " (" + *v.Stage + ")"
	}
	fmt.Printf("  Status: %s\n", status)
	if v.ErrorMessage != nil {
		fmt.Printf("  Error: %s\n", *v.ErrorMessage)
	}
	fmt.Printf("  Watched: %t\n", v.Watched)
	if v.PublicVideoURL != nil {
		fmt.Printf("  Video URL: %s\n", *v.PublicVideoURL)
	}
	if v.PublicAudioURL != nil {
		fmt.Printf("  Audio URL: %s\n", *v.PublicAudioURL)
	}
	if v.PublicThumbnailURL != nil {
		fmt.Printf("  Thumbnail URL: %s\n", *v.PublicThumbnailURL)
	}
	if v.ProcessedAt != nil {
		fmt.Printf("  Processed: %s\n", v.ProcessedAt.Format(time.RFC3339))
	}
	if verbose {
		if v.VideoURL != nil {
			fmt.Printf("  Source video: %s\n", *v.VideoURL)
		}
		if v.AudioURL != nil {
			fmt.Printf("  Source audio: %s\n", *v.AudioURL)
		}
		fmt.Printf("  Created: %s\n", v.CreatedAt.Format(time.RFC3339))
	}
}
