package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/client"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/party"
	"github.com/spf13/cobra"
)

var (
	roomDescription string
	roomName        string
	roomActive      bool
	watchName       string
)

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Manage watch-party rooms",
	Long: `Create rooms, queue videos in them and follow what happens inside.

Examples:
  fbparty room create "Movie night" --description "fridays"
  fbparty room list
  fbparty room show 3F9A21C0
  fbparty room add 1 https://www.facebook.com/watch/?v=123 https://fb.watch/abc/
  fbparty room videos 1
  fbparty room watch 3F9A21C0 --name alice`,
}

var roomCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomCreate,
}

var roomListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active rooms",
	Args:  cobra.NoArgs,
	RunE:  runRoomList,
}

var roomShowCmd = &cobra.Command{
	Use:   "show <id|code>",
	Short: "Show a room by id or share code",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomShow,
}

var roomUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Rename, describe or deactivate a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomUpdate,
}

var roomDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a room with its videos and files",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomDelete,
}

var roomAddCmd = &cobra.Command{
	Use:   "add <room-id> <url>...",
	Short: "Queue video pages in a room",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRoomAdd,
}

var roomVideosCmd = &cobra.Command{
	Use:   "videos <room-id>",
	Short: "List the videos of a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomVideos,
}

var roomWatchCmd = &cobra.Command{
	Use:   "watch <code>",
	Short: "Join a room and print its events",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoomWatch,
}

func init() {
	roomCreateCmd.Flags().StringVarP(&roomDescription, "description", "d", "", "room description")

	roomUpdateCmd.Flags().StringVar(&roomName, "name", "", "new name")
	roomUpdateCmd.Flags().StringVarP(&roomDescription, "description", "d", "", "new description")
	roomUpdateCmd.Flags().BoolVar(&roomActive, "active", true, "whether the room can be joined")

	roomWatchCmd.Flags().StringVarP(&watchName, "name", "n", "", "display name (random if empty)")

	roomCmd.AddCommand(roomCreateCmd)
	roomCmd.AddCommand(roomListCmd)
	roomCmd.AddCommand(roomShowCmd)
	roomCmd.AddCommand(roomUpdateCmd)
	roomCmd.AddCommand(roomDeleteCmd)
	roomCmd.AddCommand(roomAddCmd)
	roomCmd.AddCommand(roomVideosCmd)
	roomCmd.AddCommand(roomWatchCmd)
}

func runRoomCreate(cmd *cobra.Command, args []string) error {
	var desc *string
	if roomDescription != "" {
		desc = &roomDescription
	}
	room, err := apiClient.CreateRoom(context.Background(), args[0], desc)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	fmt.Printf("Created room: %s (id %d, code %s)\n", room.Name, room.ID, room.Code)
	return nil
}

func runRoomList(cmd *cobra.Command, args []string) error {
	rooms, err := apiClient.ListRooms(context.Background())
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) == 0 {
		fmt.Println("No rooms found")
		return nil
	}

	fmt.Printf("%-6s %-10s %-30s %s\n", "ID", "CODE", "NAME", "CREATED")
	fmt.Println("------------------------------------------------------------------------")
	for _, r := range rooms {
		fmt.Printf("%-6d %-10s %-30s %s\n", r.ID, r.Code, truncateText(r.Name, 30), r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// resolveRoom accepts a numeric id or a share code.
func resolveRoom(ctx context.Context, arg string) (*api.Room, error) {
	if id, err := parseID(arg); err == nil {
		return apiClient.GetRoom(ctx, id)
	}
	return apiClient.GetRoomByCode(ctx, arg)
}

func runRoomShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	room, err := resolveRoom(ctx, args[0])
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("room not found: %s", args[0])
		}
		return fmt.Errorf("get room: %w", err)
	}

	fmt.Printf("Room: %s\n", room.Name)
	fmt.Printf("  ID: %d\n", room.ID)
	fmt.Printf("  Code: %s\n", room.Code)
	if room.Description != nil {
		fmt.Printf("  Description: %s\n", *room.Description)
	}
	fmt.Printf("  Active: %t\n", room.Active)
	fmt.Printf("  Created: %s\n", room.CreatedAt.Format(time.RFC3339))

	videos, err := apiClient.ListVideos(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}
	fmt.Printf("  Videos: %d\n", len(videos))
	return nil
}

func runRoomUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var upd models.RoomUpdate
	if cmd.Flags().Changed("name") {
		upd.Name = &roomName
	}
	if cmd.Flags().Changed("description") {
		upd.Description = &roomDescription
	}
	if cmd.Flags().Changed("active") {
		upd.Active = &roomActive
	}
	if upd.Name == nil && upd.Description == nil && upd.Active == nil {
		return errors.New("nothing to update (use --name, --description or --active)")
	}

	room, err := apiClient.UpdateRoom(context.Background(), id, upd)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	fmt.Printf("Updated room: %s (id %d, active %t)\n", room.Name, room.ID, room.Active)
	return nil
}

func runRoomDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.DeleteRoom(context.Background(), id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	fmt.Printf("Deleted room %d\n", id)
	return nil
}

func runRoomAdd(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()

	urls := args[1:]
	var videos []api.Video
	if len(urls) == 1 {
		v, err := apiClient.AddVideo(ctx, id, urls[0])
		if err != nil {
			return fmt.Errorf("add video: %w", err)
		}
		videos = []api.Video{*v}
	} else {
		videos, err = apiClient.AddVideos(ctx, id, urls)
		if err != nil {
			return fmt.Errorf("add videos: %w", err)
		}
	}

	for _, v := range videos {
		fmt.Printf("Queued video %d (%s): %s\n", v.ID, v.Code, v.PageURL)
	}
	return nil
}

func runRoomVideos(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	videos, err := apiClient.ListVideos(context.Background(), id)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}
	if len(videos) == 0 {
		fmt.Println("No videos queued")
		return nil
	}

	fmt.Printf("%-6s %-8s %-11s %-7s %s\n", "ID", "CODE", "STATUS", "WATCHED", "TITLE / URL")
	fmt.Println("------------------------------------------------------------------------")
	for _, v := range videos {
		label := v.PageURL
		if v.Title != nil && *v.Title != "" {
			label = *v.Title
		}
		watched := ""
		if v.Watched {
			watched = "yes"
		}
		fmt.Printf("%-6d %-8s %-11s %-7s %s\n", v.ID, v.Code, v.Status, watched, truncateText(label, 50))
	}
	return nil
}

func runRoomWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := apiClient.WatchRoom(ctx, args[0], watchName, func(msg party.Message) error {
		if line := formatEvent(msg); line != "" {
			fmt.Println(line)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// formatEvent renders a room event as one line, or "" for events not worth printing.
func formatEvent(msg party.Message) string {
	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}
	prefix := ts.Format("15:04:05")

	switch msg.Action {
	case party.EventJoined:
		return fmt.Sprintf("%s joined room %s as %s (%d members)", prefix, msg.RoomCode, msg.UserName, msg.Members)
	case party.EventUserJoin:
		return fmt.Sprintf("%s + %s (%d members)", prefix, msg.UserName, msg.Members)
	case party.EventUserLeave:
		return fmt.Sprintf("%s - %s (%d members)", prefix, msg.UserName, msg.Members)
	case party.ActionChatMessage:
		return fmt.Sprintf("%s <%s> %s", prefix, msg.UserName, msg.Message)
	case party.ActionPlayerEvent:
		line := fmt.Sprintf("%s %s: %s", prefix, msg.UserName, msg.Type)
		if msg.CurrentTime != nil {
			line += fmt.Sprintf(" at %.1fs", *msg.CurrentTime)
		}
		if msg.VideoID != nil {
			line += fmt.Sprintf(" (video %d)", *msg.VideoID)
		}
		return line
	case party.EventVideoStatus:
		if msg.Video == nil {
			return ""
		}
		line := fmt.Sprintf("%s video %d is %s", prefix, msg.Video.ID, msg.Video.Status)
		if msg.Video.ErrorMessage != nil {
			line += ": " + *msg.Video.ErrorMessage
		}
		return line
	case party.EventError:
		return fmt.Sprintf("%s error: %s", prefix, msg.Error)
	default:
		return ""
	}
}

// truncateText shortens s to maxLen runes, adding "..." if truncated.
func truncateText(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
