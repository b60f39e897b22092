package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/client"
	"github.com/raphaelgruber/fbparty-go/internal/models"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// stageProgress maps the pipeline position of a video onto a bar fraction.
var stageProgress = map[string]float64{
	models.StageLocating:    0.15,
	models.StageDownloading: 0.4,
	models.StageMuxing:      0.75,
	models.StageThumbnail:   0.9,
}

func videoProgress(v *api.Video) float64 {
	if v == nil {
		return 0
	}
	switch v.Status {
	case models.VideoStatusCompleted:
		return 1
	case models.VideoStatusProcessing:
		if v.Stage != nil {
			return stageProgress[*v.Stage]
		}
	}
	return 0
}

// tickMsg triggers polling the video status
type tickMsg time.Time

// videoUpdateMsg carries the updated video
type videoUpdateMsg struct {
	video *api.Video
	err   error
}

// progressModel is the bubbletea model for acquisition progress.
type progressModel struct {
	client   *client.Client
	videoID  int64
	video    *api.Video
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, v *api.Video) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		videoID:  v.ID,
		video:    v,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchVideo()

	case videoUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch video status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.video = msg.video

		switch m.video.Status {
		case models.VideoStatusCompleted:
			m.done = true
			return m, tea.Quit
		case models.VideoStatusFailed:
			m.done = true
			if m.video.ErrorMessage != nil {
				m.err = fmt.Errorf("%s", *m.video.ErrorMessage)
			} else {
				m.err = fmt.Errorf("acquisition failed with unknown error")
			}
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.video == nil {
		return "Loading video status...\n"
	}

	label := string(m.video.Status)
	if m.video.Stage != nil {
		label = *m.video.Stage
	}
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", label))
	bar := m.progress.ViewAs(videoProgress(m.video))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s video %d\n%s\n", status, bar, m.videoID, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nVideo %d continues processing in background.\nUse 'fbparty video show %d' to check status.\n",
			m.videoID, m.videoID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Acquisition failed: %s\n", m.err))
	}

	output := m.theme.completedStyle().Render("✓ Completed") + "\n\n"
	if m.video != nil {
		if m.video.Title != nil {
			output += fmt.Sprintf("  Title:     %s\n", *m.video.Title)
		}
		if m.video.PublicVideoURL != nil {
			output += fmt.Sprintf("  Video:     %s\n", *m.video.PublicVideoURL)
		}
		if m.video.PublicAudioURL != nil {
			output += fmt.Sprintf("  Audio:     %s\n", *m.video.PublicAudioURL)
		}
		if m.video.PublicThumbnailURL != nil {
			output += fmt.Sprintf("  Thumbnail: %s\n", *m.video.PublicThumbnailURL)
		}
	}
	return output
}

// fetchVideo runs in a command so Update never blocks on the network.
func (m progressModel) fetchVideo() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		v, err := m.client.GetVideo(ctx, m.videoID)
		return videoUpdateMsg{video: v, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunVideoProgress shows an interactive progress bar for a submitted video.
// Returns nil on success or Ctrl+C (background), error on acquisition failure.
func RunVideoProgress(c *client.Client, v *api.Video) error {
	model := newProgressModel(c, v)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
