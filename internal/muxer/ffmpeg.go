// Package muxer combines separately downloaded video and audio streams
// with the ffmpeg command line tool.
package muxer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
)

// ErrUnavailable indicates the ffmpeg binary cannot be found.
var ErrUnavailable = errors.New("ffmpeg not available")

// ExitError is a failed ffmpeg run.
type ExitError struct {
	Code   int
	Stderr string // last lines of ffmpeg's diagnostics
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with code %d", e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// FFmpeg runs ffmpeg to merge streams.
type FFmpeg struct {
	path    string
	timeout time.Duration
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New returns an FFmpeg muxer. An empty path looks up "ffmpeg" in PATH;
// timeout bounds each run.
func New(path string, timeout time.Duration, mc *metrics.Collector, logger *slog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{path: path, timeout: timeout, metrics: mc, logger: logger}
}

// Available reports whether ffmpeg is executable.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.path)
	return err == nil
}

// Merge writes an H.264/AAC MP4 to outPath from the first video track of
// videoPath and the first audio track of audioPath, with the index moved to
// the front for progressive playback. The video track is copied when
// videoCodec is media.CodecH264 and re-encoded with libx264 otherwise,
// including when the codec is unknown. Any non-zero exit is a failure and
// removes partial output. Inputs are left in place.
func (f *FFmpeg) Merge(ctx context.Context, videoPath, audioPath, outPath, videoCodec string) (err error) {
	start := time.Now()
	defer func() {
		f.metrics.RecordResult(metrics.OpMux, time.Since(start), err)
	}()

	bin, err := exec.LookPath(f.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	args := mergeArgs(videoPath, audioPath, outPath, videoCodec)
	cmd := exec.CommandContext(ctx, bin, args...)
	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	f.logger.Debug("running ffmpeg", "video_codec", videoCodec, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg merge: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.Tail(3), Err: err}
		}
		return fmt.Errorf("ffmpeg merge: %w", err)
	}

	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		os.Remove(outPath)
		return fmt.Errorf("ffmpeg merge: no output written to %s", outPath)
	}

	f.logger.Info("streams merged", "output", outPath, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// mergeArgs is passed to exec as a list, so paths need no shell escaping.
// A leading "-" in a path is guarded with "file:" so ffmpeg cannot read it
// as an option.
func mergeArgs(videoPath, audioPath, outPath, videoCodec string) []string {
	videoArgs := []string{"-c:v", "copy"}
	if videoCodec != media.CodecH264 {
		videoArgs = []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-pix_fmt", "yuv420p"}
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", safePath(videoPath),
		"-i", safePath(audioPath),
		"-map", "0:v:0",
		"-map", "1:a:0",
	}
	args = append(args, videoArgs...)
	return append(args,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y", safePath(outPath),
	)
}

func safePath(p string) string {
	if strings.HasPrefix(p, "-") {
		return "file:" + p
	}
	return p
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// Tail returns the last n non-empty lines joined by "; ".
func (t *tailBuffer) Tail(n int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var lines []string
	for _, l := range strings.Split(string(t.buf), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
