package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/fbparty-go/internal/config"
	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/scraper"
	"github.com/raphaelgruber/fbparty-go/internal/storage"
)

// VideoStore persists acquisition state.
type VideoStore interface {
	GetVideo(ctx context.Context, id int64) (*models.Video, error)
	BeginProcessing(ctx context.Context, id int64) (*models.Video, error)
	SetStage(ctx context.Context, id int64, stage string) error
	SaveVideo(ctx context.Context, v *models.Video) (*models.Video, error)
	FailInterrupted(ctx context.Context, msg string) ([]models.Video, error)
}

// InterruptedMessage is recorded on videos whose acquisition was cut off
// by a server exit.
const InterruptedMessage = "acquisition interrupted by server shutdown"

// Locator resolves a page URL to stream URLs.
type Locator interface {
	Locate(ctx context.Context, pageURL string) (*scraper.Location, error)
}

// Downloader fetches a remote stream to a local file.
type Downloader interface {
	Download(ctx context.Context, rawURL, dest string, kind media.Kind) (int64, error)
}

// Muxer merges a video-only and an audio-only file into an H.264/AAC MP4.
// videoCodec is the located codec of the video stream, empty when unknown.
type Muxer interface {
	Merge(ctx context.Context, videoPath, audioPath, outPath, videoCodec string) error
}

// Thumbnailer captures a still frame of a local video.
type Thumbnailer interface {
	Capture(ctx context.Context, videoPath, outPath string) error
}

// Notifier is told about videos that reached a terminal state.
type Notifier interface {
	VideoStatus(v *models.Video)
}

// CredentialInvalidator flags the stored session as rejected.
type CredentialInvalidator interface {
	MarkInvalid(ctx context.Context) error
}

// AcquisitionDeps are the collaborators of the pipeline. Muxer, Thumbnailer,
// Notifier, Credentials and Metrics are optional.
type AcquisitionDeps struct {
	Store       VideoStore
	Locator     Locator
	Downloader  Downloader
	Muxer       Muxer
	Thumbnailer Thumbnailer
	Files       *storage.Store
	Notifier    Notifier
	Credentials CredentialInvalidator
	Metrics     *metrics.Collector
}

// AcquisitionService turns a pending video into locally served artifacts.
type AcquisitionService struct {
	AcquisitionDeps
	muxMode string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAcquisitionService creates the orchestrator. An unknown muxMode falls
// back to separate streams.
func NewAcquisitionService(deps AcquisitionDeps, muxMode string, logger *slog.Logger) *AcquisitionService {
	if logger == nil {
		logger = slog.Default()
	}
	if muxMode != config.MuxModeMux {
		muxMode = config.MuxModeSeparate
	}
	return &AcquisitionService{AcquisitionDeps: deps, muxMode: muxMode, logger: logger}
}

// Process claims the video and runs the whole pipeline before returning.
// Pipeline failures are recorded on the returned video, not returned as
// errors; errors mean the video could not be claimed or persisted.
// Once claimed, the run is detached from ctx cancellation.
func (s *AcquisitionService) Process(ctx context.Context, id int64) (*models.Video, error) {
	v, err := s.Store.BeginProcessing(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.run(context.WithoutCancel(ctx), v)
}

// Submit claims the video and runs the pipeline in the background.
// It returns the claimed video.
func (s *AcquisitionService) Submit(ctx context.Context, id int64) (*models.Video, error) {
	v, err := s.Store.BeginProcessing(ctx, id)
	if err != nil {
		return nil, err
	}

	claimed := *v
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.run(context.WithoutCancel(ctx), v); err != nil {
			s.logger.Error("background acquisition not persisted", "video_id", id, "error", err)
		}
	}()
	return &claimed, nil
}

// Wait blocks until background acquisitions finish or ctx is done.
func (s *AcquisitionService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecoverInterrupted fails every video a previous server process left in
// processing and removes the files its attempt had written, so the video
// can be resubmitted. Call it before serving requests.
func (s *AcquisitionService) RecoverInterrupted(ctx context.Context) (int, error) {
	videos, err := s.Store.FailInterrupted(ctx, InterruptedMessage)
	if err != nil {
		return 0, err
	}
	for i := range videos {
		v := &videos[i]
		s.Files.RemoveCode(v.Code)
		s.logger.Warn("interrupted acquisition marked failed", "video_id", v.IDInt(), "code", v.Code)
		if s.Notifier != nil {
			s.Notifier.VideoStatus(v)
		}
	}
	return len(videos), nil
}

// PublicURLs returns the served locations of a completed video.
func (s *AcquisitionService) PublicURLs(ctx context.Context, id int64) (*models.PublicURLs, error) {
	v, err := s.Store.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VideoStatusCompleted || v.PublicVideoURL == nil {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, v.Status)
	}
	return &models.PublicURLs{
		Video:     *v.PublicVideoURL,
		Audio:     v.PublicAudioURL,
		Thumbnail: v.PublicThumbnailURL,
	}, nil
}

// attempt is the in-memory state of one pipeline run.
type attempt struct {
	video  *models.Video
	id     int64
	files  storage.Artifacts
	logger *slog.Logger

	// written holds every file created so far, removed if the run fails.
	written []string
}

func (s *AcquisitionService) run(ctx context.Context, v *models.Video) (out *models.Video, err error) {
	start := time.Now()
	a := &attempt{
		video: v,
		id:    v.IDInt(),
		files: s.Files.Paths(v.Code, start),
	}
	a.logger = s.logger.With("video_id", a.id, "attempt", uuid.New().String()[:8])
	a.logger.Info("acquisition started", "page_url", v.PageURL)

	var failure error
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("acquisition panicked", "panic", r, "stack", string(debug.Stack()))
			failure = fmt.Errorf("internal panic: %v", r)
			out, err = s.fail(ctx, a, failure.Error())
		}
		s.Metrics.RecordResult(metrics.OpProcess, time.Since(start), failure)
		if failure == nil && err == nil {
			a.logger.Info("acquisition completed", "duration_ms", time.Since(start).Milliseconds())
		}
	}()

	failure = s.acquire(ctx, a)
	if failure != nil {
		return s.fail(ctx, a, failure.Error())
	}
	return s.complete(ctx, a)
}

// acquire runs locate, download, mux and thumbnail, filling a.video.
// Only the locate and the video download are fatal.
func (s *AcquisitionService) acquire(ctx context.Context, a *attempt) error {
	s.setStage(ctx, a, models.StageLocating)
	loc, err := s.Locator.Locate(ctx, a.video.PageURL)
	if err != nil {
		if errors.Is(err, scraper.ErrNotAuthenticated) && s.Credentials != nil {
			if mErr := s.Credentials.MarkInvalid(ctx); mErr != nil {
				a.logger.Warn("failed to invalidate credential", "error", mErr)
			}
		}
		return err
	}
	a.logger.Info("media located", "strategy", loc.Strategy, "pairing", loc.Pairing, "has_audio", loc.AudioURL != "")

	s.setStage(ctx, a, models.StageDownloading)
	a.written = append(a.written, a.files.Video)
	if _, err := s.Downloader.Download(ctx, loc.VideoURL, a.files.Video, media.KindVideo); err != nil {
		return err
	}
	videoPath := a.files.Video

	var audioPath string
	if loc.AudioURL != "" {
		a.written = append(a.written, a.files.Audio)
		if _, err := s.Downloader.Download(ctx, loc.AudioURL, a.files.Audio, media.KindAudio); err != nil {
			a.logger.Warn("audio download failed, continuing video-only", "error", err)
			s.Files.Remove(a.files.Audio)
		} else {
			audioPath = a.files.Audio
		}
	}

	if audioPath != "" && s.muxMode == config.MuxModeMux && s.Muxer != nil {
		s.setStage(ctx, a, models.StageMuxing)
		a.written = append(a.written, a.files.Muxed)
		if err := s.Muxer.Merge(ctx, videoPath, audioPath, a.files.Muxed, loc.VideoCodec); err != nil {
			a.logger.Warn("mux failed, keeping separate streams", "error", err)
		} else {
			s.Files.Remove(videoPath, audioPath)
			videoPath, audioPath = a.files.Muxed, ""
		}
	}

	var thumbPath string
	if s.Thumbnailer != nil {
		s.setStage(ctx, a, models.StageThumbnail)
		a.written = append(a.written, a.files.Thumbnail)
		if err := s.Thumbnailer.Capture(ctx, videoPath, a.files.Thumbnail); err != nil {
			a.logger.Warn("thumbnail failed", "error", err)
		} else {
			thumbPath = a.files.Thumbnail
		}
	}

	v := a.video
	v.VideoURL = &loc.VideoURL
	if loc.AudioURL != "" && (audioPath != "" || videoPath == a.files.Muxed) {
		v.AudioURL = &loc.AudioURL
	}
	if loc.Title != "" {
		v.Title = &loc.Title
	}
	v.VideoPath = strPtr(videoPath)
	v.PublicVideoURL = strPtr(s.Files.PublicURL(videoPath))
	if audioPath != "" {
		v.AudioPath = strPtr(audioPath)
		v.PublicAudioURL = strPtr(s.Files.PublicURL(audioPath))
	}
	if thumbPath != "" {
		v.ThumbnailPath = strPtr(thumbPath)
		v.PublicThumbnailURL = strPtr(s.Files.PublicURL(thumbPath))
	}
	return nil
}

func (s *AcquisitionService) setStage(ctx context.Context, a *attempt, stage string) {
	a.video.Stage = &stage
	if err := s.Store.SetStage(ctx, a.id, stage); err != nil {
		a.logger.Warn("failed to persist stage", "stage", stage, "error", err)
	}
}

func (s *AcquisitionService) complete(ctx context.Context, a *attempt) (*models.Video, error) {
	if err := a.video.Transition(models.VideoStatusCompleted); err != nil {
		return s.fail(ctx, a, err.Error())
	}
	now := time.Now().UTC()
	a.video.ProcessedAt = &now
	return s.persist(ctx, a)
}

// fail records msg verbatim and drops every artifact of the attempt.
func (s *AcquisitionService) fail(ctx context.Context, a *attempt, msg string) (*models.Video, error) {
	a.logger.Warn("acquisition failed", "error", msg)
	s.Files.Remove(a.written...)
	if err := a.video.Fail(msg); err != nil {
		return nil, err
	}
	return s.persist(ctx, a)
}

// persist writes the terminal record even when the caller has gone away.
func (s *AcquisitionService) persist(ctx context.Context, a *attempt) (*models.Video, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	saved, err := s.Store.SaveVideo(ctx, a.video)
	if err != nil {
		a.logger.Error("failed to persist acquisition result", "status", a.video.Status, "error", err)
		return nil, fmt.Errorf("persist video %d: %w", a.id, err)
	}
	if s.Notifier != nil {
		s.Notifier.VideoStatus(saved)
	}
	return saved, nil
}

func strPtr(s string) *string {
	return &s
}
