// Package main provides the HTTP and websocket server for fbparty.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
	"github.com/raphaelgruber/fbparty-go/internal/config"
	"github.com/raphaelgruber/fbparty-go/internal/db"
	"github.com/raphaelgruber/fbparty-go/internal/fetch"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/muxer"
	"github.com/raphaelgruber/fbparty-go/internal/party"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
	"github.com/raphaelgruber/fbparty-go/internal/scraper"
	"github.com/raphaelgruber/fbparty-go/internal/server"
	"github.com/raphaelgruber/fbparty-go/internal/service"
	"github.com/raphaelgruber/fbparty-go/internal/storage"
	"github.com/raphaelgruber/fbparty-go/internal/thumbnail"
	"github.com/raphaelgruber/fbparty-go/internal/vault"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	// Dual output: stderr text + file JSON
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)

	if err := run(cfg, *wipeDB, logger); err != nil {
		logger.Error("server exited", "error", err)
		_ = cleanup()
		os.Exit(1)
	}
	_ = cleanup()
}

func run(cfg config.Config, wipe bool, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("fbparty-server starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"media_dir", cfg.MediaDir,
		"mux_mode", cfg.MuxMode,
		"public_url", cfg.PublicBaseURL(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mc := metrics.NewCollector()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, mc)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing database connection")
		_ = dbClient.Close(context.Background())
	}()

	if err := dbClient.InitSchema(connectCtx); err != nil {
		return err
	}
	if wipe || os.Getenv("FBPARTY_WIPE_DB") == "true" {
		if err := dbClient.WipeData(connectCtx); err != nil {
			return err
		}
	}

	secrets, err := vault.New(cfg.CookieSecretKey)
	if err != nil {
		return err
	}

	profile, err := loadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}
	logger.Info("platform profile loaded", "platform", profile.Name)

	files, err := storage.New(cfg.MediaDir, cfg.PublicBaseURL(), logger)
	if err != nil {
		return err
	}

	// Launches are spaced out so a burst of requests cannot fork a Chrome per request.
	launcher := browser.Throttle(browser.NewChrome(browser.ChromeConfig{
		ExecPath:  cfg.ChromePath,
		Headless:  cfg.Headless,
		UserAgent: profile.Headers.UserAgent,
	}, logger), cfg.LaunchInterval, 2)

	sessions := scraper.NewSessions(dbClient, secrets, profile, logger)
	validator := scraper.NewValidator(sessions, launcher, profile, cfg.ValidateTimeout, mc, logger)
	locator := scraper.NewLocator(sessions, launcher, profile, scraper.LocatorOptions{
		NavTimeout:  cfg.NavTimeout,
		SettleDelay: cfg.SettleDelay,
	}, mc, logger)

	downloader := fetch.New(profile.Headers, fetch.Options{
		Timeout: cfg.DownloadTimeout,
		Retries: cfg.DownloadRetries,
	}, mc, logger)
	thumbs := thumbnail.New(launcher, thumbnail.Options{
		Offset:     cfg.ThumbnailOffset,
		NavTimeout: cfg.NavTimeout,
	}, mc, logger)

	rooms := service.NewRoomService(dbClient, files, profile, logger)
	hub := party.NewHub(rooms, logger)

	deps := service.AcquisitionDeps{
		Store:       dbClient,
		Locator:     locator,
		Downloader:  downloader,
		Thumbnailer: thumbs,
		Files:       files,
		Notifier:    hub,
		Credentials: sessions,
		Metrics:     mc,
	}
	if m := newMuxer(cfg, mc, logger); m != nil {
		deps.Muxer = m
	}
	acquisition := service.NewAcquisitionService(deps, cfg.MuxMode, logger)
	if n, err := acquisition.RecoverInterrupted(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("recovered interrupted acquisitions", "count", n)
	}
	cookies := service.NewCookieService(dbClient, secrets, validator, sessions, locator, logger)

	srv := server.New(server.Deps{
		Rooms:       rooms,
		Acquisition: acquisition,
		Cookies:     cookies,
		Files:       files,
		Hub:         hub,
		Metrics:     mc,
	}, logger)

	return srv.Run(ctx, net.JoinHostPort(cfg.Host, cfg.Port))
}

// newMuxer returns nil in separate mode. A missing ffmpeg is only warned
// about: every merge then fails and videos keep separate streams.
func newMuxer(cfg config.Config, mc *metrics.Collector, logger *slog.Logger) *muxer.FFmpeg {
	if cfg.MuxMode != config.MuxModeMux {
		return nil
	}
	m := muxer.New(cfg.FFmpegPath, cfg.MuxTimeout, mc, logger)
	if !m.Available() {
		logger.Warn("ffmpeg not found, videos will keep separate streams", "ffmpeg_path", cfg.FFmpegPath)
	}
	return m
}

func loadProfile(path string) (*platform.Profile, error) {
	if path == "" {
		return platform.Default()
	}
	return platform.Load(path)
}
