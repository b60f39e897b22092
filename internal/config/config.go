package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mux modes for combining separately downloaded video and audio streams.
const (
	MuxModeMux      = "mux"
	MuxModeSeparate = "separate"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	Host      string
	Port      string
	PublicURL string // overrides http://Host:Port when set

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Session credential encryption
	CookieSecretKey string

	// Acquisition
	MediaDir        string
	ChromePath      string
	Headless        bool
	LaunchInterval  time.Duration // minimum spacing of browser launches, 0 disables
	ProfilePath     string
	FFmpegPath      string
	MuxMode         string
	NavTimeout      time.Duration
	ValidateTimeout time.Duration
	SettleDelay     time.Duration
	DownloadTimeout time.Duration
	DownloadRetries int
	MuxTimeout      time.Duration
	ThumbnailOffset time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		Host:      getEnv("HOST", "localhost"),
		Port:      getEnv("PORT", "3020"),
		PublicURL: getEnv("FBPARTY_PUBLIC_URL", ""),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "fbparty"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "party"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		CookieSecretKey: getEnv("COOKIE_SECRET_KEY", ""),

		MediaDir:        getEnv("FBPARTY_MEDIA_DIR", "videos"),
		ChromePath:      getEnv("FBPARTY_CHROME_PATH", ""),
		Headless:        getBool("FBPARTY_HEADLESS", true),
		LaunchInterval:  getDuration("FBPARTY_LAUNCH_INTERVAL", 2*time.Second),
		ProfilePath:     getEnv("FBPARTY_PROFILE", ""),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		MuxMode:         strings.ToLower(getEnv("FBPARTY_MUX_MODE", MuxModeMux)),
		NavTimeout:      getDuration("FBPARTY_NAV_TIMEOUT", 30*time.Second),
		ValidateTimeout: getDuration("FBPARTY_VALIDATE_TIMEOUT", 20*time.Second),
		SettleDelay:     getDuration("FBPARTY_SETTLE_DELAY", 5*time.Second),
		DownloadTimeout: getDuration("FBPARTY_DOWNLOAD_TIMEOUT", 300*time.Second),
		DownloadRetries: getInt("FBPARTY_DOWNLOAD_RETRIES", 2),
		MuxTimeout:      getDuration("FBPARTY_MUX_TIMEOUT", 120*time.Second),
		ThumbnailOffset: getDuration("FBPARTY_THUMBNAIL_OFFSET", 10*time.Second),

		LogFile:  getEnv("FBPARTY_LOG_FILE", "/tmp/fbparty.log"),
		LogLevel: parseLogLevel(getEnv("FBPARTY_LOG_LEVEL", "INFO")),
	}
}

// PublicBaseURL returns the base URL artifacts are served under, without trailing slash.
func (c Config) PublicBaseURL() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return fmt.Sprintf("http://%s:%s", c.Host, c.Port)
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.CookieSecretKey == "" {
		return fmt.Errorf("COOKIE_SECRET_KEY is required")
	}
	switch c.MuxMode {
	case MuxModeMux, MuxModeSeparate:
	default:
		return fmt.Errorf("invalid FBPARTY_MUX_MODE %q (want %q or %q)", c.MuxMode, MuxModeMux, MuxModeSeparate)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultVal)))
	if err != nil {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return v
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
