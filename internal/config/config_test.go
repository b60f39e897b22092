package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "FBPARTY_PUBLIC_URL", "FBPARTY_MUX_MODE", "FBPARTY_DOWNLOAD_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "3020", cfg.Port)
	assert.Equal(t, MuxModeMux, cfg.MuxMode)
	assert.Equal(t, 300*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 10*time.Second, cfg.ThumbnailOffset)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "http://localhost:3020", cfg.PublicBaseURL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FBPARTY_PUBLIC_URL", "https://party.example.com/")
	t.Setenv("FBPARTY_MUX_MODE", "SEPARATE")
	t.Setenv("FBPARTY_DOWNLOAD_TIMEOUT", "45")
	t.Setenv("FBPARTY_MUX_TIMEOUT", "90s")
	t.Setenv("FBPARTY_HEADLESS", "false")
	t.Setenv("FBPARTY_DOWNLOAD_RETRIES", "not-a-number")

	cfg := Load()
	assert.Equal(t, "https://party.example.com", cfg.PublicBaseURL())
	assert.Equal(t, MuxModeSeparate, cfg.MuxMode)
	assert.Equal(t, 45*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 90*time.Second, cfg.MuxTimeout)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 2, cfg.DownloadRetries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{CookieSecretKey: "k", MuxMode: MuxModeMux}, false},
		{"separate", Config{CookieSecretKey: "k", MuxMode: MuxModeSeparate}, false},
		{"missing secret", Config{MuxMode: MuxModeMux}, true},
		{"bad mux mode", Config{CookieSecretKey: "k", MuxMode: "both"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("video ready", "video_id", 7)

	assert.Contains(t, stderr.String(), "video ready")
	assert.NotContains(t, stderr.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "video ready", entry["msg"])
	assert.EqualValues(t, 7, entry["video_id"])
}

func TestSetupLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fbparty.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())
	assert.FileExists(t, path)
}
