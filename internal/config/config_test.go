package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateDirs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	return root
}

func TestLoadDefaults(t *testing.T) {
	root := isolateDirs(t)

	cfg, v, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, 350*time.Millisecond, cfg.Playback.PosterTimeout)
	assert.Equal(t, 3*time.Second, cfg.Playback.SeekTimeout)
	assert.Equal(t, time.Second, cfg.Playback.StopTimeout)
	assert.Equal(t, 8, cfg.Playback.EventBuffer)
	assert.Equal(t, 24.0, cfg.Playback.FPSSeed)
	assert.Equal(t, 0.1, cfg.Playback.FPSAlpha)
	assert.True(t, cfg.Playback.Resume)
	assert.Equal(t, 4, cfg.Decoder.QueueDepth)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(root, "state", "crittr", "crittr.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(root, "data", "crittr", "crittr.db"), cfg.Database.Path)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	isolateDirs(t)
	path := filepath.Join(t.TempDir(), "crittr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
playback:
  seek_timeout: 750ms
  fps_seed: 30
decoder:
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
logging:
  level: debug
`), 0644))
	t.Setenv("CRITTR_LOGGING_LEVEL", "warn")
	t.Setenv("CRITTR_DECODER_THREADS", "2")

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.Playback.SeekTimeout)
	assert.Equal(t, 30.0, cfg.Playback.FPSSeed)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Decoder.FFmpegPath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Decoder.Threads)
	assert.Equal(t, 350*time.Millisecond, cfg.Playback.PosterTimeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolateDirs(t)
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", modify: func(c *Config) {}},
		{name: "unknown level", modify: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "unknown format", modify: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "zero fps seed", modify: func(c *Config) { c.Playback.FPSSeed = 0 }, wantErr: "playback.fps_seed"},
		{name: "alpha above one", modify: func(c *Config) { c.Playback.FPSAlpha = 1.5 }, wantErr: "playback.fps_alpha"},
		{name: "no event buffer", modify: func(c *Config) { c.Playback.EventBuffer = 0 }, wantErr: "playback.event_buffer"},
		{name: "negative threads", modify: func(c *Config) { c.Decoder.Threads = -1 }, wantErr: "decoder.threads"},
		{name: "no connections", modify: func(c *Config) { c.Database.MaxConnections = 0 }, wantErr: "database.max_connections"},
	}

	isolateDirs(t)
	base, _, err := Load("")
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveDefaultConfigRoundTrip(t *testing.T) {
	isolateDirs(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poster_timeout: 350ms")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 350*time.Millisecond, cfg.Playback.PosterTimeout)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
}

func TestInitializeDirs(t *testing.T) {
	root := isolateDirs(t)
	require.NoError(t, InitializeDirs())

	for _, dir := range []string{
		filepath.Join(root, "config", "crittr"),
		filepath.Join(root, "data", "crittr"),
		filepath.Join(root, "state", "crittr"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, "config", "crittr"), GetConfigDir())
}

func TestInitLoggerWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	file := filepath.Join(t.TempDir(), "logs", "crittr.log")
	logger, err := InitLogger(&LoggingConfig{Level: "info", File: file, Format: "json", MaxSize: 1})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("opened", "path", "/clips/a.mp4")
	SetLogLevel("debug")
	assert.Equal(t, slog.LevelDebug, LogLevel())
	logger.Debug("now visible")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"opened"`)
	assert.Contains(t, out, "now visible")
}

func TestColoredTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColoredTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Warn("slow decoder", "queue", 0)
	line := buf.String()
	assert.Contains(t, line, "level=\033[33mWARN\033[0m")
	assert.True(t, strings.HasSuffix(line, "queue=0\n"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}
