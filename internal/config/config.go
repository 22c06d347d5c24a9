package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full crittr configuration
type Config struct {
	Playback PlaybackConfig `mapstructure:"playback"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// PlaybackConfig tunes the decode engine and the playback controller
type PlaybackConfig struct {
	PosterTimeout time.Duration `mapstructure:"poster_timeout"`
	SeekTimeout   time.Duration `mapstructure:"seek_timeout"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
	PacingSlice   time.Duration `mapstructure:"pacing_slice"`
	EventBuffer   int           `mapstructure:"event_buffer"`
	QueueLimit    int           `mapstructure:"queue_limit"`
	FPSSeed       float64       `mapstructure:"fps_seed"`
	FPSAlpha      float64       `mapstructure:"fps_alpha"`
	// Resume restores the last saved position when a file is reopened
	Resume       bool          `mapstructure:"resume"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

// DecoderConfig locates and tunes the ffmpeg tools
type DecoderConfig struct {
	FFmpegPath     string        `mapstructure:"ffmpeg_path"`
	FFprobePath    string        `mapstructure:"ffprobe_path"`
	Threads        int           `mapstructure:"threads"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
}

// LoggingConfig configures the application logger
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig configures the settings and history store
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
	WALMode        bool   `mapstructure:"wal_mode"`
	AutoVacuum     bool   `mapstructure:"auto_vacuum"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SetDefaults registers every default on v. Durations are kept as strings so
// the generated config file stays readable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("playback.poster_timeout", "350ms")
	v.SetDefault("playback.seek_timeout", "3s")
	v.SetDefault("playback.stop_timeout", "1s")
	v.SetDefault("playback.pacing_slice", "5ms")
	v.SetDefault("playback.event_buffer", 8)
	v.SetDefault("playback.queue_limit", 16)
	v.SetDefault("playback.fps_seed", 24.0)
	v.SetDefault("playback.fps_alpha", 0.1)
	v.SetDefault("playback.resume", true)
	v.SetDefault("playback.save_interval", "5s")

	v.SetDefault("decoder.ffmpeg_path", "")
	v.SetDefault("decoder.ffprobe_path", "")
	v.SetDefault("decoder.threads", 0)
	v.SetDefault("decoder.queue_depth", 4)
	v.SetDefault("decoder.probe_timeout", "10s")
	v.SetDefault("decoder.capture_timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", filepath.Join(getStateDir(), "crittr", "crittr.log"))
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("database.path", filepath.Join(getDataDir(), "crittr", "crittr.db"))
	v.SetDefault("database.max_connections", 4)
	v.SetDefault("database.wal_mode", true)
	v.SetDefault("database.auto_vacuum", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")
}

// Load reads the configuration from cfgFile, or from config.yaml in the
// config directory when cfgFile is empty. A missing default file is not an
// error. CRITTR_* environment variables override file values.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(GetConfigDir())
	}

	v.SetEnvPrefix("CRITTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if _, ok := levelNames[strings.ToLower(c.Logging.Level)]; !ok {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format))
	}
	if c.Playback.FPSSeed <= 0 {
		errs = append(errs, fmt.Errorf("playback.fps_seed: must be positive"))
	}
	if c.Playback.FPSAlpha <= 0 || c.Playback.FPSAlpha > 1 {
		errs = append(errs, fmt.Errorf("playback.fps_alpha: must be in (0, 1]"))
	}
	if c.Playback.EventBuffer < 1 {
		errs = append(errs, fmt.Errorf("playback.event_buffer: must be at least 1"))
	}
	if c.Decoder.Threads < 0 {
		errs = append(errs, fmt.Errorf("decoder.threads: must not be negative"))
	}
	if c.Database.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("database.max_connections: must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SaveDefaultConfig writes the default configuration as YAML to path
func SaveDefaultConfig(path string) error {
	v := viper.New()
	SetDefaults(v)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	header := []byte("# crittr configuration\n# Every key can be overridden with CRITTR_<SECTION>_<KEY>.\n\n")
	return os.WriteFile(path, append(header, data...), 0644)
}

// InitializeDirs creates the config, data and state directories
func InitializeDirs() error {
	for _, dir := range []string{
		GetConfigDir(),
		filepath.Join(getDataDir(), "crittr"),
		filepath.Join(getStateDir(), "crittr"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// GetConfigDir returns the crittr config directory
func GetConfigDir() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "crittr")
}

func getDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func getStateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), fallback)
	}
	return filepath.Join(home, fallback)
}
