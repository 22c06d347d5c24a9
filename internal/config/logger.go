package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// logLevel is shared by every handler InitLogger builds, so a config reload
// can change verbosity without rebuilding loggers already handed out.
var logLevel = new(slog.LevelVar)

// InitLogger builds the application logger and installs it as the slog default.
// An empty File logs to stderr.
func InitLogger(cfg *LoggingConfig) (*slog.Logger, error) {
	logLevel.Set(parseLogLevel(cfg.Level))

	var writer io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
	}

	logger := slog.New(newHandler(writer, cfg))
	slog.SetDefault(logger)
	return logger, nil
}

func newHandler(w io.Writer, cfg *LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel}
	switch {
	case strings.EqualFold(cfg.Format, "json"):
		return slog.NewJSONHandler(w, opts)
	case cfg.Color && cfg.File == "":
		return NewColoredTextHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// SetLogLevel changes the level of every logger built by InitLogger
func SetLogLevel(level string) {
	logLevel.Set(parseLogLevel(level))
}

// LogLevel returns the current level
func LogLevel() slog.Level {
	return logLevel.Level()
}

var levelColors = map[string]string{
	"DEBUG": "\033[90m", // gray
	"INFO":  "\033[32m",
	"WARN":  "\033[33m",
	"ERROR": "\033[31m",
}

// NewColoredTextHandler returns a text handler for console output that
// colors the level field of each record.
func NewColoredTextHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(&colorWriter{out: w}, opts)
}

// colorWriter relies on slog.TextHandler writing one whole record per call.
type colorWriter struct {
	out io.Writer
}

func (w *colorWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.out, colorize(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func colorize(line string) string {
	i := strings.Index(line, "level=")
	if i < 0 {
		return line
	}
	start := i + len("level=")
	end := strings.IndexByte(line[start:], ' ')
	if end < 0 {
		return line
	}
	end += start
	color, ok := levelColors[line[start:end]]
	if !ok {
		return line
	}
	return line[:start] + color + line[start:end] + "\033[0m" + line[end:]
}

func parseLogLevel(levelStr string) slog.Level {
	if level, ok := levelNames[strings.ToLower(levelStr)]; ok {
		return level
	}
	return slog.LevelInfo
}
