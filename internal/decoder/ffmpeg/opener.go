package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crittr/crittr/internal/decoder"
)

// Config controls how ffmpeg is invoked.
type Config struct {
	FFmpeg  string
	FFprobe string
	// Threads is passed to ffmpeg's decoder, 0 lets ffmpeg decide.
	Threads int
	// QueueDepth is how many decoded frames are read ahead of the consumer.
	QueueDepth int
	// ProbeTimeout bounds each ffprobe run.
	ProbeTimeout time.Duration
	// CaptureTimeout bounds one random-access frame decode.
	CaptureTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}
	c.FFprobe = ResolveFFprobe(c.FFprobe, c.FFmpeg)
	if c.QueueDepth <= 0 {
		c.QueueDepth = 4
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 2 * time.Second
	}
	return c
}

// Opener implements decoder.Opener with ffmpeg processes.
type Opener struct {
	cfg    Config
	logger *slog.Logger
}

// NewOpener creates an Opener. A nil logger falls back to slog.Default().
func NewOpener(cfg Config, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{cfg: cfg.withDefaults(), logger: logger.With("component", "ffmpeg")}
}

// OpenSession probes path and starts a streaming ffmpeg process at 0s.
func (o *Opener) OpenSession(path string) (decoder.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ProbeTimeout)
	defer cancel()

	probe, err := Probe(ctx, o.cfg.FFprobe, path, false)
	if err != nil {
		return nil, err
	}
	if probe.FPS <= 0 {
		return nil, fmt.Errorf("%s: unknown frame rate", path)
	}

	s := newSession(o.cfg, o.logger, path, probe)
	if err := s.restart(0); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenCapture probes path, counting packets, for random-access reads.
func (o *Opener) OpenCapture(path string) (decoder.Capture, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ProbeTimeout)
	defer cancel()

	probe, err := Probe(ctx, o.cfg.FFprobe, path, true)
	if err != nil {
		return nil, err
	}
	return &Capture{cfg: o.cfg, logger: o.logger, path: path, probe: probe}, nil
}
