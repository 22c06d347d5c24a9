package engine

import (
	"log/slog"

	"github.com/crittr/crittr/internal/decoder"
	"github.com/crittr/crittr/internal/media"
)

// DurationProber estimates a duration from frame count and frame rate when
// the container does not report one. It opens its own random-access handle.
type DurationProber struct {
	opener decoder.Opener
	logger *slog.Logger
}

// NewDurationProber creates a prober using opener.
func NewDurationProber(opener decoder.Opener, logger *slog.Logger) *DurationProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &DurationProber{opener: opener, logger: logger}
}

// Probe returns frames/fps for path. The result is only accepted when it
// lies strictly between 0 and 24 hours.
func (p *DurationProber) Probe(path string) (float64, bool) {
	c, err := p.opener.OpenCapture(path)
	if err != nil {
		p.logger.Debug("duration probe could not open source", "path", path, "error", err)
		return 0, false
	}
	defer func() {
		if err := c.Close(); err != nil {
			p.logger.Debug("duration probe close failed", "error", err)
		}
	}()

	frames, fps := c.Props()
	if frames <= 0 || fps <= 0 {
		p.logger.Debug("duration probe missing/invalid props", "frames", frames, "fps", fps)
		return 0, false
	}

	dur := frames / fps
	if dur <= 0 || dur >= media.MaxProbedDuration {
		p.logger.Debug("duration probe out of expected range", "frames", frames, "fps", fps, "duration", dur)
		return 0, false
	}
	return dur, true
}
