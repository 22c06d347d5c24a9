package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/crittr/crittr/internal/decoder"
)

// Capture decodes single frames at arbitrary positions, one short-lived
// ffmpeg run per Read. It shares nothing with a streaming Session.
type Capture struct {
	cfg    Config
	logger *slog.Logger
	path   string
	probe  ProbeResult

	mu     sync.Mutex
	pos    float64
	closed bool
}

// Props implements decoder.Capture.
func (c *Capture) Props() (frames, fps float64) {
	return c.probe.Frames, c.probe.FPS
}

// SeekTo implements decoder.Capture.
func (c *Capture) SeekTo(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("capture closed")
	}
	c.pos = math.Max(0, seconds)
	return nil
}

func (c *Capture) buildArgs(seconds float64) []string {
	return []string{
		"-nostdin", "-hide_banner", "-v", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 6, 64),
		"-i", c.path,
		"-map", "0:v:0",
		"-an", "-sn",
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

// Read decodes the frame at the current position and advances by one frame.
// It returns io.EOF when the position is past the last frame.
func (c *Capture) Read() (decoder.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return decoder.Frame{}, fmt.Errorf("capture closed")
	}
	pos := c.pos
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CaptureTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.FFmpeg, c.buildArgs(pos)...)
	setupProcessAttributes(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return decoder.Frame{}, fmt.Errorf("ffmpeg capture at %.3fs: %w: %s", pos, err, strings.TrimSpace(stderr.String()))
	}

	size := c.probe.Width * c.probe.Height * 3
	if len(out) == 0 {
		return decoder.Frame{}, io.EOF
	}
	if len(out) < size {
		c.logger.Debug("short capture output", "pos", pos, "got", len(out), "want", size)
	}

	fps := c.probe.FPS
	pts := pos
	if fps > 0 {
		pts = float64(firstFrameIndex(pos, fps)) / fps
	}

	c.mu.Lock()
	if fps > 0 {
		c.pos = pts + 1/fps
	}
	c.mu.Unlock()

	return decoder.Frame{
		Width:  c.probe.Width,
		Height: c.probe.Height,
		Stride: c.probe.Width * 3,
		Pix:    out,
		PTS:    pts,
	}, nil
}

// Close implements decoder.Capture.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
