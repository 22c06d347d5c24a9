package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/crittr/crittr/internal/decoder"
	"github.com/crittr/crittr/internal/media"
)

// ptsEpsilon absorbs float noise when comparing a frame PTS to a target.
const ptsEpsilon = 1e-6

// ReadOneFrame synchronously returns the next frame without starting the
// decode loop. It is used for the poster frame right after Open.
func (e *Engine) ReadOneFrame(timeout time.Duration) (media.FrameBuffer, error) {
	if e.isClosed() {
		return media.FrameBuffer{}, media.ErrClosed
	}

	e.sessMu.Lock()
	defer e.sessMu.Unlock()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f, err := e.session.NextFrame()
		switch {
		case errors.Is(err, decoder.ErrNoFrame):
			time.Sleep(e.opts.PollInterval)
			continue
		case errors.Is(err, io.EOF):
			e.logger.Debug("read one frame: end of stream")
			return media.FrameBuffer{}, media.ErrEndOfStream
		case err != nil:
			e.logger.Error("read one frame failed", "error", err)
			return media.FrameBuffer{}, err
		}

		fb, err := media.NewFrameBuffer(f.Width, f.Height, f.Stride, f.Pix, f.PTS)
		if err != nil {
			e.logger.Error("dropping frame", "pts", f.PTS, "error", err)
			e.metrics.FramesDropped.WithLabelValues(dropMalformed).Inc()
			continue
		}
		e.logger.Debug("read one frame", "width", fb.Width, "height", fb.Height, "pts", fb.PTS)
		return fb, nil
	}

	e.logger.Debug("read one frame: timeout with no frame", "timeout", timeout)
	return media.FrameBuffer{}, media.ErrFrameTimeout
}

// SeekToTime performs a precise seek. The decode loop is held at the pause
// gate while the session is repositioned and frames are pulled until one
// reaches seconds. If the target is never reached before timeout, the last
// frame seen is returned instead; with no frame at all the result is
// ErrSeekTimeout. The previous play/pause state is restored either way.
func (e *Engine) SeekToTime(seconds float64, timeout time.Duration) (media.FrameBuffer, error) {
	if seconds < 0 {
		seconds = 0
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return media.FrameBuffer{}, media.ErrClosed
	}
	wasPlaying := e.running && !e.paused
	if e.running {
		e.paused = true
	}
	e.epoch++
	e.resetPacing = true
	e.mu.Unlock()

	e.logger.Info("seek to time", "seconds", seconds, "was_playing", wasPlaying)
	defer e.restoreAfterSeek(wasPlaying)

	e.sessMu.Lock()
	defer e.sessMu.Unlock()

	// The decode loop is gated; let the decoder read ahead for the pull.
	e.session.SetPaused(false)

	if err := e.session.Seek(seconds); err != nil {
		e.metrics.Seeks.WithLabelValues(seekError).Inc()
		return media.FrameBuffer{}, fmt.Errorf("seek to %.3fs: %w", seconds, err)
	}
	return e.pullUntil(seconds, time.Now().Add(timeout))
}

func (e *Engine) pullUntil(target float64, deadline time.Time) (media.FrameBuffer, error) {
	var last media.FrameBuffer
	for time.Now().Before(deadline) {
		f, err := e.session.NextFrame()
		if errors.Is(err, decoder.ErrNoFrame) {
			time.Sleep(e.opts.PollInterval)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Warn("decoder error during seek", "error", err)
			}
			break
		}

		fb, err := media.NewFrameBuffer(f.Width, f.Height, f.Stride, f.Pix, f.PTS)
		if err != nil {
			e.logger.Error("dropping frame", "pts", f.PTS, "error", err)
			e.metrics.FramesDropped.WithLabelValues(dropMalformed).Inc()
			continue
		}
		last = fb
		if fb.PTS >= target-ptsEpsilon {
			e.metrics.Seeks.WithLabelValues(seekHit).Inc()
			return fb, nil
		}
	}

	if last.IsZero() {
		e.logger.Warn("seek could not reach requested time", "target", target)
		e.metrics.Seeks.WithLabelValues(seekTimeout).Inc()
		return media.FrameBuffer{}, media.ErrSeekTimeout
	}
	e.logger.Debug("seek fell back to last frame", "target", target, "pts", last.PTS)
	e.metrics.Seeks.WithLabelValues(seekFallback).Inc()
	return last, nil
}

func (e *Engine) restoreAfterSeek(wasPlaying bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	if wasPlaying {
		e.paused = false
		e.resetPacing = true
		e.session.SetPaused(false)
		e.cond.Broadcast()
		return
	}
	e.session.SetPaused(true)
}

// PreviewFrameAt returns a cheap frame near seconds for scrubbing. It uses a
// lazily opened random-access handle, separate from the streaming session,
// so it never coordinates with the decode loop. Any failure yields false.
func (e *Engine) PreviewFrameAt(seconds float64) (media.FrameBuffer, bool) {
	if e.isClosed() {
		return media.FrameBuffer{}, false
	}
	if seconds < 0 {
		seconds = 0
	}

	e.captureMu.Lock()
	defer e.captureMu.Unlock()

	if e.capture == nil {
		c, err := e.opener.OpenCapture(e.path)
		if err != nil {
			e.logger.Debug("preview: cannot open capture", "error", err)
			e.metrics.PreviewFailures.Inc()
			return media.FrameBuffer{}, false
		}
		e.capture = c
	}

	if err := e.capture.SeekTo(seconds); err != nil {
		e.logger.Debug("preview seek failed", "seconds", seconds, "error", err)
		e.metrics.PreviewFailures.Inc()
		return media.FrameBuffer{}, false
	}
	f, err := e.capture.Read()
	if err != nil {
		e.logger.Debug("preview read failed", "seconds", seconds, "error", err)
		e.metrics.PreviewFailures.Inc()
		return media.FrameBuffer{}, false
	}
	fb, err := media.NewFrameBuffer(f.Width, f.Height, f.Stride, f.Pix, f.PTS)
	if err != nil {
		e.logger.Debug("preview frame malformed", "seconds", seconds, "error", err)
		e.metrics.PreviewFailures.Inc()
		return media.FrameBuffer{}, false
	}
	return fb, true
}
