package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/crittr/crittr/internal/decoder"
	"github.com/crittr/crittr/internal/media"
)

type interrupt int

const (
	interruptNone interrupt = iota
	interruptPause
	interruptSeek
	interruptStop
)

// loop is the decode goroutine. It exits on stop, end of stream or a
// decoder failure; the latter two are both reported as EventEnded.
func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	e.logger.Debug("decode loop entered")
	defer e.logger.Debug("decode loop exited")

	var (
		pace    pacer
		pending *media.FrameBuffer
		pendEp  uint64
		delay   time.Duration
	)

	for {
		if !e.waitRunnable(stop) {
			return
		}
		if e.takePacingReset() {
			pace.reset()
		}

		var fb media.FrameBuffer
		var epoch uint64
		if pending != nil && pendEp == e.Epoch() {
			fb, epoch = *pending, pendEp
		} else {
			if pending != nil {
				e.metrics.FramesDropped.WithLabelValues(dropStale).Inc()
			}
			pending = nil

			f, d, ep, err := e.pull()
			switch {
			case errors.Is(err, decoder.ErrNoFrame):
				if !sleepOrStop(e.opts.PollInterval, stop) {
					return
				}
				continue
			case errors.Is(err, io.EOF):
				e.logger.Debug("decode loop: end of stream")
				e.finish(stop, ep)
				return
			case errors.Is(err, media.ErrMalformedFrame):
				e.logger.Error("dropping frame", "error", err)
				e.metrics.FramesDropped.WithLabelValues(dropMalformed).Inc()
				continue
			case err != nil:
				e.logger.Error("decoder failure, ending session", "error", err)
				e.metrics.DecodeFailures.Inc()
				e.finish(stop, ep)
				return
			}
			fb, epoch, delay = f, ep, d
		}

		switch e.sleepUntil(pace.deadline(time.Now(), fb.PTS, delay), stop, epoch) {
		case interruptStop:
			return
		case interruptPause:
			pending, pendEp = &fb, epoch
			continue
		case interruptSeek:
			pending = nil
			e.metrics.FramesDropped.WithLabelValues(dropStale).Inc()
			continue
		}
		pending = nil

		if !e.emit(Event{Kind: EventFrame, Frame: fb, Epoch: epoch}, stop) {
			return
		}
		e.metrics.FramesDelivered.Inc()
	}
}

// waitRunnable blocks while paused. It returns false once stop is closed.
func (e *Engine) waitRunnable(stop <-chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.paused && !isDone(stop) {
		e.cond.Wait()
	}
	return !isDone(stop)
}

func (e *Engine) takePacingReset() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.resetPacing
	e.resetPacing = false
	return r
}

// pull reads one frame from the session and copies it out before the
// session is released, since the decoder reuses its pixel buffer on the next
// call. The epoch is sampled before the session is taken: a seek bumps it
// before taking the session, so any seek that overlaps this read leaves the
// frame tagged stale. A paused engine does not read, since a seek may already
// have bumped the epoch.
func (e *Engine) pull() (media.FrameBuffer, time.Duration, uint64, error) {
	e.mu.Lock()
	epoch, paused := e.epoch, e.paused
	e.mu.Unlock()
	if paused {
		return media.FrameBuffer{}, 0, epoch, decoder.ErrNoFrame
	}

	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	f, err := e.session.NextFrame()
	if err != nil {
		return media.FrameBuffer{}, 0, epoch, err
	}
	fb, err := media.NewFrameBuffer(f.Width, f.Height, f.Stride, f.Pix, f.PTS)
	if err != nil {
		return media.FrameBuffer{}, 0, epoch, fmt.Errorf("frame at %.3fs: %w", f.PTS, err)
	}
	return fb, f.Delay, epoch, nil
}

// sleepUntil waits for deadline in slices of at most PacingSlice so that
// pause, seek and stop take effect within one slice.
func (e *Engine) sleepUntil(deadline time.Time, stop <-chan struct{}, epoch uint64) interrupt {
	for {
		if r := e.interrupted(stop, epoch); r != interruptNone {
			return r
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return interruptNone
		}
		if !sleepOrStop(min(remaining, e.opts.PacingSlice), stop) {
			return interruptStop
		}
	}
}

func (e *Engine) interrupted(stop <-chan struct{}, epoch uint64) interrupt {
	if isDone(stop) {
		return interruptStop
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.epoch != epoch:
		return interruptSeek
	case e.paused:
		return interruptPause
	}
	return interruptNone
}

// emit queues ev. It gives up when the loop is stopped or the engine closed.
func (e *Engine) emit(ev Event, stop <-chan struct{}) bool {
	select {
	case e.events <- ev:
		return true
	case <-stop:
		return false
	case <-e.quit:
		return false
	}
}

// finish marks this loop as no longer running and reports the end of the
// stream. The session stays valid for seeks and a later Start.
// finish tags EventEnded with the epoch of the read that hit the end, so a
// seek that overlaps it makes the event stale like any other frame.
func (e *Engine) finish(stop <-chan struct{}, epoch uint64) {
	e.mu.Lock()
	if e.stopCh == stop {
		e.running = false
		e.paused = false
	}
	e.mu.Unlock()

	e.emit(Event{Kind: EventEnded, Epoch: epoch}, stop)
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
