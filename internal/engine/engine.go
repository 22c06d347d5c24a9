// Package engine owns one decoder session per source and drives frame
// production from a dedicated decode goroutine, paced to wall-clock time.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crittr/crittr/internal/decoder"
	"github.com/crittr/crittr/internal/media"
)

// DurationSource tells where a duration came from.
type DurationSource string

const (
	DurationFromMetadata DurationSource = "metadata"
	DurationFromProbe    DurationSource = "probe"
	DurationUnknown      DurationSource = "unknown"
)

// EventKind identifies an engine event.
type EventKind int

const (
	// EventFrame carries a paced, decoded frame.
	EventFrame EventKind = iota
	// EventEnded reports end of stream or a fatal decoder error.
	EventEnded
)

// Event is published on the engine's outbound queue.
type Event struct {
	Kind  EventKind
	Frame media.FrameBuffer
	// Epoch increments on every precise seek. Frames from an older epoch
	// were decoded before the seek and must be discarded.
	Epoch uint64
}

// Options configures an Engine. Zero values take defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics

	// EventBuffer is the capacity of the outbound event queue.
	EventBuffer int
	// StopTimeout bounds the join of the decode goroutine.
	StopTimeout time.Duration
	// PollInterval is the sleep between "no frame yet" retries.
	PollInterval time.Duration
	// PacingSlice is the longest uninterruptible pacing sleep.
	PacingSlice time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 8
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Millisecond
	}
	if o.PacingSlice <= 0 {
		o.PacingSlice = 5 * time.Millisecond
	}
	return o
}

// Engine manages the life cycle of one decoder session.
type Engine struct {
	path    string
	id      string
	opener  decoder.Opener
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	duration       media.Duration
	durationSource DurationSource

	// sessMu serializes use of session between the decode loop, precise
	// seeks and poster reads.
	sessMu  sync.Mutex
	session decoder.Session

	mu          sync.Mutex
	cond        *sync.Cond
	running     bool
	paused      bool
	closed      bool
	epoch       uint64
	resetPacing bool
	stopCh      chan struct{}
	done        chan struct{}

	captureMu sync.Mutex
	capture   decoder.Capture

	events chan Event
	quit   chan struct{}
}

// Open creates a decoder session for path and discovers its duration,
// falling back to a DurationProber when the container reports none.
func Open(opener decoder.Opener, path string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	id := uuid.NewString()
	logger := opts.Logger.With("component", "engine", "session", id)

	logger.Debug("opening source", "path", path)
	session, err := opener.OpenSession(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", media.ErrOpenFailed, path, err)
	}

	e := &Engine{
		path:    path,
		id:      id,
		opener:  opener,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		session: session,
		events:  make(chan Event, opts.EventBuffer),
		quit:    make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	e.discoverDuration(session.Metadata())
	return e, nil
}

func (e *Engine) discoverDuration(md decoder.Metadata) {
	e.logger.Info("media metadata", "width", md.Width, "height", md.Height, "fps", md.FPS, "duration", md.Duration)
	if md.Duration > 0 {
		e.duration = media.Duration{Value: md.Duration, Known: true}
		e.durationSource = DurationFromMetadata
		return
	}

	e.logger.Info("no duration in metadata, probing")
	if d, ok := NewDurationProber(e.opener, e.logger).Probe(e.path); ok {
		e.logger.Info("probed duration", "seconds", d)
		e.duration = media.Duration{Value: d, Known: true}
		e.durationSource = DurationFromProbe
		return
	}
	e.logger.Info("duration unknown")
	e.durationSource = DurationUnknown
}

// ID returns the engine's session id, as used in its log lines.
func (e *Engine) ID() string {
	return e.id
}

// Path returns the source path.
func (e *Engine) Path() string {
	return e.path
}

// Duration returns the duration discovered at open.
func (e *Engine) Duration() media.Duration {
	return e.duration
}

// DurationSource returns how the duration was discovered.
func (e *Engine) DurationSource() DurationSource {
	return e.durationSource
}

// Metadata returns what the decoder reported at open.
func (e *Engine) Metadata() decoder.Metadata {
	return e.session.Metadata()
}

// Events returns the outbound event queue. It is never closed; consumers
// stop reading when they unbind from the engine.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Epoch returns the current seek epoch.
func (e *Engine) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// IsRunning reports whether the decode goroutine is alive, paused or not.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// State returns the engine's playback state.
func (e *Engine) State() media.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.running:
		return media.StateStopped
	case e.paused:
		return media.StatePaused
	default:
		return media.StatePlaying
	}
}

// Start spawns the decode goroutine. It is a no-op while one is running;
// a paused engine must be resumed instead.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return media.ErrClosed
	}
	if e.running {
		e.logger.Debug("start ignored: already running")
		return nil
	}

	e.logger.Info("starting decode loop")
	e.running = true
	e.paused = false
	e.resetPacing = true
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	e.session.SetPaused(false)

	go e.loop(e.stopCh, e.done)
	return nil
}

// Pause parks the decode goroutine and stops decoder read-ahead without
// tearing down the session.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.running || e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = true
	e.session.SetPaused(true)
	e.mu.Unlock()

	e.logger.Debug("paused")
}

// Resume wakes a paused decode goroutine. Pacing is re-anchored so the
// loop does not try to catch up on the time spent paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.running || !e.paused {
		e.mu.Unlock()
		return
	}
	e.session.SetPaused(false)
	e.paused = false
	e.resetPacing = true
	e.cond.Broadcast()
	e.mu.Unlock()

	e.logger.Debug("resumed")
}

// Stop ends the decode goroutine and waits for it up to StopTimeout. The
// session stays open so Start can continue from the current position.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.logger.Info("stopping decode loop")
	e.running = false
	e.paused = false
	close(e.stopCh)
	e.cond.Broadcast()
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
		e.logger.Debug("decode loop joined")
	case <-time.After(e.opts.StopTimeout):
		e.logger.Warn("decode loop did not exit in time", "timeout", e.opts.StopTimeout)
	}
}

// Close stops the decode goroutine and releases the session and the
// preview handle. It is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.Stop()
	close(e.quit)

	e.logger.Info("closing session")
	var firstErr error
	if err := e.session.Close(); err != nil {
		e.logger.Warn("error closing session", "error", err)
		firstErr = err
	}

	e.captureMu.Lock()
	if e.capture != nil {
		if err := e.capture.Close(); err != nil {
			e.logger.Debug("error closing preview capture", "error", err)
		}
		e.capture = nil
	}
	e.captureMu.Unlock()

	return firstErr
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
