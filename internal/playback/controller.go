// Package playback is the control surface for the UI: it owns canonical
// playback time and republishes decode engine events with its own
// bookkeeping.
package playback

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/crittr/crittr/internal/decoder"
	"github.com/crittr/crittr/internal/engine"
	"github.com/crittr/crittr/internal/media"
)

// State is the controller-level playback state
type State string

const (
	StateClosed  State = "closed"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
	StateEnded   State = "ended"
)

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// Options configures a Controller. Zero values take defaults.
type Options struct {
	Logger *slog.Logger

	// Engine is passed to every engine the controller opens.
	Engine engine.Options

	// PosterTimeout bounds the poster frame fetch in Open.
	PosterTimeout time.Duration
	// SeekTimeout bounds a precise seek.
	SeekTimeout time.Duration
	// QueueLimit is how many events the engine forwarder lets pile up
	// before it stops draining the engine.
	QueueLimit int

	FPSSeed  float64
	FPSAlpha float64
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Engine.Logger == nil {
		o.Engine.Logger = o.Logger
	}
	if o.PosterTimeout <= 0 {
		o.PosterTimeout = 350 * time.Millisecond
	}
	if o.SeekTimeout <= 0 {
		o.SeekTimeout = 3 * time.Second
	}
	if o.QueueLimit <= 0 {
		o.QueueLimit = 16
	}
	return o
}

// Controller mediates every command from the UI to the decode engine.
// pts is the only canonical timeline value; it moves only when the engine
// reports a frame, never with a local clock.
type Controller struct {
	opener decoder.Opener
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	eng      *engine.Engine
	unbind   chan struct{}
	pts      float64
	duration media.Duration
	fps      *media.FPSEstimator
	playing  bool
	state    State

	queue    *eventQueue
	out      chan Event
	shutdown chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewController creates a controller with no source open.
func NewController(opener decoder.Opener, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		opener:   opener,
		opts:     opts,
		logger:   opts.Logger.With("component", "controller"),
		fps:      media.NewFPSEstimator(opts.FPSSeed, opts.FPSAlpha),
		state:    StateClosed,
		queue:    newEventQueue(),
		out:      make(chan Event),
		shutdown: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go func() {
		defer close(c.stopped)
		c.queue.dispatch(c.out, c.shutdown)
	}()
	return c
}

// Events returns the ordered event stream. It is closed by Shutdown.
func (c *Controller) Events() <-chan Event {
	return c.out
}

// Open replaces any current source with path. Duration is published when
// known, then a poster frame is fetched so the view is primed before Play.
// On failure the controller is left closed.
func (c *Controller) Open(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("open", "path", path)
	c.unbindLocked()

	c.pts = 0
	c.playing = false
	c.fps.Reset()
	c.duration = media.Duration{}
	c.state = StateClosed

	eng, err := engine.Open(c.opener, path, c.opts.Engine)
	if err != nil {
		c.logger.Error("open failed", "path", path, "error", err)
		return err
	}
	c.eng = eng
	c.state = StatePaused

	if d := eng.Duration(); d.Known && d.Value > 0 {
		c.duration = d
		c.queue.push(Event{Kind: DurationChanged, Duration: d})
	}

	fb, err := eng.ReadOneFrame(c.opts.PosterTimeout)
	if err != nil {
		c.logger.Debug("no poster frame", "error", err)
	} else {
		c.publishFrameLocked(fb)
	}

	c.unbind = make(chan struct{})
	go c.forward(eng, c.unbind)
	return nil
}

// Play starts or resumes playback. It is a no-op when already playing or
// when nothing is open.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng == nil || c.playing {
		return nil
	}
	if c.eng.IsRunning() {
		c.eng.Resume()
	} else if err := c.eng.Start(); err != nil {
		return err
	}
	c.playing = true
	c.state = StatePlaying
	return nil
}

// Pause pauses playback. It is a no-op when not playing.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng == nil || !c.playing {
		return
	}
	c.eng.Pause()
	c.playing = false
	c.state = StatePaused
}

// SeekToTime performs a precise seek and publishes the resulting frame and
// time. A successful seek always leaves playback paused; a failed one
// restores the previous play state.
func (c *Controller) SeekToTime(pts float64) (media.FrameBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seekLocked(pts)
}

func (c *Controller) seekLocked(pts float64) (media.FrameBuffer, error) {
	if c.eng == nil {
		return media.FrameBuffer{}, media.ErrNotOpen
	}

	wasPlaying := c.playing
	if wasPlaying {
		c.eng.Pause()
	}

	fb, err := c.eng.SeekToTime(math.Max(0, pts), c.opts.SeekTimeout)
	if err != nil {
		c.logger.Warn("seek failed", "pts", pts, "error", err)
		if wasPlaying {
			c.eng.Resume()
		}
		return media.FrameBuffer{}, err
	}

	c.publishFrameLocked(fb)
	c.playing = false
	c.state = StatePaused
	return fb, nil
}

// Step moves n frames forward (or backward when negative) using the frame
// rate estimate, via a precise seek.
func (c *Controller) Step(n int) (media.FrameBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.pts + float64(n)/math.Max(1e-6, c.fps.Value())
	if c.duration.Known {
		target = math.Min(target, c.duration.Value)
	}
	return c.seekLocked(math.Max(0, target))
}

// PreviewFrameAt fetches a scrub preview. Only FrameReady is published:
// canonical time does not move during an uncommitted scrub.
func (c *Controller) PreviewFrameAt(pts float64) (media.FrameBuffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng == nil {
		return media.FrameBuffer{}, false
	}
	pts = math.Max(0, pts)
	fb, ok := c.eng.PreviewFrameAt(pts)
	if ok {
		c.queue.push(Event{Kind: FrameReady, PTS: pts, Frame: fb})
	}
	return fb, ok
}

// Close releases the current source and returns to the closed state.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unbindLocked()
	c.playing = false
	c.state = StateClosed
}

// Shutdown closes the source and stops event delivery. Events is closed
// once the dispatcher has exited.
func (c *Controller) Shutdown() {
	c.Close()
	c.once.Do(func() {
		close(c.shutdown)
		<-c.stopped
		close(c.out)
	})
}

// PTS returns canonical playback time in seconds.
func (c *Controller) PTS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pts
}

// Duration returns the current duration.
func (c *Controller) Duration() media.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// FPS returns the smoothed frame rate estimate.
func (c *Controller) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps.Value()
}

// FrameIndex returns the frame number of the current PTS.
func (c *Controller) FrameIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return media.FrameOf(c.pts, c.fps.Value())
}

// IsPlaying reports whether playback is running.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Engine returns the bound engine, or nil.
func (c *Controller) Engine() *engine.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng
}

// unbindLocked stops forwarding from the current engine and closes it.
// Close errors are logged and swallowed.
func (c *Controller) unbindLocked() {
	if c.unbind != nil {
		close(c.unbind)
		c.unbind = nil
	}
	if c.eng != nil {
		if err := c.eng.Close(); err != nil {
			c.logger.Debug("closing previous engine failed", "error", err)
		}
		c.eng = nil
	}
}

// forward drains one engine's events until the controller unbinds from it.
func (c *Controller) forward(eng *engine.Engine, unbind <-chan struct{}) {
	for {
		select {
		case <-unbind:
			return
		case ev := <-eng.Events():
			c.handleEngineEvent(eng, ev)
			if !c.queue.waitForSpace(c.opts.QueueLimit, unbind) {
				return
			}
		}
	}
}

func (c *Controller) handleEngineEvent(eng *engine.Engine, ev engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng != eng {
		return
	}

	switch ev.Kind {
	case engine.EventFrame:
		if ev.Epoch != eng.Epoch() {
			return
		}
		c.fps.Update(ev.Frame.PTS - c.pts)
		c.publishFrameLocked(ev.Frame)

	case engine.EventEnded:
		if ev.Epoch != eng.Epoch() {
			c.logger.Debug("dropping end of stream from before a seek", "pts", c.pts)
			return
		}
		c.logger.Debug("playback ended", "pts", c.pts)
		c.playing = false
		c.state = StateEnded
		c.queue.push(Event{Kind: Ended, PTS: c.pts})
	}
}

// publishFrameLocked commits fb as the current frame. TimeChanged is queued
// before FrameReady in a single push so nothing can interleave.
func (c *Controller) publishFrameLocked(fb media.FrameBuffer) {
	c.pts = math.Max(0, fb.PTS)

	if !c.duration.Known && c.pts > c.duration.Value {
		c.duration.Value = c.pts
		c.queue.push(Event{Kind: DurationChanged, Duration: c.duration})
	}

	c.queue.push(
		Event{Kind: TimeChanged, PTS: c.pts},
		Event{Kind: FrameReady, PTS: c.pts, Frame: fb},
	)
}

// IsOpenFailure reports whether err came from a source that could not be opened.
func IsOpenFailure(err error) bool {
	return errors.Is(err, media.ErrOpenFailed)
}
