// Package decodertest provides a synthetic decoder for engine and controller tests.
package decodertest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/crittr/crittr/internal/decoder"
)

// ErrDecode is returned by a session configured to fail mid-stream.
var ErrDecode = errors.New("synthetic decode failure")

// Clip describes a synthetic source.
type Clip struct {
	Width  int
	Height int
	FPS    float64
	Frames int

	// Duration is the container duration reported by Metadata, 0 for none.
	Duration float64
	// ProbeFrames and ProbeFPS are what Capture.Props reports.
	ProbeFrames float64
	ProbeFPS    float64

	// Stride pads rows when larger than 3*Width.
	Stride int
	// Delay is reported as the decoder-recommended delay on every frame.
	Delay time.Duration
	// GOP rounds seeks down to a multiple of this many frames.
	GOP int

	// FailOpen and FailCapture make the opener fail.
	FailOpen    error
	FailCapture error
	// FailAfter breaks the session after this many frames, 0 for never.
	FailAfter int
	// Malformed lists frame indices delivered with a short buffer.
	Malformed map[int]bool
	// Stutter makes every other NextFrame call report ErrNoFrame.
	Stutter bool
}

// NewClip returns a clip of frames at fps whose metadata and probe props
// both describe it correctly.
func NewClip(frames int, fps float64) Clip {
	return Clip{
		Width:       4,
		Height:      2,
		FPS:         fps,
		Frames:      frames,
		Duration:    float64(frames) / fps,
		ProbeFrames: float64(frames),
		ProbeFPS:    fps,
		GOP:         1,
	}
}

// Opener hands out sessions and captures over one Clip.
type Opener struct {
	Clip Clip

	mu       sync.Mutex
	sessions []*Session
	captures []*Capture
}

// NewOpener returns an Opener for clip.
func NewOpener(clip Clip) *Opener {
	return &Opener{Clip: clip}
}

// OpenSession implements decoder.Opener.
func (o *Opener) OpenSession(path string) (decoder.Session, error) {
	if o.Clip.FailOpen != nil {
		return nil, o.Clip.FailOpen
	}
	s := &Session{clip: o.Clip, path: path}
	o.mu.Lock()
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
	return s, nil
}

// OpenCapture implements decoder.Opener.
func (o *Opener) OpenCapture(path string) (decoder.Capture, error) {
	if o.Clip.FailCapture != nil {
		return nil, o.Clip.FailCapture
	}
	c := &Capture{clip: o.Clip}
	o.mu.Lock()
	o.captures = append(o.captures, c)
	o.mu.Unlock()
	return c, nil
}

// Sessions returns every session opened so far.
func (o *Opener) Sessions() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Session(nil), o.sessions...)
}

// Captures returns every capture opened so far.
func (o *Opener) Captures() []*Capture {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Capture(nil), o.captures...)
}

// Session is a synthetic streaming decoder.
type Session struct {
	clip Clip
	path string

	mu         sync.Mutex
	pos        int
	delivered  int
	calls      int
	paused     bool
	pauseCalls int
	seeks      []float64
	closed     bool
	buf        []byte
}

func (s *Session) Metadata() decoder.Metadata {
	return decoder.Metadata{
		Width:    s.clip.Width,
		Height:   s.clip.Height,
		FPS:      s.clip.FPS,
		Duration: s.clip.Duration,
	}
}

func (s *Session) NextFrame() (decoder.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return decoder.Frame{}, fmt.Errorf("session closed")
	}
	s.calls++
	if s.clip.Stutter && s.calls%2 == 1 {
		return decoder.Frame{}, decoder.ErrNoFrame
	}
	if s.clip.FailAfter > 0 && s.delivered >= s.clip.FailAfter {
		return decoder.Frame{}, ErrDecode
	}
	if s.pos >= s.clip.Frames {
		return decoder.Frame{}, io.EOF
	}

	f := s.frameLocked(s.pos)
	s.pos++
	s.delivered++
	return f, nil
}

// frameLocked fills the reused buffer, the way native decoders hand back
// a transient image.
func (s *Session) frameLocked(idx int) decoder.Frame {
	stride := s.clip.Stride
	if stride < s.clip.Width*3 {
		stride = s.clip.Width * 3
	}
	size := stride * s.clip.Height
	if s.clip.Malformed[idx] {
		size /= 2
	}
	if cap(s.buf) < stride*s.clip.Height {
		s.buf = make([]byte, stride*s.clip.Height)
	}
	s.buf = s.buf[:size]
	for i := range s.buf {
		s.buf[i] = byte(idx)
	}
	return decoder.Frame{
		Width:  s.clip.Width,
		Height: s.clip.Height,
		Stride: stride,
		Pix:    s.buf,
		PTS:    float64(idx) / s.clip.FPS,
		Delay:  s.clip.Delay,
	}
}

func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	s.seeks = append(s.seeks, seconds)
	s.pos = seekIndex(s.clip, seconds)
	return nil
}

func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	if paused {
		s.pauseCalls++
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Paused reports the last SetPaused value.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// PauseCalls counts SetPaused(true) calls.
func (s *Session) PauseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseCalls
}

// Seeks returns the targets passed to Seek.
func (s *Session) Seeks() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.seeks...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Capture is a synthetic random-access handle.
type Capture struct {
	clip Clip

	mu     sync.Mutex
	pos    int
	reads  int
	closed bool
}

func (c *Capture) Props() (frames, fps float64) {
	return c.clip.ProbeFrames, c.clip.ProbeFPS
}

func (c *Capture) SeekTo(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("capture closed")
	}
	c.pos = int(math.Round(math.Max(0, seconds) * c.clip.FPS))
	return nil
}

func (c *Capture) Read() (decoder.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return decoder.Frame{}, fmt.Errorf("capture closed")
	}
	if c.pos >= c.clip.Frames {
		return decoder.Frame{}, io.EOF
	}
	c.reads++
	pix := make([]byte, c.clip.Width*3*c.clip.Height)
	for i := range pix {
		pix[i] = byte(c.pos)
	}
	f := decoder.Frame{
		Width:  c.clip.Width,
		Height: c.clip.Height,
		Stride: c.clip.Width * 3,
		Pix:    pix,
		PTS:    float64(c.pos) / c.clip.FPS,
	}
	c.pos++
	return f, nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Reads counts successful Read calls.
func (c *Capture) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Closed reports whether Close was called.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func seekIndex(clip Clip, seconds float64) int {
	idx := int(math.Floor(math.Max(0, seconds)*clip.FPS + 1e-9))
	if clip.GOP > 1 {
		idx = (idx / clip.GOP) * clip.GOP
	}
	if idx > clip.Frames {
		idx = clip.Frames
	}
	return idx
}
