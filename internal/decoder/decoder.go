// Package decoder defines the contract between the decode engine and a
// native video decoder.
package decoder

import (
	"errors"
	"time"
)

// ErrNoFrame is returned by Session.NextFrame when no frame is ready yet.
// It is transient: the caller should wait briefly and try again.
var ErrNoFrame = errors.New("no frame ready")

// Frame is a decoded picture as handed out by a decoder. Pix is transient:
// it is only valid until the next call on the same Session or Capture, so
// callers must copy it before keeping it.
type Frame struct {
	Width  int
	Height int
	Stride int // bytes per row in Pix
	Pix    []byte
	PTS    float64 // seconds

	// Delay is the decoder-recommended wait before showing the next frame.
	// Zero means the decoder does not report one.
	Delay time.Duration
}

// Metadata is what the container reports about a source.
type Metadata struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64 // seconds, 0 when not reported
	// StartTime is the source timestamp of the first frame. Frame PTS and
	// seek targets are relative to it.
	StartTime float64
}

// Session is a streaming decoder bound to one source.
type Session interface {
	// Metadata returns container information read when the session opened.
	Metadata() Metadata

	// NextFrame returns the next decoded frame. It returns ErrNoFrame when
	// nothing is ready yet, io.EOF at end of stream, and any other error
	// when the session is broken.
	NextFrame() (Frame, error)

	// Seek repositions the stream so the next frames start at seconds.
	Seek(seconds float64) error

	// SetPaused stops (true) or restarts (false) internal read-ahead. It may
	// be called concurrently with NextFrame.
	SetPaused(paused bool)

	// Close releases the session. It must be safe to call while another
	// goroutine is inside NextFrame.
	Close() error
}

// Capture is a random-access handle on a source, independent of any Session.
type Capture interface {
	// Props returns the total frame count and frame rate, zero when unknown.
	Props() (frames, fps float64)

	// SeekTo positions the handle at seconds.
	SeekTo(seconds float64) error

	// Read decodes one frame at the current position.
	Read() (Frame, error)

	Close() error
}

// Opener creates decoder handles for a path.
type Opener interface {
	OpenSession(path string) (Session, error)
	OpenCapture(path string) (Capture, error)
}
