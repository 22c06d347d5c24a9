// Package media holds the value types shared by the decode engine and the
// playback controller.
package media

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned when a decoded buffer does not match its
	// declared geometry.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrOpenFailed is returned when a source cannot be opened for decoding.
	ErrOpenFailed = errors.New("open failed")

	// ErrSeekTimeout is returned when a precise seek saw no frame before its deadline.
	ErrSeekTimeout = errors.New("seek timeout")

	// ErrFrameTimeout is returned when no frame arrived before a read deadline.
	ErrFrameTimeout = errors.New("no frame before timeout")

	// ErrNotOpen is returned by operations that need an opened source.
	ErrNotOpen = errors.New("no source open")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrEndOfStream is returned when the source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// BytesPerPixel is the size of one interleaved RGB24 pixel.
const BytesPerPixel = 3

// FrameBuffer is one decoded picture: interleaved RGB24, row-major, with a
// tight stride of 3*Width. A FrameBuffer owns its pixels and is never
// modified after construction.
type FrameBuffer struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
	PTS    float64 // seconds
}

// NewFrameBuffer copies src, laid out with the given source stride, into a
// new tight RGB24 buffer. src is typically a transient decoder buffer that
// will be reused once this call returns.
func NewFrameBuffer(width, height, stride int, src []byte, pts float64) (FrameBuffer, error) {
	if width <= 0 || height <= 0 {
		return FrameBuffer{}, fmt.Errorf("%w: invalid size %dx%d", ErrMalformedFrame, width, height)
	}
	row := width * BytesPerPixel
	if stride < row {
		return FrameBuffer{}, fmt.Errorf("%w: stride %d < row %d", ErrMalformedFrame, stride, row)
	}
	if len(src) < height*stride {
		return FrameBuffer{}, fmt.Errorf("%w: buffer size=%d, h*stride=%d", ErrMalformedFrame, len(src), height*stride)
	}

	pix := make([]byte, row*height)
	if stride == row {
		copy(pix, src[:row*height])
	} else {
		for y := 0; y < height; y++ {
			copy(pix[y*row:(y+1)*row], src[y*stride:y*stride+row])
		}
	}

	return FrameBuffer{
		Width:  width,
		Height: height,
		Stride: row,
		Pix:    pix,
		PTS:    pts,
	}, nil
}

// IsZero reports whether fb carries no picture.
func (fb FrameBuffer) IsZero() bool {
	return fb.Pix == nil
}

// At returns the RGB triple at (x, y).
func (fb FrameBuffer) At(x, y int) (r, g, b byte) {
	i := y*fb.Stride + x*BytesPerPixel
	return fb.Pix[i], fb.Pix[i+1], fb.Pix[i+2]
}
