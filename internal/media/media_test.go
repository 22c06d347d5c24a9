package media

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameBuffer(t *testing.T) {
	t.Run("tight stride is copied", func(t *testing.T) {
		src := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
		fb, err := NewFrameBuffer(2, 2, 6, src, 1.5)
		require.NoError(t, err)
		assert.Equal(t, 6, fb.Stride)
		assert.Equal(t, src, fb.Pix)
		assert.Equal(t, 1.5, fb.PTS)

		// The frame must not alias the decoder buffer.
		src[0] = 99
		assert.Equal(t, byte(1), fb.Pix[0])
	})

	t.Run("padded stride is compacted", func(t *testing.T) {
		src := []byte{
			1, 2, 3, 0, 0,
			4, 5, 6, 0, 0,
		}
		fb, err := NewFrameBuffer(1, 2, 5, src, 0)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, fb.Pix)
		r, g, b := fb.At(0, 1)
		assert.Equal(t, []byte{4, 5, 6}, []byte{r, g, b})
	})

	tests := []struct {
		name   string
		w, h   int
		stride int
		size   int
	}{
		{"zero width", 0, 2, 6, 12},
		{"negative height", 2, -1, 6, 12},
		{"stride shorter than row", 2, 2, 5, 12},
		{"buffer too small", 2, 2, 6, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameBuffer(tt.w, tt.h, tt.stride, make([]byte, tt.size), 0)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestTimeHelpers(t *testing.T) {
	assert.Equal(t, int64(1500), PTSToMillis(1.5))
	assert.Equal(t, int64(0), PTSToMillis(-3))
	assert.Equal(t, 2.25, MillisToPTS(2250))
	assert.Equal(t, 0.0, MillisToPTS(-10))
	assert.Equal(t, 75, FrameOf(3.0, 25))
	assert.Equal(t, 0, FrameOf(-1, 25))
	assert.Equal(t, 0, FrameOf(1, 0))
}

func TestFPSEstimatorConverges(t *testing.T) {
	e := NewFPSEstimator(0, 0)
	assert.Equal(t, DefaultFPS, e.Value())

	want := DefaultFPS
	for i := 0; i < 200; i++ {
		want = 0.9*want + 0.1*30
		got := e.Update(1.0 / 30)
		assert.InDelta(t, want, got, 1e-9)
	}
	assert.InDelta(t, 30.0, e.Value(), 1e-6)
}

func TestFPSEstimatorFloorsDelta(t *testing.T) {
	e := NewFPSEstimator(24, 0.1)
	got := e.Update(0)
	assert.False(t, math.IsInf(got, 0))
	assert.InDelta(t, 0.9*24+0.1*1e6, got, 1e-6)

	e.Reset()
	got = e.Update(-0.5)
	assert.InDelta(t, 0.9*24+0.1*1e6, got, 1e-6)
}

func TestPlaybackStateString(t *testing.T) {
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
