package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crittr/crittr/internal/media"
)

func TestToImage(t *testing.T) {
	// Packed RGB becomes RGBA with opaque alpha.
	fb := media.FrameBuffer{Width: 2, Height: 1, Stride: 6, Pix: []byte{10, 20, 30, 40, 50, 60}}
	img := toImage(fb)

	assert.Equal(t, []byte{10, 20, 30, 0xff, 40, 50, 60, 0xff}, img.Pix)
}

func TestWritePNG(t *testing.T) {
	src, err := media.NewFrameBuffer(2, 2, 6, []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 9, 9, 9,
	}, 1.5)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "frame.png")
	require.NoError(t, writePNG(out, src))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, 2, img.Bounds().Dx())
	r, g, b, a := img.At(1, 1).RGBA()
	assert.Equal(t, []uint32{9, 9, 9, 0xff}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
}

func TestFormatPTS(t *testing.T) {
	assert.Equal(t, "1.5s", formatPTS(1.5))
	assert.Equal(t, "0s", formatPTS(-2))
	assert.Equal(t, "unknown", formatDuration(media.Duration{Value: 3}))
	assert.Equal(t, "1m30s", formatDuration(media.Duration{Value: 90, Known: true}))
}

func TestSkipSetup(t *testing.T) {
	assert.True(t, skipSetup(versionCmd))
	assert.True(t, skipSetup(configInitCmd))
	assert.True(t, skipSetup(configPathCmd))
	assert.False(t, skipSetup(configShowCmd))
	assert.False(t, skipSetup(playCmd))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"play", "probe", "poster", "recent", "config", "version"} {
		assert.True(t, names[want], want)
	}
}
