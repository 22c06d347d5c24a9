package ffmpeg

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ProbeResult
		wantErr bool
	}{
		{
			name: "format duration and frame count",
			input: `{"streams":[{"codec_type":"video","width":1920,"height":1080,
				"r_frame_rate":"30000/1001","avg_frame_rate":"30000/1001","nb_frames":"300","duration":"10.01"}],
				"format":{"duration":"10.010000","start_time":"0.000000"}}`,
			want: ProbeResult{Width: 1920, Height: 1080, FPS: 30000.0 / 1001, Rate: "30000/1001", Frames: 300, Duration: 10.01},
		},
		{
			name: "transport stream start time",
			input: `{"streams":[{"width":1280,"height":720,"r_frame_rate":"25/1","start_time":"1.400000"}],
				"format":{"duration":"60.0","start_time":"1.380000"}}`,
			want: ProbeResult{Width: 1280, Height: 720, FPS: 25, Rate: "25/1", Duration: 60, StartTime: 1.4},
		},
		{
			name: "format start time fallback",
			input: `{"streams":[{"width":320,"height":240,"r_frame_rate":"24/1","start_time":"N/A"}],
				"format":{"start_time":"0.500000"}}`,
			want: ProbeResult{Width: 320, Height: 240, FPS: 24, Rate: "24/1", StartTime: 0.5},
		},
		{
			name: "stream duration fallback and counted packets",
			input: `{"streams":[{"width":640,"height":360,"r_frame_rate":"0/0","avg_frame_rate":"25/1",
				"nb_read_packets":"250","duration":"10.0"}],"format":{}}`,
			want: ProbeResult{Width: 640, Height: 360, FPS: 25, Rate: "25/1", Frames: 250, Duration: 10},
		},
		{
			name:  "no duration anywhere",
			input: `{"streams":[{"width":640,"height":360,"r_frame_rate":"24/1"}],"format":{"duration":"N/A"}}`,
			want:  ProbeResult{Width: 640, Height: 360, FPS: 24, Rate: "24/1"},
		},
		{
			name:    "no streams",
			input:   `{"streams":[],"format":{"duration":"3.0"}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `nope`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbeOutput([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Width, got.Width)
			assert.Equal(t, tt.want.Height, got.Height)
			assert.InDelta(t, tt.want.FPS, got.FPS, 1e-9)
			assert.Equal(t, tt.want.Frames, got.Frames)
			assert.InDelta(t, tt.want.Duration, got.Duration, 1e-9)
			assert.Equal(t, tt.want.Rate, got.Rate)
			assert.InDelta(t, tt.want.StartTime, got.StartTime, 1e-9)
		})
	}
}

func TestParseRational(t *testing.T) {
	assert.Equal(t, 25.0, parseRational("25/1"))
	assert.Equal(t, 25.0, parseRational("25"))
	assert.InDelta(t, 29.97, parseRational("30000/1001"), 0.001)
	assert.Equal(t, 0.0, parseRational("0/0"))
	assert.Equal(t, 0.0, parseRational("x/1"))
	assert.Equal(t, 0.0, parseRational(""))
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "6.1.1", parseVersion("ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc"))
	assert.Equal(t, "N-112345-g1234567", parseVersion("ffprobe version N-112345-g1234567, built"))
	assert.Equal(t, "", parseVersion(""))
}

type fakeFileInfo struct{ dir bool }

func (f fakeFileInfo) Name() string       { return "ffprobe" }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0o755 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

func TestResolveFFprobe(t *testing.T) {
	exists := func(string) (os.FileInfo, error) { return fakeFileInfo{}, nil }
	missing := func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }

	assert.Equal(t, "/opt/ffprobe", resolveFFprobeWithStat(" /opt/ffprobe ", "/usr/bin/ffmpeg", exists))
	assert.Equal(t, filepath.Join("/opt/ff/bin", "ffprobe"), resolveFFprobeWithStat("", "/opt/ff/bin/ffmpeg", exists))
	assert.Equal(t, "ffprobe", resolveFFprobeWithStat("", "/opt/ff/bin/ffmpeg", missing))
	assert.Equal(t, "ffprobe", resolveFFprobeWithStat("", "ffmpeg", exists))
	assert.Equal(t, "ffprobe", resolveFFprobeWithStat("", "/opt/ff/bin/avconv", exists))
}

func TestSessionBuildArgs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newSession(Config{FFmpeg: "ffmpeg", Threads: 2, QueueDepth: 4}, logger, "/clips/a.mp4",
		ProbeResult{Width: 4, Height: 2, FPS: 30000.0 / 1001, Rate: "30000/1001", StartTime: 1.4})

	args := s.buildArgs(0)
	assert.NotContains(t, args, "-ss")
	assert.Contains(t, args, "rgb24")
	assert.Equal(t, "-", args[len(args)-1])

	args = s.buildArgs(2.5)
	require.Contains(t, args, "-ss")
	for i, a := range args {
		if a == "-ss" {
			assert.Equal(t, "2.500000", args[i+1])
		}
		if a == "-threads" {
			assert.Equal(t, "2", args[i+1])
		}
		if a == "-fps_mode" {
			assert.Equal(t, "cfr", args[i+1])
		}
		if a == "-r" {
			assert.Equal(t, "30000/1001", args[i+1])
		}
	}
	assert.Contains(t, args, "-fps_mode")
	assert.Equal(t, 24, s.frameSize)
	assert.Equal(t, 1.4, s.Metadata().StartTime)

	s.probe.Rate = ""
	s.probe.FPS = 12.5
	assert.Equal(t, "12.5", s.rate())
}

func TestFirstFrameIndex(t *testing.T) {
	assert.Equal(t, 0, firstFrameIndex(0, 30))
	assert.Equal(t, 0, firstFrameIndex(-1, 30))
	assert.Equal(t, 60, firstFrameIndex(2.0, 30))
	assert.Equal(t, 61, firstFrameIndex(2.01, 30))
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}

func TestNextFrameAfterClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newSession(Config{}.withDefaults(), logger, "x", ProbeResult{Width: 1, Height: 1, FPS: 1})
	require.NoError(t, s.Close())
	_, err := s.NextFrame()
	assert.ErrorIs(t, err, errSessionClosed)
	assert.NoError(t, s.Close())
}
