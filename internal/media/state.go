package media

import "math"

// PlaybackState represents whether the decode thread may advance
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// String returns the string representation of PlaybackState
func (s PlaybackState) String() string {
	return string(s)
}

// Duration is a media length in seconds. When Known is false the value is
// only the furthest PTS observed so far and may still grow.
type Duration struct {
	Value float64 `json:"value"`
	Known bool    `json:"known"`
}

// MaxProbedDuration bounds durations derived from frame count and rate.
const MaxProbedDuration = 24 * 60 * 60.0

// PTSToMillis converts seconds to whole milliseconds, clamping at zero.
func PTSToMillis(pts float64) int64 {
	return int64(math.Round(math.Max(0, pts) * 1000))
}

// MillisToPTS converts milliseconds to seconds, clamping at zero.
func MillisToPTS(ms int64) float64 {
	if ms < 0 {
		ms = 0
	}
	return float64(ms) / 1000
}

// FrameOf returns the frame index for pts at the given rate.
func FrameOf(pts, fps float64) int {
	return int(math.Round(math.Max(0, pts) * math.Max(1e-6, fps)))
}
