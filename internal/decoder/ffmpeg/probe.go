package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe output the decoder needs.
type ProbeResult struct {
	Width  int
	Height int
	FPS    float64
	// Rate is the frame rate as ffprobe printed it ("30000/1001"), passed
	// back to ffmpeg so output frames sit exactly on the n/FPS grid.
	Rate   string
	Frames float64 // nb_frames, or nb_read_packets when counted
	// Duration is the container duration, falling back to the stream's.
	Duration float64
	// StartTime is the presentation time of the first frame. Decoded
	// positions are measured from it.
	StartTime float64
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		Duration      string `json:"duration"`
		StartTime     string `json:"start_time"`
	} `json:"streams"`
	Format struct {
		Duration  string `json:"duration"`
		StartTime string `json:"start_time"`
	} `json:"format"`
}

// Probe runs ffprobe on the first video stream of path. With countPackets
// set, ffprobe demuxes the whole file so Frames is known even when the
// container does not store a frame count.
func Probe(ctx context.Context, ffprobeBin, path string, countPackets bool) (ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,avg_frame_rate,nb_frames,nb_read_packets,duration,start_time:format=duration,start_time",
		"-print_format", "json",
	}
	if countPackets {
		args = append(args, "-count_packets")
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, ffprobeBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(data []byte) (ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return ProbeResult{}, fmt.Errorf("no video stream")
	}

	st := out.Streams[0]
	res := ProbeResult{
		Width:  st.Width,
		Height: st.Height,
		FPS:    parseRational(st.RFrameRate),
		Rate:   strings.TrimSpace(st.RFrameRate),
	}
	if res.FPS <= 0 {
		res.FPS = parseRational(st.AvgFrameRate)
		res.Rate = strings.TrimSpace(st.AvgFrameRate)
	}
	if res.FPS <= 0 {
		res.Rate = ""
	}
	if n := parseFloat(st.NbFrames); n > 0 {
		res.Frames = n
	} else {
		res.Frames = parseFloat(st.NbReadPackets)
	}
	res.Duration = parseFloat(out.Format.Duration)
	if res.Duration <= 0 {
		res.Duration = parseFloat(st.Duration)
	}
	res.StartTime = parseFloat(st.StartTime)
	if res.StartTime == 0 {
		res.StartTime = parseFloat(out.Format.StartTime)
	}

	if res.Width <= 0 || res.Height <= 0 {
		return res, fmt.Errorf("video stream has no dimensions (%dx%d)", res.Width, res.Height)
	}
	return res, nil
}

// parseRational parses "30000/1001" or "25". Invalid input yields 0.
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
