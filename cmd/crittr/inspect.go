package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/crittr/crittr/internal/database"
	"github.com/crittr/crittr/internal/decoder/ffmpeg"
	"github.com/crittr/crittr/internal/engine"
	"github.com/crittr/crittr/internal/history"
	"github.com/crittr/crittr/internal/media"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Show stream properties and how the duration was found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		countFrames, _ := cmd.Flags().GetBool("count-frames")

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		ffmpegTool, ffprobeTool, err := ffmpeg.DetectTools(cfg.Decoder.FFmpegPath, cfg.Decoder.FFprobePath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Decoder.ProbeTimeout)
		defer cancel()
		res, err := ffmpeg.Probe(ctx, ffprobeTool.Binary, path, countFrames)
		if err != nil {
			return err
		}

		_, metrics := newRegistry()
		eng, err := engine.Open(newOpener(cfg, logger), path, engineOptions(cfg, logger, metrics))
		if err != nil {
			return err
		}
		defer eng.Close()

		fmt.Printf("File:       %s\n", path)
		fmt.Printf("Size:       %s (modified %s)\n", humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
		fmt.Printf("Video:      %dx%d @ %.3f fps\n", res.Width, res.Height, res.FPS)
		if res.Frames > 0 {
			fmt.Printf("Frames:     %s\n", humanize.Comma(int64(res.Frames)))
		}
		fmt.Printf("Duration:   %s (from %s)\n", formatDuration(eng.Duration()), eng.DurationSource())
		if res.StartTime != 0 {
			fmt.Printf("Starts at:  %.3fs (times above are relative to it)\n", res.StartTime)
		}
		fmt.Printf("Frame size: %s per RGB frame\n", humanize.Bytes(uint64(res.Width*res.Height*media.BytesPerPixel)))
		fmt.Printf("ffmpeg:     %s %s\n", ffmpegTool.Binary, ffmpegTool.Version)
		fmt.Printf("ffprobe:    %s %s\n", ffprobeTool.Binary, ffprobeTool.Version)
		return nil
	},
}

var posterCmd = &cobra.Command{
	Use:   "poster <file>",
	Short: "Write the frame at a given time as a PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		at, _ := cmd.Flags().GetFloat64("at")
		out, _ := cmd.Flags().GetString("out")
		fast, _ := cmd.Flags().GetBool("fast")

		_, metrics := newRegistry()
		eng, err := engine.Open(newOpener(cfg, logger), path, engineOptions(cfg, logger, metrics))
		if err != nil {
			return err
		}
		defer eng.Close()

		var fb media.FrameBuffer
		if fast {
			var ok bool
			if fb, ok = eng.PreviewFrameAt(at); !ok {
				return fmt.Errorf("no frame available at %s", formatPTS(at))
			}
		} else if fb, err = eng.SeekToTime(at, cfg.Playback.SeekTimeout); err != nil {
			return err
		}

		if err := writePNG(out, fb); err != nil {
			return err
		}
		size := int64(0)
		if info, err := os.Stat(out); err == nil {
			size = info.Size()
		}
		fmt.Printf("Wrote %dx%d frame at %s to %s (%s)\n", fb.Width, fb.Height, formatPTS(fb.PTS), out, humanize.Bytes(uint64(size)))
		return nil
	},
}

// toImage converts a packed RGB24 frame to an image.
func toImage(fb media.FrameBuffer) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	for y := 0; y < fb.Height; y++ {
		src := fb.Pix[y*fb.Stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < fb.Width; x++ {
			copy(dst[x*4:x*4+3], src[x*media.BytesPerPixel:x*media.BytesPerPixel+3])
			dst[x*4+3] = 0xff
		}
	}
	return img
}

func writePNG(path string, fb media.FrameBuffer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, toImage(fb)); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently played files and where they stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		hist := history.NewService(database.GetDB())

		if dir, err := hist.LastDirectory(); err == nil && dir != "" {
			fmt.Printf("Last directory: %s\n\n", dir)
		}

		positions, err := hist.Recent(limit)
		if err != nil {
			return err
		}
		if len(positions) == 0 {
			fmt.Println("Nothing played yet.")
			return nil
		}
		for _, p := range positions {
			progress := "?"
			if p.Duration.Known {
				progress = fmt.Sprintf("%3.0f%%", p.Progress()*100)
			}
			fmt.Printf("%-5s %-10s %-14s %s\n", progress, formatPTS(p.PTS), humanize.Time(p.UpdatedAt), p.Path)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().Bool("count-frames", false, "count packets when the container has no frame count (slow)")

	posterCmd.Flags().Float64("at", 0, "position in seconds")
	posterCmd.Flags().StringP("out", "o", "frame.png", "output PNG path")
	posterCmd.Flags().Bool("fast", false, "use the nearest keyframe-accurate preview instead of a precise seek")

	recentCmd.Flags().IntP("limit", "n", 10, "number of entries, 0 for all")
}
