package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crittr/crittr/internal/database"
	"github.com/crittr/crittr/internal/history"
	"github.com/crittr/crittr/internal/media"
	"github.com/crittr/crittr/internal/playback"
)

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a file headlessly, logging playback events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		seekTo, _ := cmd.Flags().GetFloat64("seek")
		playFor, _ := cmd.Flags().GetDuration("for")
		noResume, _ := cmd.Flags().GetBool("no-resume")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		if metricsAddr == "" && cfg.Metrics.Enabled {
			metricsAddr = cfg.Metrics.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg, metrics := newRegistry()
		if metricsAddr != "" {
			if err := serveMetrics(ctx, metricsAddr, reg, logger); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
		}

		ctrl := playback.NewController(newOpener(cfg, logger), controllerOptions(cfg, logger, metrics))
		defer ctrl.Shutdown()

		if err := ctrl.Open(path); err != nil {
			return err
		}

		hist := history.NewService(database.GetDB())
		if err := hist.SetLastDirectory(filepath.Dir(path)); err != nil {
			logger.Warn("failed to save last directory", "error", err)
		}

		start := 0.0
		switch {
		case cmd.Flags().Changed("seek"):
			start = seekTo
		case cfg.Playback.Resume && !noResume:
			if at, ok, err := hist.ResumeAt(path); err != nil {
				logger.Warn("failed to read saved position", "error", err)
			} else if ok {
				fmt.Printf("Resuming at %s\n", formatPTS(at))
				start = at
			}
		}
		if start > 0 {
			if _, err := ctrl.SeekToTime(start); err != nil {
				logger.Warn("initial seek failed, starting from the beginning", "target", start, "error", err)
			}
		}

		if err := ctrl.Play(); err != nil {
			return err
		}

		ended, frames := runPlayback(ctx, ctrl, hist, path, playFor)

		ctrl.Pause()
		if ended {
			if err := hist.Forget(path); err != nil {
				logger.Warn("failed to clear saved position", "error", err)
			}
		} else {
			savePosition(hist, ctrl, path)
		}

		fmt.Printf("%s: %d frames, stopped at %s of %s, ~%.2f fps\n",
			filepath.Base(path), frames, formatPTS(ctrl.PTS()), formatDuration(ctrl.Duration()), ctrl.FPS())
		return nil
	},
}

// runPlayback consumes controller events until the stream ends, ctx is
// cancelled or playFor elapses.
func runPlayback(ctx context.Context, ctrl *playback.Controller, hist *history.Service, path string, playFor time.Duration) (ended bool, frames int) {
	var limit <-chan time.Time
	if playFor > 0 {
		t := time.NewTimer(playFor)
		defer t.Stop()
		limit = t.C
	}
	save := time.NewTicker(max(cfg.Playback.SaveInterval, time.Second))
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("playback interrupted")
			return false, frames
		case <-limit:
			logger.Info("playback time limit reached", "for", playFor)
			return false, frames
		case <-save.C:
			savePosition(hist, ctrl, path)
		case ev, ok := <-ctrl.Events():
			if !ok {
				return false, frames
			}
			switch ev.Kind {
			case playback.TimeChanged:
				logger.Debug("time changed", "pts", ev.PTS)
			case playback.DurationChanged:
				logger.Info("duration changed", "seconds", ev.Duration.Value, "known", ev.Duration.Known)
			case playback.FrameReady:
				frames++
			case playback.Ended:
				logger.Info("playback ended", "pts", ev.PTS)
				return true, frames
			}
		}
	}
}

func savePosition(hist *history.Service, ctrl *playback.Controller, path string) {
	if err := hist.SavePosition(path, ctrl.PTS(), ctrl.Duration()); err != nil {
		logger.Warn("failed to save position", "error", err)
	}
}

func formatPTS(seconds float64) string {
	return time.Duration(media.PTSToMillis(seconds) * int64(time.Millisecond)).String()
}

func formatDuration(d media.Duration) string {
	if !d.Known {
		return "unknown"
	}
	return formatPTS(d.Value)
}

func init() {
	playCmd.Flags().Float64("seek", 0, "start at this position in seconds (disables resume)")
	playCmd.Flags().Duration("for", 0, "stop after playing this long (e.g. 10s)")
	playCmd.Flags().Bool("no-resume", false, "ignore the saved position")
	playCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}
