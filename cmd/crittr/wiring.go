package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crittr/crittr/internal/config"
	"github.com/crittr/crittr/internal/decoder/ffmpeg"
	"github.com/crittr/crittr/internal/engine"
	"github.com/crittr/crittr/internal/playback"
)

func newOpener(c *config.Config, logger *slog.Logger) *ffmpeg.Opener {
	return ffmpeg.NewOpener(ffmpeg.Config{
		FFmpeg:         c.Decoder.FFmpegPath,
		FFprobe:        c.Decoder.FFprobePath,
		Threads:        c.Decoder.Threads,
		QueueDepth:     c.Decoder.QueueDepth,
		ProbeTimeout:   c.Decoder.ProbeTimeout,
		CaptureTimeout: c.Decoder.CaptureTimeout,
	}, logger)
}

func engineOptions(c *config.Config, logger *slog.Logger, m *engine.Metrics) engine.Options {
	return engine.Options{
		Logger:      logger,
		Metrics:     m,
		EventBuffer: c.Playback.EventBuffer,
		StopTimeout: c.Playback.StopTimeout,
		PacingSlice: c.Playback.PacingSlice,
	}
}

func controllerOptions(c *config.Config, logger *slog.Logger, m *engine.Metrics) playback.Options {
	return playback.Options{
		Logger:        logger,
		Engine:        engineOptions(c, logger, m),
		PosterTimeout: c.Playback.PosterTimeout,
		SeekTimeout:   c.Playback.SeekTimeout,
		QueueLimit:    c.Playback.QueueLimit,
		FPSSeed:       c.Playback.FPSSeed,
		FPSAlpha:      c.Playback.FPSAlpha,
	}
}

// newRegistry returns a registry with the engine counters and the
// standard Go and process collectors.
func newRegistry() (*prometheus.Registry, *engine.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, engine.NewMetrics(reg)
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("serving metrics", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return nil
}
