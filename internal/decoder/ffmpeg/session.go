package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/crittr/crittr/internal/decoder"
)

var errSessionClosed = errors.New("ffmpeg session closed")

// rawFrame is a recycled read buffer.
type rawFrame struct {
	pix []byte
	pts float64
}

// pump is one running ffmpeg process and the goroutine reading its output.
type pump struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	frames chan *rawFrame
	free   chan *rawFrame
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	err    error // valid once done is closed
}

// Session streams rawvideo rgb24 frames from an ffmpeg process. The pump
// goroutine is ffmpeg's read-ahead: it fills a bounded queue, and parking it
// lets pipe back-pressure stop ffmpeg itself.
type Session struct {
	cfg    Config
	logger *slog.Logger
	path   string
	probe  ProbeResult

	frameSize int

	mu     sync.Mutex
	p      *pump
	last   *rawFrame
	paused bool
	closed bool
}

func newSession(cfg Config, logger *slog.Logger, path string, probe ProbeResult) *Session {
	return &Session{
		cfg:       cfg,
		logger:    logger.With("path", path),
		path:      path,
		probe:     probe,
		frameSize: probe.Width * probe.Height * 3,
	}
}

// Metadata implements decoder.Session.
func (s *Session) Metadata() decoder.Metadata {
	return decoder.Metadata{
		Width:     s.probe.Width,
		Height:    s.probe.Height,
		FPS:       s.probe.FPS,
		Duration:  s.probe.Duration,
		StartTime: s.probe.StartTime,
	}
}

// NextFrame implements decoder.Session. It never blocks.
func (s *Session) NextFrame() (decoder.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.p == nil {
		return decoder.Frame{}, errSessionClosed
	}
	p := s.p
	if s.last != nil {
		select {
		case p.free <- s.last:
		default:
		}
		s.last = nil
	}

	select {
	case f := <-p.frames:
		return s.deliver(f), nil
	default:
	}

	select {
	case <-p.done:
		// Everything the pump produced is queued before done closes.
		select {
		case f := <-p.frames:
			return s.deliver(f), nil
		default:
		}
		return decoder.Frame{}, p.err
	default:
		return decoder.Frame{}, decoder.ErrNoFrame
	}
}

func (s *Session) deliver(f *rawFrame) decoder.Frame {
	s.last = f
	return decoder.Frame{
		Width:  s.probe.Width,
		Height: s.probe.Height,
		Stride: s.probe.Width * 3,
		Pix:    f.pix,
		PTS:    f.pts,
	}
}

// Seek restarts ffmpeg with an input seek to seconds.
func (s *Session) Seek(seconds float64) error {
	return s.restart(seconds)
}

// SetPaused implements decoder.Session.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	if !paused && s.p != nil {
		select {
		case s.p.wake <- struct{}{}:
		default:
		}
	}
}

// Close stops ffmpeg. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	p := s.p
	s.p = nil
	s.last = nil
	s.mu.Unlock()

	if p != nil {
		p.stop()
	}
	return nil
}

func (s *Session) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Session) restart(seconds float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	old := s.p
	s.p = nil
	s.last = nil
	s.mu.Unlock()

	if old != nil {
		old.stop()
	}

	p, err := s.spawn(seconds)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.stop()
		return errSessionClosed
	}
	s.p = p
	s.mu.Unlock()
	return nil
}

// firstFrameIndex is the index of the first frame at or after seconds.
func firstFrameIndex(seconds, fps float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds*fps - 1e-6))
}

func (s *Session) buildArgs(seconds float64) []string {
	args := []string{"-nostdin", "-hide_banner", "-v", "error"}
	if seconds > 0 {
		args = append(args, "-ss", strconv.FormatFloat(seconds, 'f', 6, 64))
	}
	if s.cfg.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(s.cfg.Threads))
	}
	args = append(args,
		"-i", s.path,
		"-map", "0:v:0",
		"-an", "-sn",
		"-fps_mode", "cfr",
		"-r", s.rate(),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	return args
}

// rate is the output frame rate. Forcing it makes ffmpeg duplicate or drop
// frames of variable-rate sources, so frame n is always at n/FPS.
func (s *Session) rate() string {
	if s.probe.Rate != "" {
		return s.probe.Rate
	}
	return strconv.FormatFloat(s.probe.FPS, 'f', -1, 64)
}

func (s *Session) spawn(seconds float64) (*pump, error) {
	cmd := exec.Command(s.cfg.FFmpeg, s.buildArgs(seconds)...)
	setupProcessAttributes(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.cfg.FFmpeg, err)
	}
	s.logger.Debug("ffmpeg started", "pid", cmd.Process.Pid, "seek", seconds)

	p := &pump{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		frames: make(chan *rawFrame, s.cfg.QueueDepth),
		free:   make(chan *rawFrame, s.cfg.QueueDepth+2),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(p, firstFrameIndex(seconds, s.probe.FPS))
	return p, nil
}

func (s *Session) run(p *pump, first int) {
	defer close(p.done)

	for n := first; ; n++ {
		for s.isPaused() {
			select {
			case <-p.quit:
				p.err = errSessionClosed
				return
			case <-p.wake:
			case <-time.After(50 * time.Millisecond):
			}
		}

		var f *rawFrame
		select {
		case f = <-p.free:
		default:
			f = &rawFrame{pix: make([]byte, s.frameSize)}
		}

		if _, err := io.ReadFull(p.stdout, f.pix); err != nil {
			select {
			case <-p.quit:
				p.err = errSessionClosed
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if msg := p.stderr.String(); msg != "" {
					s.logger.Debug("ffmpeg finished with output", "stderr", msg)
				}
				p.err = io.EOF
				return
			}
			p.err = fmt.Errorf("read frame: %w", err)
			return
		}
		// -ss and the output timestamps are both relative to the stream's
		// start_time, so pts stays on the same timeline as Seek and Duration.
		f.pts = float64(n) / s.probe.FPS

		select {
		case p.frames <- f:
		case <-p.quit:
			p.err = errSessionClosed
			return
		}
	}
}

// stop kills ffmpeg and reaps it. Wait is only called once the pump has
// finished reading stdout.
func (p *pump) stop() {
	close(p.quit)
	killProcess(p.cmd)
	select {
	case <-p.done:
	case <-time.After(time.Second):
	}
	_ = p.cmd.Wait()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
