package engine

import "time"

// pacer maps frame timestamps to wall-clock deadlines. It is owned by the
// decode goroutine and re-anchored after every start, resume and seek.
type pacer struct {
	anchored  bool
	wallStart time.Time
	pts0      float64
}

func (p *pacer) reset() {
	p.anchored = false
}

// deadline returns when a frame with the given pts should be emitted. A
// decoder-recommended delay takes precedence over PTS deltas.
func (p *pacer) deadline(now time.Time, pts float64, delay time.Duration) time.Time {
	if !p.anchored {
		p.anchored = true
		p.wallStart = now
		p.pts0 = pts
		return now
	}
	if delay > 0 {
		return now.Add(delay)
	}
	return p.wallStart.Add(time.Duration((pts - p.pts0) * float64(time.Second)))
}
