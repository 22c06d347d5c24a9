package playback

import (
	"sync"

	"github.com/crittr/crittr/internal/media"
)

// EventKind identifies a controller event.
type EventKind int

const (
	// TimeChanged carries the new canonical PTS.
	TimeChanged EventKind = iota
	// DurationChanged carries a new duration, known or still growing.
	DurationChanged
	// FrameReady carries a frame to display.
	FrameReady
	// Ended reports end of stream or a decoder failure.
	Ended
)

// String returns the event name
func (k EventKind) String() string {
	switch k {
	case TimeChanged:
		return "timeChanged"
	case DurationChanged:
		return "durationChanged"
	case FrameReady:
		return "frameReady"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is published on Controller.Events. For a committed frame the
// TimeChanged event always precedes its FrameReady event.
type Event struct {
	Kind     EventKind
	PTS      float64
	Duration media.Duration
	Frame    media.FrameBuffer
}

// eventQueue is an unbounded FIFO. Pushing never blocks, so control calls
// cannot deadlock against a consumer that is also the caller; the engine
// forwarder applies its own back-pressure through waitForSpace.
type eventQueue struct {
	mu    sync.Mutex
	items []Event
	ready chan struct{}
	space chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
	}
}

func (q *eventQueue) push(evs ...Event) {
	q.mu.Lock()
	q.items = append(q.items, evs...)
	q.mu.Unlock()
	signal(q.ready)
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	ev := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	signal(q.space)
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// waitForSpace blocks while the queue holds limit or more events.
func (q *eventQueue) waitForSpace(limit int, cancel <-chan struct{}) bool {
	for q.len() >= limit {
		select {
		case <-q.space:
		case <-cancel:
			return false
		}
	}
	return true
}

// dispatch moves queued events to out until done is closed.
func (q *eventQueue) dispatch(out chan<- Event, done <-chan struct{}) {
	for {
		ev, ok := q.pop()
		if !ok {
			select {
			case <-q.ready:
				continue
			case <-done:
				return
			}
		}
		select {
		case out <- ev:
		case <-done:
			return
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
