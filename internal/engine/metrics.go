package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts decode engine activity. No per-session labels.
type Metrics struct {
	// FramesDelivered counts frames emitted by the decode loop.
	FramesDelivered prometheus.Counter
	// FramesDropped counts frames discarded before delivery, by reason.
	FramesDropped *prometheus.CounterVec
	// DecodeFailures counts sessions ended by a decoder error.
	DecodeFailures prometheus.Counter
	// Seeks counts precise seeks, by result (hit, fallback, timeout, error).
	Seeks *prometheus.CounterVec
	// PreviewFailures counts scrub previews that produced no frame.
	PreviewFailures prometheus.Counter
}

// NewMetrics registers the engine metrics with reg. A nil reg uses a
// private registry, which keeps tests and multiple engines independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		FramesDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "crittr_engine_frames_delivered_total",
			Help: "Total number of frames emitted by the decode loop.",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crittr_engine_frames_dropped_total",
			Help: "Total number of decoded frames dropped before delivery, by reason.",
		}, []string{"reason"}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "crittr_engine_decode_failures_total",
			Help: "Total number of decode sessions ended by a decoder error.",
		}),
		Seeks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crittr_engine_seeks_total",
			Help: "Total number of precise seeks, by result.",
		}, []string{"result"}),
		PreviewFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "crittr_engine_preview_failures_total",
			Help: "Total number of scrub preview requests that produced no frame.",
		}),
	}
}

const (
	dropMalformed = "malformed"
	dropStale     = "stale"

	seekHit      = "hit"
	seekFallback = "fallback"
	seekTimeout  = "timeout"
	seekError    = "error"
)
