package grabber

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors GrabFrame updates, per
// SPEC_FULL §6 ("frame counters, drop counters ... for the host
// process"). GrabberCore runs inside an arbitrary host process (spec §1
// "host-process parasitism"), so unlike MuxerCore's Metrics these are not
// normally scraped by this module's own StatusServer; Config.Registry
// lets an embedding host wire them into its own /metrics regardless.
type Metrics struct {
	FramesCaptured prometheus.Counter
	FramesDropped  *prometheus.CounterVec
	CaptureLatency prometheus.Histogram
}

// NewMetrics builds and registers a Metrics set against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grabber_frames_captured_total",
			Help: "Frames successfully published to the ring buffer.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grabber_frames_dropped_total",
			Help: "Frames dropped during capture, by reason.",
		}, []string{"reason"}),
		CaptureLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "grabber_capture_duration_seconds",
			Help: "Time spent in the save/apply/read/restore capture window.",
		}),
	}
	reg.MustRegister(m.FramesCaptured, m.FramesDropped, m.CaptureLatency)
	return m
}
