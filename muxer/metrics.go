package muxer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the worker updates on each
// drain iteration, per SPEC_FULL §4.5/§6: per-stream queue depth,
// cumulative bytes written, current bit rate, and a counter of
// drain-loop iterations that waited on an empty queue. Grounded on
// srediag-plugin-shm's prometheus.NewCounter/MustRegister pattern
// (plugin/util_test.go).
type Metrics struct {
	PacketsWritten  *prometheus.CounterVec
	WriteDuration   *prometheus.HistogramVec
	QueueDepth      *prometheus.GaugeVec
	BytesWritten    prometheus.Gauge
	BitRate         prometheus.Gauge
	DrainEmptyPolls prometheus.Counter
}

// NewMetrics builds a Metrics set and registers it against reg. Each
// Core is handed its own registry so that multiple concurrent muxer
// sessions in one process don't collide on metric names; StatusServer
// serves whichever registry it was configured with on /metrics.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		PacketsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "muxer_packets_written_total",
			Help: "Packets written to the container output, by stream index.",
		}, []string{"stream"}),
		WriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "muxer_write_duration_seconds",
			Help: "WriteInterleaved call latency, by stream index.",
		}, []string{"stream"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "muxer_queue_depth",
			Help: "Queued-but-unwritten packets, by stream index.",
		}, []string{"stream"}),
		BytesWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "muxer_bytes_written",
			Help: "Cumulative bytes written to the container output (file position plus buffered).",
		}),
		BitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "muxer_bit_rate",
			Help: "Instantaneous output bit rate in bits per second.",
		}),
		DrainEmptyPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "muxer_drain_empty_polls_total",
			Help: "Worker iterations that slept because a not-done stream had no packet queued.",
		}),
	}
	reg.MustRegister(m.PacketsWritten, m.WriteDuration, m.QueueDepth, m.BytesWritten, m.BitRate, m.DrainEmptyPolls)
	return m
}
