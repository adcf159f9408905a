// Package status implements StatusServer: the HTTP surface a recording
// host process exposes alongside its muxers for operational visibility —
// liveness/readiness, Prometheus metrics, and a JSON snapshot of every
// live muxer session — per SPEC_FULL §6 (a domain addition; spec.md
// itself has no network surface, this is purely local-host diagnostics,
// not network streaming).
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ssrecorder/capturecore/muxer/registry"
)

// Config configures a StatusServer.
type Config struct {
	Addr     string
	Registry *registry.Registry
	Log      *slog.Logger

	// GoroutineThreshold fails the liveness check once the process
	// exceeds it, catching a goroutine leak in a long-running host
	// process before it exhausts memory. Defaults to 10000.
	GoroutineThreshold int

	// Metrics is the Prometheus registry served on /metrics (spec §6).
	// Typically the same registry passed to muxer.Config.Registry, so
	// the worker's counters/gauges land here too. Defaults to a fresh
	// prometheus.NewRegistry() if nil, in which case /metrics only
	// exposes the process gauges below.
	Metrics *prometheus.Registry
}

// Server serves /healthz, /metrics, and /debug/streams for a recording
// host process, the same three-endpoint shape the teacher's
// distribution.Server exposes for its own streams (list + per-key
// debug), minus anything that depends on a live network transport.
type Server struct {
	cfg    Config
	log    *slog.Logger
	health healthcheck.Handler
	srv    *http.Server
	proc   *process.Process
}

// NewServer validates cfg and builds the health checks and route table.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("status: Addr is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("status: Registry is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.GoroutineThreshold == 0 {
		cfg.GoroutineThreshold = 10000
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(cfg.GoroutineThreshold))

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("status: process self-lookup failed, /debug/streams process stats will be zero", "error", err)
	}

	if cfg.Metrics == nil {
		cfg.Metrics = prometheus.NewRegistry()
	}
	cfg.Metrics.MustRegister(newProcessCollector(proc))

	s := &Server{cfg: cfg, log: log.With("component", "muxer-status"), health: health, proc: proc}
	return s, nil
}

// processCollector reports RSS and CPU percent for the host process on
// every /metrics scrape, per spec §6 ("process-level gauges from
// github.com/shirou/gopsutil/v3"). Implemented as a Collector rather
// than cached gauges so each scrape reflects the process's current
// state instead of whatever handleDebugStreams last computed.
type processCollector struct {
	proc   *process.Process
	rss    *prometheus.Desc
	cpuPct *prometheus.Desc
}

func newProcessCollector(proc *process.Process) *processCollector {
	return &processCollector{
		proc:   proc,
		rss:    prometheus.NewDesc("process_resident_memory_bytes", "Resident memory size in bytes.", nil, nil),
		cpuPct: prometheus.NewDesc("process_cpu_percent", "CPU usage percent since process start.", nil, nil),
	}
}

func (c *processCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rss
	ch <- c.cpuPct
}

func (c *processCollector) Collect(ch chan<- prometheus.Metric) {
	if c.proc == nil {
		return
	}
	if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(mem.RSS))
	}
	if cpu, err := c.proc.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpuPct, prometheus.GaugeValue, cpu)
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.health.LiveEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/streams", s.handleDebugStreams)
	return mux
}

type sessionView struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	StartedAt string  `json:"startedAt"`
	UptimeMs  int64   `json:"uptimeMs"`
}

type processStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
}

type debugSnapshot struct {
	Sessions []sessionView `json:"sessions"`
	Process  processStats  `json:"process"`
}

func (s *Server) handleDebugStreams(w http.ResponseWriter, _ *http.Request) {
	sessions := s.cfg.Registry.List()
	views := make([]sessionView, 0, len(sessions))
	now := time.Now()
	for _, sess := range sessions {
		views = append(views, sessionView{
			ID:        sess.ID.String(),
			Path:      sess.Path,
			StartedAt: sess.StartedAt.Format(time.RFC3339),
			UptimeMs:  now.Sub(sess.StartedAt).Milliseconds(),
		})
	}

	var stats processStats
	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
			stats.RSSBytes = mem.RSS
		}
	}

	writeJSON(w, http.StatusOK, debugSnapshot{Sessions: views, Process: stats})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("status: encoding JSON response", "error", err)
	}
}

// Start launches the HTTP status server and blocks until ctx is
// cancelled or the listener returns a fatal error, mirroring the
// teacher's Start(ctx) + context.AfterFunc graceful-shutdown shape.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.routes(),
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.log.Info("status server listening", "addr", s.cfg.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
