// Package muxer implements MuxerCore: a dedicated worker that drains N
// concurrent encoder output queues, selects the next packet to write by
// a monotonic-timestamp tie-break, rescales timestamps across
// time-bases, and drives a ContainerWriter with correct shutdown
// semantics across error paths, per spec §4.5.
package muxer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssrecorder/capturecore/container"
	"github.com/ssrecorder/capturecore/internal/errs"
	"github.com/ssrecorder/capturecore/internal/queue"
)

// pollInterval is the worker's sleep when a stream that is not yet done
// has no packet queued, per spec §4.5 step 3 and §5 "coarse polling".
const pollInterval = 10 * time.Millisecond

// Encoder is the subset of an encoder's contract MuxerCore depends on for
// shutdown only: a cancellation request that causes the encoder to drain
// and exit, eventually calling EndStream on its stream (spec §5
// "Cancellation").
type Encoder interface {
	Stop()
}

// Config configures a new Core.
type Config struct {
	// Open constructs and opens the ContainerWriter for OutputPath. It
	// is retried with bounded backoff (spec §4.6's open_output, resilient
	// per a DOMAIN addition not present in the original).
	Open container.OpenFunc

	OutputPath string

	Tracer trace.Tracer
	Meter  metric.Meter
	Log    *slog.Logger

	// Registry collects this Core's Prometheus metrics (spec §4.5
	// AMBIENT "Metrics", §6 GET /metrics). Defaults to a fresh
	// prometheus.NewRegistry() if nil; pass the same registry to
	// status.Config.Registry to serve it over HTTP.
	Registry *prometheus.Registry
}

type streamState struct {
	handle  container.StreamHandle
	queue   *queue.Queue
	encoder Encoder

	codecTimeBase     container.TimeBase
	containerTimeBase container.TimeBase
}

// Core is MuxerCore: the lifecycle object spec §4.5 describes.
type Core struct {
	log    *slog.Logger
	tracer trace.Tracer
	id     uuid.UUID

	writer     container.Writer
	outputPath string

	streams []*streamState

	started       bool
	headerWritten bool
	errorOccurred atomic.Bool

	shared sharedStats

	workerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error

	packetCounter metric.Int64Counter
	writeLatency  metric.Float64Histogram

	registry *prometheus.Registry
	metrics  *Metrics
}

// New allocates a format context and opens the output path for write
// (spec §4.5 step 1), retrying the open with bounded exponential backoff
// since transient filesystem conditions (a not-yet-mounted output
// volume) shouldn't be fatal on the first attempt.
func New(cfg Config) (*Core, error) {
	if cfg.Open == nil {
		return nil, fmt.Errorf("muxer: %w: Open is required", errs.ErrConfigurationFatal)
	}
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("muxer: %w: OutputPath is required", errs.ErrConfigurationFatal)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	log = log.With("component", "muxer", "session", id, "path", cfg.OutputPath)

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("muxer")
	}
	meter := cfg.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("muxer")
	}

	var writer container.Writer
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	err := backoff.Retry(func() error {
		w, err := cfg.Open(cfg.OutputPath)
		if err != nil {
			return err
		}
		writer = w
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("muxer: %w: %v", errs.ErrMuxerOperational, err)
	}

	packetCounter, _ := meter.Int64Counter("muxer.packets_written")
	writeLatency, _ := meter.Float64Histogram("muxer.write_duration_seconds")

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Core{
		log:           log,
		tracer:        tracer,
		id:            id,
		writer:        writer,
		outputPath:    cfg.OutputPath,
		packetCounter: packetCounter,
		writeLatency:  writeLatency,
		workerDone:    make(chan struct{}),
		registry:      registry,
		metrics:       NewMetrics(registry),
	}
	return c, nil
}

// Registry returns the Prometheus registry this Core's metrics are
// registered against, for wiring into a status.Server.
func (c *Core) Registry() *prometheus.Registry { return c.registry }

// ID returns this instance's session id.
func (c *Core) ID() uuid.UUID { return c.id }

// CreateStream creates a new container-level stream for params, per spec
// §4.5 step 2.
func (c *Core) CreateStream(params container.CodecParameters, codecTimeBase container.TimeBase) (int, error) {
	if c.started {
		return 0, fmt.Errorf("muxer: %w: CreateStream called after Start", errs.ErrConfigurationFatal)
	}
	handle, err := c.writer.NewStream(params)
	if err != nil {
		return 0, fmt.Errorf("muxer: %w: %v", errs.ErrMuxerOperational, err)
	}
	s := &streamState{
		handle:            handle,
		queue:             queue.New(),
		codecTimeBase:     codecTimeBase,
		containerTimeBase: params.TimeBase,
	}
	c.streams = append(c.streams, s)
	return len(c.streams) - 1, nil
}

// RegisterEncoder binds an encoder reference to stream i, used only for
// shutdown (spec §4.5 step 3).
func (c *Core) RegisterEncoder(i int, encoder Encoder) error {
	if i < 0 || i >= len(c.streams) {
		return fmt.Errorf("muxer: %w: stream index %d out of range", errs.ErrConfigurationFatal, i)
	}
	c.streams[i].encoder = encoder
	return nil
}

// Start asserts every stream has a registered encoder, writes the
// container header, and spawns the worker (spec §4.5 step 4).
func (c *Core) Start(ctx context.Context) error {
	if c.started {
		return fmt.Errorf("muxer: %w: already started", errs.ErrConfigurationFatal)
	}
	if len(c.streams) == 0 {
		return fmt.Errorf("muxer: %w: no streams created", errs.ErrConfigurationFatal)
	}
	for i, s := range c.streams {
		if s.encoder == nil {
			return fmt.Errorf("muxer: %w: stream %d has no registered encoder", errs.ErrConfigurationFatal, i)
		}
	}

	if err := c.writer.WriteHeader(); err != nil {
		return fmt.Errorf("muxer: %w: write header: %v", errs.ErrMuxerFatal, err)
	}
	c.headerWritten = true
	c.started = true

	go c.run(ctx)
	c.log.Info("muxer started", "streams", len(c.streams))
	return nil
}

// AddPacket enqueues env on stream i's queue. Callable only after Start
// (spec §4.5 step 5).
func (c *Core) AddPacket(i int, env *queue.Envelope) error {
	if !c.started {
		return fmt.Errorf("muxer: %w: AddPacket called before Start", errs.ErrConfigurationFatal)
	}
	if i < 0 || i >= len(c.streams) {
		return fmt.Errorf("muxer: %w: stream index %d out of range", errs.ErrConfigurationFatal, i)
	}
	env.StreamIndex = i
	env.Owned = true
	c.streams[i].queue.PushBack(env)
	return nil
}

// EndStream marks stream i as done: the encoder will enqueue no more
// packets for it (spec §3 invariant 4).
func (c *Core) EndStream(i int) error {
	if i < 0 || i >= len(c.streams) {
		return fmt.Errorf("muxer: %w: stream index %d out of range", errs.ErrConfigurationFatal, i)
	}
	c.streams[i].queue.End()
	return nil
}

// Finish signals every stream to finish draining and blocks until the
// worker has drained all of them and exited, then writes the trailer and
// closes the output (spec §4.5 step 6, §8 scenario 6). If the context
// passed to Start has been cancelled, the worker has already returned
// and packets still queued at that point are not written.
func (c *Core) Finish() error {
	if !c.started {
		return c.teardown()
	}
	for i := range c.streams {
		c.streams[i].queue.End()
	}
	<-c.workerDone
	return c.teardown()
}

// Stop requests cancellation of every registered encoder, waits for the
// worker to observe the resulting drain, then tears down exactly as
// Finish does (spec §4.5 step 7, the abrupt-shutdown / destructor path).
func (c *Core) Stop() error {
	if !c.started {
		return c.teardown()
	}
	for _, s := range c.streams {
		if s.encoder != nil {
			s.encoder.Stop()
		}
		s.queue.End()
	}
	<-c.workerDone
	return c.teardown()
}

// ErrorOccurred reports whether the worker observed an irrecoverable
// write error (spec §4.5 "Termination invariant").
func (c *Core) ErrorOccurred() bool {
	return c.errorOccurred.Load()
}

// Shared returns the current cumulative byte count and instantaneous bit
// rate (spec §4.5 step 7).
func (c *Core) Shared() (totalBytes int64, bitRate float64) {
	return c.shared.Snapshot()
}

// teardown writes the trailer (if a header was ever written), closes the
// output, and is idempotent: destroying a Core that never started writes
// no trailer and still releases the writer (spec §8 P8).
func (c *Core) teardown() error {
	c.closeOnce.Do(func() {
		if c.headerWritten {
			if err := c.writer.WriteTrailer(); err != nil {
				c.log.Warn("trailer write failed, swallowing", "error", err)
			}
		}
		c.closeErr = c.writer.Close()
	})
	return c.closeErr
}

// run is the worker drain loop (spec §4.5 "Worker algorithm").
func (c *Core) run(ctx context.Context) {
	defer close(c.workerDone)

	for {
		if ctx.Err() != nil {
			return
		}

		c.reportQueueDepths()

		idx, env := c.selectNext()
		if idx < 0 {
			return // every stream is done and empty: normal termination
		}
		if env == nil {
			c.metrics.DrainEmptyPolls.Inc()
			time.Sleep(pollInterval) // a not-done stream has nothing queued yet
			continue
		}

		if err := c.writeEnvelope(ctx, idx, env); err != nil {
			c.log.Error("packet write failed", "stream", idx, "error", err)
			c.errorOccurred.Store(true)
			return
		}
	}
}

// reportQueueDepths publishes each stream's current queue depth, per
// spec §4.5 AMBIENT "Metrics".
func (c *Core) reportQueueDepths() {
	for i, s := range c.streams {
		c.metrics.QueueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(s.queue.Size()))
	}
}

// selectNext scans every stream and returns the index and front packet
// of the candidate with the lowest presentation time in seconds, per
// spec §4.5 steps 1-3. A candidate is any stream that is not yet done,
// or still has queued packets. Returns (-1, nil) when no stream is a
// candidate (every stream drained: normal termination). Returns a valid
// index with a nil envelope when some candidate is not done but has an
// empty queue, so the caller should back off and retry (spec §4.5 step
// 3): that stream's next packet may be earlier than any packet already
// queued elsewhere.
//
// Adaptation note: container.Writer exposes no per-stream running clock,
// so pts_i is the waiting packet's own timestamp. Because a not-done
// stream with nothing queued is waited for rather than skipped, ranking
// by the next unwritten packet on each stream yields a non-decreasing
// overall write order (spec §8 P6) as long as each stream's own
// timestamps are non-decreasing.
func (c *Core) selectNext() (int, *queue.Envelope) {
	best := -1
	var bestPTS float64
	havePTS := false
	anyCandidate := false

	for i, s := range c.streams {
		if s.queue.Drained() {
			continue
		}
		anyCandidate = true

		e := s.queue.PeekFront()
		if e == nil {
			return i, nil
		}
		pts := s.codecTimeBase.Seconds(e.PTS)
		if !havePTS || pts < bestPTS {
			best, bestPTS, havePTS = i, pts, true
		}
	}

	if !anyCandidate {
		return -1, nil
	}
	if !havePTS {
		return 0, nil
	}
	return best, c.streams[best].queue.PopFront()
}

// writeEnvelope rescales env's timestamps into the stream's container
// time base, submits it to the writer, flips ownership, and updates the
// shared byte/bit-rate statistics (spec §4.5 steps 4-7).
func (c *Core) writeEnvelope(ctx context.Context, idx int, env *queue.Envelope) error {
	ctx, span := c.tracer.Start(ctx, "muxer.write_packet")
	defer span.End()

	start := time.Now()
	s := c.streams[idx]

	pts := s.codecTimeBase.Rescale(env.PTS, s.containerTimeBase)
	var dts int64
	if env.HasDTS {
		dts = s.codecTimeBase.Rescale(env.DTS, s.containerTimeBase)
	}

	pkt := container.Packet{
		StreamIndex: idx,
		PTS:         pts,
		DTS:         dts,
		HasDTS:      env.HasDTS,
		Data:        env.Payload,
	}
	if err := c.writer.WriteInterleaved(pkt); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMuxerFatal, err)
	}
	env.Owned = false // ownership transferred to the container writer

	c.shared.update(c.writer.FilePos(), c.writer.BufferedBytes(), s.codecTimeBase.Seconds(env.PTS))
	totalBytes, bitRate := c.shared.Snapshot()

	elapsed := time.Since(start).Seconds()
	label := strconv.Itoa(idx)
	c.packetCounter.Add(ctx, 1)
	c.writeLatency.Record(ctx, elapsed)
	c.metrics.PacketsWritten.WithLabelValues(label).Inc()
	c.metrics.WriteDuration.WithLabelValues(label).Observe(elapsed)
	c.metrics.BytesWritten.Set(float64(totalBytes))
	c.metrics.BitRate.Set(bitRate)
	return nil
}
