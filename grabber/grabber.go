// Package grabber implements GrabberCore: the per-surface capture object
// that runs inside an arbitrary host process, performs GPU-side pixel
// readback at a bounded cadence, and publishes frames into a
// shared-memory SPSC ring for an out-of-process consumer.
//
// GrabberCore does not own its lifecycle: it is summoned by the host's
// buffer-swap call (spec §9, "host-process parasitism"). It therefore
// never spawns a goroutine and never blocks except for the bounded sleep
// inside FrameRateGate, which happens before the capture window opens.
package grabber

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ssrecorder/capturecore/internal/cursor"
	"github.com/ssrecorder/capturecore/internal/errs"
	"github.com/ssrecorder/capturecore/internal/ring"
	"github.com/ssrecorder/capturecore/internal/shmlayout"
)

const (
	envShmID = "GRABBER_SHM"
	envDebug = "GRABBER_DEBUG"

	minDimension = 2
	maxDimension = 10000
)

// Surface identifies the (display, window, surface) triple GrabberCore
// is bound to, for logging and for GrabberRegistry lookups.
type Surface struct {
	Display  string
	Window   uint64
	Drawable uint64
}

// Config holds everything GrabberCore needs beyond the GraphicsContext
// it runs against.
type Config struct {
	Surface Surface
	GC      GraphicsContext

	// Meter records frame-count/drop/duration telemetry. Defaults to a
	// no-op meter if nil.
	Meter metric.Meter

	// Registry collects this Core's Prometheus metrics (spec §6 "frame
	// counters, drop counters"). Defaults to a fresh
	// prometheus.NewRegistry() if nil. GrabberCore runs inside an
	// arbitrary host process, so this is usually merged into that
	// host's own registry rather than this module's StatusServer.
	Registry *prometheus.Registry

	// Log is the base logger; a component="grabber" attribute is added.
	// Defaults to slog.Default() if nil.
	Log *slog.Logger
}

// Core is GrabberCore: one instance per (display, window, surface)
// triple, per spec §4.4.
type Core struct {
	surface Surface
	gc      GraphicsContext
	log     *slog.Logger
	id      uuid.UUID

	debug bool

	region  *shmlayout.AttachedSegment
	main    *shmlayout.Region
	slots   []*shmlayout.AttachedSegment
	control *ring.Control

	rateGate gate

	lastWidth, lastHeight uint32
	warnedSizeQueryFailed bool
	warnedTooSmall        bool
	warnedTooLarge        bool
	glVersion             string

	frameCounter   metric.Int64Counter
	dropCounter    metric.Int64Counter
	captureLatency metric.Float64Histogram

	registry *prometheus.Registry
	metrics  *Metrics
}

// gate is the subset of rategate.Gate's contract GrabberCore depends on,
// so tests can stub rate admission without wiring real timing.
type gate interface {
	Admit() (timestampMicros int64, admitted bool)
}

// New reads GRABBER_SHM (required) and GRABBER_DEBUG (optional) from the
// environment, attaches the main shared segment and every per-slot
// segment, and validates all of invariant 1 from spec §3. Any failure
// here is ConfigurationFatal: the caller (the injection shim) must
// terminate the host process, since there is no other channel to signal
// the host (spec §4.4 "Failure semantics", §7 kind 1).
func New(cfg Config) (*Core, error) {
	if cfg.GC == nil {
		return nil, fmt.Errorf("grabber: %w: GraphicsContext is required", errs.ErrConfigurationFatal)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	log = log.With("component", "grabber", "surface", cfg.Surface, "session", id)

	shmIDStr := os.Getenv(envShmID)
	if shmIDStr == "" {
		return nil, fmt.Errorf("grabber: %w: %s is required", errs.ErrConfigurationFatal, envShmID)
	}
	shmID, err := strconv.ParseInt(shmIDStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("grabber: %w: %s=%q is not a valid id: %v", errs.ErrConfigurationFatal, envShmID, shmIDStr, err)
	}
	debug := false
	if v := os.Getenv(envDebug); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			debug = true
		}
	}

	main, err := shmlayout.Attach(int32(shmID))
	if err != nil {
		return nil, fmt.Errorf("grabber: %w: attach main segment: %v", errs.ErrConfigurationFatal, err)
	}

	region, err := shmlayout.NewRegion(main.Data)
	if err != nil {
		_ = main.Detach()
		return nil, fmt.Errorf("grabber: %w: %v", errs.ErrConfigurationFatal, err)
	}

	slots := make([]*shmlayout.AttachedSegment, region.RingSize())
	for i := uint32(0); i < region.RingSize(); i++ {
		seg, err := shmlayout.Attach(region.ShmIDFor(i))
		if err != nil {
			detachAll(main, slots[:i])
			return nil, fmt.Errorf("grabber: %w: attach slot %d segment: %v", errs.ErrConfigurationFatal, i, err)
		}
		if uint32(len(seg.Data)) != region.MaxBytes() {
			_ = seg.Detach()
			detachAll(main, slots[:i])
			return nil, fmt.Errorf("grabber: %w: slot %d segment size %d != max_bytes %d", errs.ErrConfigurationFatal, i, len(seg.Data), region.MaxBytes())
		}
		slots[i] = seg
	}

	meter := cfg.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("grabber")
	}
	frameCounter, _ := meter.Int64Counter("grabber.frames_captured")
	dropCounter, _ := meter.Int64Counter("grabber.frames_dropped")
	captureLatency, _ := meter.Float64Histogram("grabber.capture_duration_seconds")

	promRegistry := cfg.Registry
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
	}
	promMetrics := NewMetrics(promRegistry)

	if debug {
		log.Debug("debug mode enabled")
	}

	hasCursorExt := cfg.GC.CursorExtensionAvailable()
	if !hasCursorExt {
		log.Warn("cursor extension unavailable, overlay disabled")
	}

	c := &Core{
		surface:        cfg.Surface,
		gc:             cfg.GC,
		log:            log,
		id:             id,
		debug:          debug,
		region:         main,
		main:           region,
		slots:          slots,
		control:        ring.New(region),
		rateGate:       newRateGateFromHeader(region),
		frameCounter:   frameCounter,
		dropCounter:    dropCounter,
		captureLatency: captureLatency,
		registry:       promRegistry,
		metrics:        promMetrics,
	}

	log.Info("grabber created", "ring_size", region.RingSize(), "max_bytes", region.MaxBytes())
	return c, nil
}

// Registry returns the Prometheus registry this Core's metrics are
// registered against, for an embedding host to merge into its own
// /metrics surface.
func (c *Core) Registry() *prometheus.Registry { return c.registry }

func detachAll(main *shmlayout.AttachedSegment, slots []*shmlayout.AttachedSegment) {
	_ = main.Detach()
	for _, s := range slots {
		if s != nil {
			_ = s.Detach()
		}
	}
}

// Close detaches every shared segment this Core holds.
func (c *Core) Close() error {
	for _, s := range c.slots {
		if s != nil {
			_ = s.Detach()
		}
	}
	return c.region.Detach()
}

// ID returns this instance's session id, used for log/metric/trace
// correlation only.
func (c *Core) ID() uuid.UUID { return c.id }

// HotkeyInfo exposes (enabled, keycode, modifiers) atomically read from
// the header with acquire ordering, per spec §4.4.
func (c *Core) HotkeyInfo() shmlayout.HotkeyInfo {
	return c.main.HotkeyInfo()
}

// TriggerHotkey monotonically increments hotkey_counter. The consumer
// observes edges via counter comparisons, not level, per spec §4.4.
func (c *Core) TriggerHotkey() {
	c.main.IncrementHotkeyCounter()
}

// GrabFrame implements the GrabFrame() contract of spec §4.4, steps
// 1-11. It must be invoked near buffer-swap time by the host.
func (c *Core) GrabFrame(ctx context.Context) {
	if c.glVersion == "" {
		c.glVersion = c.gc.Version()
		c.log.Info("graphics API version", "version", c.glVersion)
	}

	width, height, err := c.gc.SurfaceSize()
	if err != nil {
		c.warnOnce(&c.warnedSizeQueryFailed, "surface size query failed", "error", err)
		return
	}
	if width != c.lastWidth || height != c.lastHeight {
		c.log.Info("surface size changed", "width", width, "height", height)
		c.lastWidth, c.lastHeight = width, height
	}

	c.main.SetCurrentSize(width, height)
	c.main.IncrementFrameCounter()

	stride := shmlayout.StrideFor(width)
	if width < minDimension || height < minDimension {
		c.warnOnce(&c.warnedTooSmall, "frame too small, dropping")
		c.recordDrop(ctx, "too_small")
		return
	}
	if width > maxDimension || height > maxDimension || uint64(stride)*uint64(height) > uint64(c.main.MaxBytes()) {
		c.warnOnce(&c.warnedTooLarge, "frame too large to capture, dropping")
		c.recordDrop(ctx, "too_large")
		return
	}

	slot, ok := c.control.TryReserveWrite()
	if !ok {
		c.recordDrop(ctx, "ring_full")
		return
	}

	timestamp, admitted := c.rateGate.Admit()
	if !admitted {
		c.recordDrop(ctx, "rate_limited")
		return
	}

	start := time.Now()
	flags := c.main.Flags()
	front := flags&shmlayout.FlagCaptureFront != 0

	// State save (spec §4.4 step 6). Restored on every exit path below.
	saved := c.gc.SaveState()
	defer c.gc.RestoreState(saved)

	c.gc.ApplyCaptureState(stride, front)

	desc := c.main.Descriptor(slot)
	desc.Timestamp = timestamp
	desc.Width = width
	desc.Height = height

	data := c.slots[slot].Data
	if err := c.gc.ReadPixelsBGRA(data, width, height, stride); err != nil {
		c.logTransient("glReadPixels error", err)
		c.recordDrop(ctx, "read_pixels_error")
		return
	}

	if flags&shmlayout.FlagRecordCursor != 0 && c.gc.CursorExtensionAvailable() {
		if rootX, rootY, ok := c.gc.TranslateToRoot(0, 0); ok {
			if img, ok := c.gc.CursorImage(); ok {
				cursor.Composite(data, int(stride), int(width), int(height), img, rootX, rootY)
			}
		}
	}

	c.control.CommitWrite()
	elapsed := time.Since(start).Seconds()
	c.frameCounter.Add(ctx, 1)
	c.captureLatency.Record(ctx, elapsed)
	c.metrics.FramesCaptured.Inc()
	c.metrics.CaptureLatency.Observe(elapsed)

	if err := c.gc.LastError(); err != nil {
		c.logTransient("graphics API error during capture window", err)
	}
}

// recordDrop records a dropped-frame observation on both the otel and
// Prometheus instruments, keyed by reason.
func (c *Core) recordDrop(ctx context.Context, reason string) {
	c.dropCounter.Add(ctx, 1, metric.WithAttributes(reasonAttr(reason)...))
	c.metrics.FramesDropped.WithLabelValues(reason).Inc()
}

func (c *Core) warnOnce(latch *bool, msg string, args ...any) {
	if *latch {
		return
	}
	*latch = true
	c.log.Warn(msg, args...)
}

func (c *Core) logTransient(msg string, err error) {
	if c.debug {
		c.log.Warn(msg, "error", fmt.Errorf("%w: %v", errs.ErrCaptureTransient, err))
	}
}

func reasonAttr(reason string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("reason", reason)}
}
