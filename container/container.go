// Package container defines the ContainerWriter boundary MuxerCore drives:
// a thin, abstracted collaborator wrapping an external codec/mux library,
// per spec §4.6. concrete implementations live in subpackages (tswriter).
package container

import "errors"

// ErrWrite classifies header/trailer/packet write failures as MuxerFatal
// per spec §7 kind 3: the worker sets error_occurred and exits, the
// destructor observes it.
var ErrWrite = errors.New("container: write failed")

// ErrOpen classifies format-not-found, context-allocation, and open
// failures as MuxerOperational per spec §7 kind 4: raised synchronously
// from construction, the caller must free any partial state.
var ErrOpen = errors.New("container: open failed")

// TimeBase is a rational number of seconds per tick, e.g. {1, 90000} for
// the 90kHz MPEG clock or {1, 48000} for 48kHz audio.
type TimeBase struct {
	Num int64
	Den int64
}

// Seconds converts a tick count in this time base to seconds.
func (tb TimeBase) Seconds(ticks int64) float64 {
	return float64(ticks) * float64(tb.Num) / float64(tb.Den)
}

// Rescale converts a tick count from this time base to dst, per spec §4.5
// step 4 ("rescale the packet's pts and dts ... from the encoder's codec
// time-base to the stream's container time-base").
func (tb TimeBase) Rescale(ticks int64, dst TimeBase) int64 {
	// ticks * (tb.Num/tb.Den) / (dst.Num/dst.Den)
	//   = ticks * tb.Num * dst.Den / (tb.Den * dst.Num)
	num := ticks * tb.Num * dst.Den
	den := tb.Den * dst.Num
	if den == 0 {
		return 0
	}
	// Round to nearest rather than truncate, matching typical rescale
	// semantics (avoids systematic downward timestamp drift).
	if (num < 0) != (den < 0) {
		return (num - den/2) / den
	}
	return (num + den/2) / den
}

// StreamHandle identifies a container-level stream created by NewStream.
type StreamHandle int

// Packet is a single packet submitted for interleaved write, already in
// the container's output time base for the stream it targets.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	HasDTS      bool
	KeyFrame    bool
	Data        []byte
}

// CodecParameters describes an elementary stream at NewStream time. Kind
// is a container-specific stream-type tag (e.g. tswriter's StreamType).
type CodecParameters struct {
	Kind      uint8
	TimeBase  TimeBase
	ExtraData []byte
}

// Writer is the ContainerWriter collaborator spec §4.6 enumerates. It must
// be safe to call WriteInterleaved repeatedly from MuxerCore's single
// worker goroutine; no other method is called concurrently with it.
type Writer interface {
	// NewStream creates a new container-level stream for the given codec
	// parameters, returning a handle used by subsequent packet writes.
	NewStream(params CodecParameters) (StreamHandle, error)

	// WriteHeader finalizes the stream table and emits any header
	// structures (e.g. PAT/PMT) the format requires. Called once, after
	// every stream has been created.
	WriteHeader() error

	// WriteInterleaved submits one packet for output. The Data slice is
	// considered handed off afterward: the caller must not reuse it
	// (spec §9 "packet ownership in the muxer").
	WriteInterleaved(pkt Packet) error

	// WriteTrailer emits trailing structures. Errors here are logged but
	// swallowed by MuxerCore's teardown (spec §7 kind 3).
	WriteTrailer() error

	// Close releases any resources (file handles, internal buffers)
	// associated with the output. Safe to call after a failed Open.
	Close() error

	// FilePos and BufferedBytes report the writer's current output
	// offset and any bytes queued but not yet flushed to the
	// destination, per spec §4.5 step 7 (`total_bytes = file_pos +
	// buffered_bytes`).
	FilePos() int64
	BufferedBytes() int64
}

// OpenFunc constructs and opens a Writer for the given output path. It is
// the "guess_format / allocate_context / open_output" sequence of spec
// §4.6 collapsed into a single factory call, since Go has no separate
// format-registry step: a concrete Writer (tswriter.New) already knows
// its own container format.
type OpenFunc func(path string) (Writer, error)
