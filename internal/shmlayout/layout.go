// Package shmlayout defines the byte-exact shared-memory layout shared by
// GrabberCore and its out-of-process consumer, and the memory-order
// contract for reading and writing it.
//
// The layout mirrors GLInjectHeader/GLInjectFrameInfo from the original
// SimpleScreenRecorder glinject core: a fixed-offset header followed by
// ring_buffer_size FrameDescriptor entries, each paired with its own
// per-slot shared segment of exactly max_bytes bytes.
package shmlayout

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// MaxRingBufferSize bounds ring_buffer_size (1 ≤ N ≤ 1000).
const MaxRingBufferSize = 1000

// MaxBytesLimit bounds max_bytes (≤ 2^30).
const MaxBytesLimit = 1 << 30

// Flag bits for Header.Flags.
const (
	FlagCaptureFront uint32 = 1 << 0
	FlagLimitFPS     uint32 = 1 << 1
	FlagRecordCursor uint32 = 1 << 2
)

// NewRegionForTest builds a Region over a freshly-allocated buffer with
// ring_buffer_size and max_bytes pre-populated, the way a real consumer
// would size and initialize the segment before the grabber ever attaches
// to it. It exists so other packages' tests can exercise Region/ring
// logic without a real SysV attach.
func NewRegionForTest(buf []byte, ringSize, maxBytes uint32) (*Region, error) {
	if uint64(len(buf)) < uint64(HeaderSize) {
		return nil, fmt.Errorf("shmlayout: segment too small for header")
	}
	r := &Region{buf: buf}
	r.header().RingBufferSize = ringSize
	r.header().MaxBytes = maxBytes
	return NewRegion(buf)
}

// Header is the fixed-offset main-segment header. Field order and width
// match the wire contract exactly; do not reorder or resize fields.
type Header struct {
	RingBufferSize uint32
	MaxBytes       uint32
	TargetFPS      uint32
	Flags          uint32
	CurrentWidth   uint32
	CurrentHeight  uint32
	FrameCounter   uint64
	ReadPos        uint32
	WritePos       uint32
	HotkeyEnabled  uint32
	HotkeyKeycode  uint32
	HotkeyModifier uint32
	_              uint32 // padding to 8-byte align HotkeyCounter
	HotkeyCounter  uint64
}

// HeaderSize is the on-wire size of Header.
const HeaderSize = unsafe.Sizeof(Header{})

// FrameDescriptor is one ring-buffer slot's metadata, stored inline in the
// main segment immediately after Header.
type FrameDescriptor struct {
	ShmID     int32
	Width     uint32
	Height    uint32
	Timestamp int64
}

// FrameDescriptorSize is the on-wire size of FrameDescriptor.
const FrameDescriptorSize = unsafe.Sizeof(FrameDescriptor{})

// MainSegmentSize returns the required main-segment size for a ring of n
// slots, per invariant 1: sizeof(Header) + N*sizeof(FrameDescriptor).
func MainSegmentSize(n uint32) uint64 {
	return uint64(HeaderSize) + uint64(n)*uint64(FrameDescriptorSize)
}

// StrideFor rounds width*4 up to a 16-byte pack-alignment stride.
func StrideFor(width uint32) uint32 {
	return growAlign16(width * 4)
}

func growAlign16(v uint32) uint32 {
	return (v + 15) &^ 15
}

// Region wraps an attached main shared-memory segment and gives typed,
// ordering-correct access to Header and the FrameDescriptor array.
type Region struct {
	buf []byte
	n   uint32
}

// NewRegion validates buf against the header it contains and wraps it.
// buf must already hold a fully-initialized Header (as written by the
// consumer that created the segment) at offset 0.
func NewRegion(buf []byte) (*Region, error) {
	if uint64(len(buf)) < uint64(HeaderSize) {
		return nil, fmt.Errorf("shmlayout: segment too small for header (%d < %d)", len(buf), HeaderSize)
	}
	r := &Region{buf: buf}
	n := r.header().RingBufferSize
	if n == 0 || n > MaxRingBufferSize {
		return nil, fmt.Errorf("shmlayout: ring_buffer_size %d out of range [1,%d]", n, MaxRingBufferSize)
	}
	want := MainSegmentSize(n)
	if uint64(len(buf)) != want {
		return nil, fmt.Errorf("shmlayout: main segment size %d, want %d for %d slots", len(buf), want, n)
	}
	maxBytes := r.header().MaxBytes
	if maxBytes == 0 || maxBytes > MaxBytesLimit {
		return nil, fmt.Errorf("shmlayout: max_bytes %d out of range (0,%d]", maxBytes, MaxBytesLimit)
	}
	r.n = n
	return r, nil
}

func (r *Region) header() *Header {
	return (*Header)(unsafe.Pointer(&r.buf[0]))
}

// RingSize returns the validated ring_buffer_size.
func (r *Region) RingSize() uint32 { return r.n }

// MaxBytes returns the validated max_bytes.
func (r *Region) MaxBytes() uint32 {
	return atomic.LoadUint32(&r.header().MaxBytes)
}

// TargetFPS returns the configured target_fps (0 = unthrottled).
func (r *Region) TargetFPS() uint32 {
	return atomic.LoadUint32(&r.header().TargetFPS)
}

// Flags returns the flags bitfield.
func (r *Region) Flags() uint32 {
	return atomic.LoadUint32(&r.header().Flags)
}

// SetFlags stores the flags bitfield with release ordering. The consumer
// owns this field; it is set once before the grabber attaches and may be
// toggled later (e.g. a hotkey-driven cursor-recording toggle).
func (r *Region) SetFlags(flags uint32) {
	atomic.StoreUint32(&r.header().Flags, flags)
}

// SetCurrentSize stores the last-observed surface size with release
// ordering relative to subsequent reads.
func (r *Region) SetCurrentSize(width, height uint32) {
	h := r.header()
	atomic.StoreUint32(&h.CurrentWidth, width)
	atomic.StoreUint32(&h.CurrentHeight, height)
}

// IncrementFrameCounter atomically increments frame_counter and returns
// the new value, with release ordering (§4.4 step 2: "increment
// frame_counter (release-ordered)").
func (r *Region) IncrementFrameCounter() uint64 {
	return atomic.AddUint64(&r.header().FrameCounter, 1)
}

// FrameCounter loads frame_counter with acquire ordering.
func (r *Region) FrameCounter() uint64 {
	return atomic.LoadUint64(&r.header().FrameCounter)
}

// ReadPos loads read_pos with acquire ordering.
func (r *Region) ReadPos() uint32 { return atomic.LoadUint32(&r.header().ReadPos) }

// WritePos loads write_pos with acquire ordering.
func (r *Region) WritePos() uint32 { return atomic.LoadUint32(&r.header().WritePos) }

// StoreReadPos stores read_pos with release ordering.
func (r *Region) StoreReadPos(v uint32) { atomic.StoreUint32(&r.header().ReadPos, v) }

// StoreWritePos stores write_pos with release ordering.
func (r *Region) StoreWritePos(v uint32) { atomic.StoreUint32(&r.header().WritePos, v) }

// HotkeyInfo is the (enabled, keycode, modifiers) tuple read atomically.
type HotkeyInfo struct {
	Enabled   bool
	Keycode   uint32
	Modifiers uint32
}

// HotkeyInfo loads the hotkey configuration with acquire ordering.
func (r *Region) HotkeyInfo() HotkeyInfo {
	h := r.header()
	return HotkeyInfo{
		Enabled:   atomic.LoadUint32(&h.HotkeyEnabled) != 0,
		Keycode:   atomic.LoadUint32(&h.HotkeyKeycode),
		Modifiers: atomic.LoadUint32(&h.HotkeyModifier),
	}
}

// IncrementHotkeyCounter atomically increments hotkey_counter. The
// consumer observes edges via counter comparisons, not level.
func (r *Region) IncrementHotkeyCounter() uint64 {
	return atomic.AddUint64(&r.header().HotkeyCounter, 1)
}

// HotkeyCounter loads hotkey_counter with acquire ordering.
func (r *Region) HotkeyCounter() uint64 {
	return atomic.LoadUint64(&r.header().HotkeyCounter)
}

// Descriptor returns a pointer to the FrameDescriptor for slot index i.
// i must be < RingSize().
func (r *Region) Descriptor(i uint32) *FrameDescriptor {
	off := uint64(HeaderSize) + uint64(i)*uint64(FrameDescriptorSize)
	return (*FrameDescriptor)(unsafe.Pointer(&r.buf[off]))
}

// ShmIDFor returns the per-slot segment identifier recorded by the
// consumer for slot i.
func (r *Region) ShmIDFor(i uint32) int32 {
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&r.Descriptor(i).ShmID)))
}
