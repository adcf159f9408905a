// Package tswriter implements an MPEG transport stream ContainerWriter,
// the concrete output format for MuxerCore (spec §4.6). It packetizes
// PES-wrapped elementary streams into 188-byte TS packets with PAT/PMT
// repeated on a configurable interval, grounded on the same CRC32 and
// section layout internal/mpegts demuxes, reversed into a writer.
package tswriter

import (
	"fmt"
	"io"
	"os"

	"github.com/valyala/bytebufferpool"

	"github.com/ssrecorder/capturecore/container"
)

const (
	packetSize = 188
	syncByte   = 0x47

	pidPAT = 0x0000
	pidPMT = 0x1000

	tableIDPAT = 0x00
	tableIDPMT = 0x02

	// StreamTypeH264 and StreamTypeAAC are the PMT stream_type values for
	// the two elementary stream kinds this writer expects in practice;
	// callers may pass any MPEG-2-registered stream_type byte.
	StreamTypeH264 = 0x1B
	StreamTypeAAC  = 0x0F
)

// Writer is a container.Writer backed by an MPEG transport stream file.
type Writer struct {
	f   *os.File
	pos int64

	streams   []streamState
	patPeriod int // packets between PAT/PMT repeats
	sincePAT  int

	headerWritten bool
	cc            map[uint16]uint8 // continuity counter per PID
}

type streamState struct {
	pid       uint16
	params    container.CodecParameters
	streamID  uint8 // PES stream_id
}

// Option configures a Writer at construction.
type Option func(*Writer)

// WithPATPeriod sets how many TS packets elapse between PAT/PMT repeats.
// Defaults to 40. The repeat is emitted after the PES packet that
// reaches the period, never in the middle of one.
func WithPATPeriod(packets int) Option {
	return func(w *Writer) {
		if packets > 0 {
			w.patPeriod = packets
		}
	}
}

// New opens path for write and returns a Writer. It implements the
// guess_format/allocate_context/open_output sequence of spec §4.6 as a
// single call, since this writer only ever targets one format.
func New(path string, opts ...Option) (container.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("tswriter: %w: open %s: %v", container.ErrOpen, path, err)
	}
	w := &Writer{
		f:         f,
		patPeriod: 40,
		cc:        make(map[uint16]uint8),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewStream allocates the next elementary-stream PID (starting at 0x100)
// and records its codec parameters for PMT generation.
func (w *Writer) NewStream(params container.CodecParameters) (container.StreamHandle, error) {
	pid := uint16(0x100 + len(w.streams))
	streamID := uint8(0xE0) // video stream_id base
	if params.Kind != StreamTypeH264 {
		streamID = 0xC0 // audio stream_id base
	}
	w.streams = append(w.streams, streamState{pid: pid, params: params, streamID: streamID})
	return container.StreamHandle(len(w.streams) - 1), nil
}

// WriteHeader emits an initial PAT/PMT pair.
func (w *Writer) WriteHeader() error {
	if err := w.writePSI(); err != nil {
		return fmt.Errorf("tswriter: %w: %v", container.ErrWrite, err)
	}
	w.headerWritten = true
	return nil
}

// WriteInterleaved PES-wraps pkt.Data and packetizes it into one or more
// 188-byte TS packets on the stream's PID, repeating PAT/PMT whenever
// patPeriod packets have elapsed since the last repeat.
func (w *Writer) WriteInterleaved(pkt container.Packet) error {
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(w.streams) {
		return fmt.Errorf("tswriter: %w: stream index %d out of range", container.ErrWrite, pkt.StreamIndex)
	}
	s := w.streams[pkt.StreamIndex]

	pes := buildPES(s.streamID, pkt)
	if err := w.writePacketized(s.pid, pes, true); err != nil {
		return fmt.Errorf("tswriter: %w: %v", container.ErrWrite, err)
	}
	return nil
}

// WriteTrailer is a no-op that always returns nil: TS has no trailer
// structure and this writer keeps no buffered state to flush, so spec
// §4.5 step 7's "log but swallow trailer errors" contract holds
// trivially.
func (w *Writer) WriteTrailer() error {
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// FilePos returns the current write offset.
func (w *Writer) FilePos() int64 { return w.pos }

// BufferedBytes is always 0: this writer flushes every TS packet
// synchronously rather than buffering internally.
func (w *Writer) BufferedBytes() int64 { return 0 }

func (w *Writer) nextCC(pid uint16) uint8 {
	cc := w.cc[pid]
	w.cc[pid] = (cc + 1) & 0x0F
	return cc
}

// writePacketized splits payload across as many 188-byte TS packets as
// needed, setting payload_unit_start_indicator on the first one and
// padding the last with an adaptation-field stuffing area when payload
// doesn't fill it exactly, mirroring the afLen/stuffing layout
// internal/mpegts's parsePacket reads.
func (w *Writer) writePacketized(pid uint16, payload []byte, pusi bool) error {
	const available = packetSize - 4

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	first := true
	for len(payload) > 0 {
		buf.Reset()

		dataLen := len(payload)
		if dataLen > available {
			dataLen = available
		}
		afTotal := available - dataLen

		var hdr3 byte = 0x10 // payload present
		if afTotal > 0 {
			hdr3 = 0x30 // adaptation field + payload
		}
		hdr3 |= w.nextCC(pid)

		pidHi := byte(pid >> 8 & 0x1F)
		if pusi && first {
			pidHi |= 0x40
		}
		buf.B = append(buf.B, syncByte, pidHi, byte(pid&0xFF), hdr3)

		if afTotal > 0 {
			afLen := afTotal - 1
			buf.B = append(buf.B, byte(afLen))
			if afLen > 0 {
				buf.B = append(buf.B, 0x00) // flags: nothing set
				for i := 1; i < afLen; i++ {
					buf.B = append(buf.B, 0xFF)
				}
			}
		}

		buf.B = append(buf.B, payload[:dataLen]...)

		if _, err := w.f.Write(buf.B); err != nil {
			return err
		}
		w.pos += packetSize

		payload = payload[dataLen:]
		first = false
		w.sincePAT++
	}

	if w.sincePAT >= w.patPeriod {
		if err := w.writePSI(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writePSI() error {
	pat := buildPAT()
	if err := w.writeSection(pidPAT, pat); err != nil {
		return err
	}
	pmt := buildPMT(w.streams)
	if err := w.writeSection(pidPMT, pmt); err != nil {
		return err
	}
	w.sincePAT = 0
	return nil
}

func (w *Writer) writeSection(pid uint16, section []byte) error {
	payload := append([]byte{0x00}, section...) // pointer_field = 0
	return w.writeSingleSectionPacket(pid, payload)
}

// writeSingleSectionPacket writes one PSI section as a single TS packet,
// which holds for PAT/PMT sections this small (well under 184 bytes).
func (w *Writer) writeSingleSectionPacket(pid uint16, payload []byte) error {
	if len(payload) > packetSize-4 {
		return fmt.Errorf("tswriter: PSI section %d bytes exceeds single-packet capacity", len(payload))
	}
	buf := make([]byte, 4, packetSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8&0x1F) | 0x40 // payload_unit_start_indicator
	buf[2] = byte(pid & 0xFF)
	buf[3] = 0x10 | w.nextCC(pid)
	buf = append(buf, payload...)
	for len(buf) < packetSize {
		buf = append(buf, 0xFF)
	}
	if _, err := w.f.Write(buf); err != nil {
		return err
	}
	w.pos += packetSize
	return nil
}

var _ io.Closer = (*Writer)(nil)
