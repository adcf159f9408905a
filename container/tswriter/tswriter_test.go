package tswriter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ssrecorder/capturecore/container"
)

func TestWriteHeaderProducesValidPATAndPMT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if _, err := w.NewStream(container.CodecParameters{Kind: StreamTypeH264}); err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 2*packetSize {
		t.Fatalf("wrote %d bytes, want %d (one PAT + one PMT packet)", len(data), 2*packetSize)
	}
	for _, off := range []int{0, packetSize} {
		if data[off] != syncByte {
			t.Errorf("packet at offset %d: sync byte = 0x%02X, want 0x47", off, data[off])
		}
	}

	patPID := uint16(data[1]&0x1F)<<8 | uint16(data[2])
	if patPID != pidPAT {
		t.Errorf("first packet PID = 0x%04X, want PAT PID 0x%04X", patPID, pidPAT)
	}
	pmtPID := uint16(data[packetSize+1]&0x1F)<<8 | uint16(data[packetSize+2])
	if pmtPID != pidPMT {
		t.Errorf("second packet PID = 0x%04X, want PMT PID 0x%04X", pmtPID, pidPMT)
	}
}

func TestWriteInterleavedEmitsSyncedPackets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	w, err := New(path, WithPATPeriod(1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	handle, err := w.NewStream(container.CodecParameters{Kind: StreamTypeH264})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	payload := make([]byte, 500) // spans multiple TS packets
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := w.WriteInterleaved(container.Packet{
		StreamIndex: int(handle),
		PTS:         90000,
		KeyFrame:    true,
		Data:        payload,
	}); err != nil {
		t.Fatalf("WriteInterleaved: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data)%packetSize != 0 {
		t.Fatalf("total bytes %d is not a multiple of packet size %d", len(data), packetSize)
	}
	for off := 0; off < len(data); off += packetSize {
		if data[off] != syncByte {
			t.Errorf("packet at offset %d: sync byte = 0x%02X, want 0x47", off, data[off])
		}
	}
}

func TestFilePosTracksBytesWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	cw, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cw.Close()

	if _, err := cw.NewStream(container.CodecParameters{Kind: StreamTypeAAC}); err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := cw.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if cw.FilePos() != 2*packetSize {
		t.Errorf("FilePos after header = %d, want %d", cw.FilePos(), 2*packetSize)
	}
	if cw.BufferedBytes() != 0 {
		t.Errorf("BufferedBytes = %d, want 0 (tswriter flushes synchronously)", cw.BufferedBytes())
	}
}

func TestCRC32RoundTrips(t *testing.T) {
	section := buildPAT()
	// The CRC32 of a correctly terminated MPEG-2 section (data + its own
	// CRC) is always 0, the same check internal/mpegts.verifyCRC32 performs.
	if computeCRC32(section) != 0 {
		t.Errorf("computeCRC32(buildPAT()) = %d, want 0", computeCRC32(section))
	}
}
