package muxer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ssrecorder/capturecore/container"
	"github.com/ssrecorder/capturecore/internal/queue"
)

// fakeWriter is a container.Writer recording every packet written, in
// call order, for assertions. Optionally fails the Nth WriteInterleaved
// call, and optionally fails WriteHeader.
type fakeWriter struct {
	mu          sync.Mutex
	written     []container.Packet
	headerErr   error
	failAtWrite int // 1-indexed; 0 means never fail
	writeCalls  int
	trailerCalled bool
	closed      bool
	pos         int64
}

func (w *fakeWriter) NewStream(container.CodecParameters) (container.StreamHandle, error) {
	return container.StreamHandle(0), nil
}

func (w *fakeWriter) WriteHeader() error { return w.headerErr }

func (w *fakeWriter) WriteInterleaved(pkt container.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeCalls++
	if w.failAtWrite != 0 && w.writeCalls == w.failAtWrite {
		return errors.New("simulated write failure")
	}
	w.written = append(w.written, pkt)
	w.pos += int64(len(pkt.Data))
	return nil
}

func (w *fakeWriter) WriteTrailer() error {
	w.trailerCalled = true
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) FilePos() int64       { return w.pos }
func (w *fakeWriter) BufferedBytes() int64 { return 0 }

func (w *fakeWriter) snapshot() []container.Packet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]container.Packet(nil), w.written...)
}

type fakeEncoder struct {
	stopped bool
}

func (e *fakeEncoder) Stop() { e.stopped = true }

func newTestCore(t *testing.T, w *fakeWriter) *Core {
	t.Helper()
	c, err := New(Config{
		Open:       func(string) (container.Writer, error) { return w, nil },
		OutputPath: "test.ts",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestMuxerInterleavesByNonDecreasingPTS(t *testing.T) {
	// Spec §8 P6/scenario 5: two streams enqueued out of order relative
	// to each other (but monotonic within each stream); output must be
	// non-decreasing by pts*time_base.
	w := &fakeWriter{}
	c := newTestCore(t, w)

	videoTB := container.TimeBase{Num: 1, Den: 30}
	audioTB := container.TimeBase{Num: 1, Den: 48000}

	video, err := c.CreateStream(container.CodecParameters{TimeBase: videoTB}, videoTB)
	if err != nil {
		t.Fatalf("CreateStream video: %v", err)
	}
	audio, err := c.CreateStream(container.CodecParameters{TimeBase: audioTB}, audioTB)
	if err != nil {
		t.Fatalf("CreateStream audio: %v", err)
	}
	if err := c.RegisterEncoder(video, &fakeEncoder{}); err != nil {
		t.Fatalf("RegisterEncoder video: %v", err)
	}
	if err := c.RegisterEncoder(audio, &fakeEncoder{}); err != nil {
		t.Fatalf("RegisterEncoder audio: %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Video: 0, 1, 2 (at 1/30s each -> seconds 0, 0.033, 0.066).
	for i := int64(0); i < 3; i++ {
		if err := c.AddPacket(video, &queue.Envelope{PTS: i}); err != nil {
			t.Fatalf("AddPacket video %d: %v", i, err)
		}
	}
	// Audio: frames of 1024 samples at 48kHz -> seconds 0, 0.0213, 0.0427.
	for i := int64(0); i < 3; i++ {
		if err := c.AddPacket(audio, &queue.Envelope{PTS: i * 1024}); err != nil {
			t.Fatalf("AddPacket audio %d: %v", i, err)
		}
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	written := w.snapshot()
	if len(written) != 6 {
		t.Fatalf("wrote %d packets, want 6", len(written))
	}

	var prevSeconds float64
	for i, pkt := range written {
		var tb container.TimeBase
		if pkt.StreamIndex == video {
			tb = videoTB
		} else {
			tb = audioTB
		}
		seconds := tb.Seconds(pkt.PTS)
		if i > 0 && seconds < prevSeconds {
			t.Errorf("packet %d: pts %.6fs < previous %.6fs, order not non-decreasing", i, seconds, prevSeconds)
		}
		prevSeconds = seconds
	}
}

func TestFinishDrainsAllAndWritesTrailer(t *testing.T) {
	// Spec §8 scenario 6.
	w := &fakeWriter{}
	c := newTestCore(t, w)

	tb := container.TimeBase{Num: 1, Den: 30}
	stream, err := c.CreateStream(container.CodecParameters{TimeBase: tb}, tb)
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if err := c.RegisterEncoder(stream, &fakeEncoder{}); err != nil {
		t.Fatalf("RegisterEncoder: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := int64(0); i < 10; i++ {
		if err := c.AddPacket(stream, &queue.Envelope{PTS: i}); err != nil {
			t.Fatalf("AddPacket %d: %v", i, err)
		}
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if len(w.snapshot()) != 10 {
		t.Errorf("wrote %d packets, want 10", len(w.snapshot()))
	}
	if !w.trailerCalled {
		t.Error("trailer was not written")
	}
	if !w.closed {
		t.Error("writer was not closed")
	}
	if c.ErrorOccurred() {
		t.Error("ErrorOccurred() = true, want false")
	}
}

func TestStopWithoutStartWritesNoTrailer(t *testing.T) {
	// Spec §8 P8: destroying a Muxer that never started releases
	// resources and writes no trailer.
	w := &fakeWriter{}
	c := newTestCore(t, w)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if w.trailerCalled {
		t.Error("trailer was written for a Muxer that never started")
	}
	if !w.closed {
		t.Error("writer was not closed")
	}
}

func TestWriteFailureSetsErrorOccurredAndExitsWorker(t *testing.T) {
	w := &fakeWriter{failAtWrite: 1}
	c := newTestCore(t, w)

	tb := container.TimeBase{Num: 1, Den: 30}
	stream, err := c.CreateStream(container.CodecParameters{TimeBase: tb}, tb)
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if err := c.RegisterEncoder(stream, &fakeEncoder{}); err != nil {
		t.Fatalf("RegisterEncoder: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.AddPacket(stream, &queue.Envelope{PTS: 0}); err != nil {
		t.Fatalf("AddPacket: %v", err)
	}

	select {
	case <-c.workerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after write failure")
	}

	if !c.ErrorOccurred() {
		t.Error("ErrorOccurred() = false, want true after a write failure")
	}
}

func TestStopCancelsRegisteredEncoders(t *testing.T) {
	w := &fakeWriter{}
	c := newTestCore(t, w)

	tb := container.TimeBase{Num: 1, Den: 30}
	stream, err := c.CreateStream(container.CodecParameters{TimeBase: tb}, tb)
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	enc := &fakeEncoder{}
	if err := c.RegisterEncoder(stream, enc); err != nil {
		t.Fatalf("RegisterEncoder: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !enc.stopped {
		t.Error("Stop() did not cancel the registered encoder")
	}
}
