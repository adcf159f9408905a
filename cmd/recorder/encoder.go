package main

import (
	"context"
	"time"

	"github.com/ssrecorder/capturecore/internal/queue"
	"github.com/ssrecorder/capturecore/muxer"
)

// syntheticEncoder is a stand-in for a real video/audio encoder: it
// produces fixed-size packets on a fixed cadence and pushes them onto
// its muxer stream, demonstrating the Encoder/AddPacket/EndStream
// contract without requiring a live GrabberCore or codec. A real
// deployment replaces this with an encoder driven by GrabberCore's
// shared-memory ring output.
type syntheticEncoder struct {
	core   *muxer.Core
	stream int

	frameInterval   time.Duration
	payloadSize     int
	samplesPerFrame int64 // 0 means one tick == one PTS unit

	stop chan struct{}
}

func (e *syntheticEncoder) Stop() {
	if e.stop != nil {
		close(e.stop)
	}
}

func (e *syntheticEncoder) run(ctx context.Context) {
	e.stop = make(chan struct{})
	ticker := time.NewTicker(e.frameInterval)
	defer ticker.Stop()

	step := e.samplesPerFrame
	if step == 0 {
		step = 1
	}

	var pts int64
	for {
		select {
		case <-ctx.Done():
			_ = e.core.EndStream(e.stream)
			return
		case <-e.stop:
			_ = e.core.EndStream(e.stream)
			return
		case <-ticker.C:
			payload := make([]byte, e.payloadSize)
			env := &queue.Envelope{PTS: pts, Payload: payload}
			if err := e.core.AddPacket(e.stream, env); err != nil {
				return
			}
			pts += step
		}
	}
}
