package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/ssrecorder/capturecore/container"
	"github.com/ssrecorder/capturecore/container/tswriter"
	"github.com/ssrecorder/capturecore/muxer"
	"github.com/ssrecorder/capturecore/muxer/registry"
	"github.com/ssrecorder/capturecore/muxer/status"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	outputPath := envOr("RECORDER_OUTPUT", "recording.ts")
	statusAddr := envOr("RECORDER_STATUS_ADDR", ":9090")

	slog.Info("recorder starting", "version", version, "output", outputPath, "status", statusAddr)

	reg := registry.New(nil)
	metricsRegistry := prometheus.NewRegistry()

	core, err := muxer.New(muxer.Config{
		Open:       func(path string) (container.Writer, error) { return tswriter.New(path) },
		OutputPath: outputPath,
		Registry:   metricsRegistry,
	})
	if err != nil {
		slog.Error("failed to open muxer", "error", err)
		os.Exit(1)
	}

	statusSrv, err := status.NewServer(status.Config{Addr: statusAddr, Registry: reg, Metrics: metricsRegistry})
	if err != nil {
		slog.Error("failed to build status server", "error", err)
		os.Exit(1)
	}
	reg.Add(core.ID(), outputPath)
	defer reg.Remove(core.ID())

	videoTB := container.TimeBase{Num: 1, Den: 30}
	video, err := core.CreateStream(container.CodecParameters{Kind: tswriter.StreamTypeH264, TimeBase: videoTB}, videoTB)
	if err != nil {
		slog.Error("failed to create video stream", "error", err)
		os.Exit(1)
	}
	videoEnc := &syntheticEncoder{core: core, stream: video, frameInterval: time.Second / 30, payloadSize: 4096}
	if err := core.RegisterEncoder(video, videoEnc); err != nil {
		slog.Error("failed to register video encoder", "error", err)
		os.Exit(1)
	}

	audioTB := container.TimeBase{Num: 1, Den: 48000}
	audio, err := core.CreateStream(container.CodecParameters{Kind: tswriter.StreamTypeAAC, TimeBase: audioTB}, audioTB)
	if err != nil {
		slog.Error("failed to create audio stream", "error", err)
		os.Exit(1)
	}
	audioSampleRate := 48000.0
	audioEnc := &syntheticEncoder{core: core, stream: audio, frameInterval: time.Duration(float64(time.Second) * 1024 / audioSampleRate), payloadSize: 256, samplesPerFrame: 1024}
	if err := core.RegisterEncoder(audio, audioEnc); err != nil {
		slog.Error("failed to register audio encoder", "error", err)
		os.Exit(1)
	}

	if err := core.Start(ctx); err != nil {
		slog.Error("failed to start muxer", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return statusSrv.Start(ctx) })
	g.Go(func() error { videoEnc.run(ctx); return nil })
	g.Go(func() error { audioEnc.run(ctx); return nil })

	<-ctx.Done()
	videoEnc.Stop()
	audioEnc.Stop()
	if err := core.Finish(); err != nil {
		slog.Warn("muxer finish reported an error", "error", err)
	}

	if err := g.Wait(); err != nil {
		slog.Error("recorder exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("recorder stopped cleanly")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
