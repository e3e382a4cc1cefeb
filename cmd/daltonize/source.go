package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"daltonize-go/internal/camera"
	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/config"
	"daltonize-go/internal/ingest"
	"daltonize-go/internal/output"
	"daltonize-go/internal/processing"
	"daltonize-go/internal/simulator"
	"daltonize-go/internal/types"
)

// openSource starts the configured frame source. When it cannot start and
// fallback is enabled the synthetic source is used instead.
func openSource(ctx context.Context, cfg config.AppConfig, rec ingest.RawRecorder, m *metrics, uiMessages chan<- any) (<-chan types.Frame, error) {
	var (
		frames   <-chan types.Frame
		err      error
		mirrored bool
	)
	switch cfg.Source {
	case config.SourceCamera:
		frames, err = camera.Stream(ctx, camera.Settings{
			Device: cfg.Device,
			Width:  cfg.Width,
			Height: cfg.Height,
			FPS:    cfg.FPS,
			Mirror: cfg.Mirror,
		})
		mirrored = true
	case config.SourceZMQ:
		var messages <-chan types.RawMessage
		messages, err = ingest.Stream(ctx, ingest.Options{
			Endpoint: cfg.Endpoint,
			Codec:    cfg.Codec,
			LogEvery: cfg.IngestLogEvery,
			Recorder: rec,
		})
		if err == nil {
			frames = imageFrames(ctx, messages, m, uiMessages)
		}
	default:
		frames = simulator.Stream(ctx, cfg.Width, cfg.Height, cfg.FPS)
	}

	if err != nil {
		if !cfg.IngestFallback {
			return nil, fmt.Errorf("failed to start %s source: %w", cfg.Source, err)
		}
		slog.Warn("daltonize: source failed, falling back to simulator", "source", cfg.Source, "error", err)
		frames = simulator.Stream(ctx, cfg.Width, cfg.Height, cfg.FPS)
		mirrored = false
	}

	if cfg.Mirror && !mirrored {
		frames = mirror(ctx, frames, m)
	}
	return frames, nil
}

// imageFrames splits the ingest stream: image messages become frames,
// start and end messages are logged and forwarded to UI clients.
func imageFrames(ctx context.Context, messages <-chan types.RawMessage, m *metrics, uiMessages chan<- any) <-chan types.Frame {
	out := make(chan types.Frame, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			if msg.Type != "image" {
				m.metaMessages.Add(1)
				normalized := output.NormalizeJSONValue(msg.Meta)
				slog.Info("daltonize: stream metadata", "type", msg.Type, "meta", mustJSON(normalized))
				select {
				case uiMessages <- map[string]any{"type": "stream_" + msg.Type, "meta": normalized}:
				default:
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- msg.Image:
			}
		}
	}()
	return out
}

func mirror(ctx context.Context, in <-chan types.Frame, m *metrics) <-chan types.Frame {
	out := make(chan types.Frame, 4)
	go func() {
		defer close(out)
		for frame := range in {
			flipped, err := processing.Mirror(frame)
			if err != nil {
				m.mirrorErrors.Add(1)
				slog.Warn("daltonize: mirror failed, dropping frame", "seq", frame.Seq, "error", err)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- flipped:
			}
		}
	}()
	return out
}

// runWorkers processes frames until the source closes or ctx is done.
// Each frame reads the session once, so a change applies from the next
// frame on.
func runWorkers(ctx context.Context, cfg config.AppConfig, frames <-chan types.Frame, state colorblind.SettingsProvider, agg *processing.Aggregator, m *metrics) {
	transformer := colorblind.Transformer{Workers: cfg.Parallelism}
	if cfg.Parallelism == 0 {
		transformer = colorblind.Parallel()
	}
	proc := &processing.Processor{Settings: state, Transformer: transformer}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				var frame types.Frame
				var ok bool
				select {
				case <-ctx.Done():
					return
				case frame, ok = <-frames:
					if !ok {
						return
					}
				}
				m.framesIn.Add(1)
				if !frame.Valid() {
					slog.Warn("daltonize: dropping malformed frame", "seq", frame.Seq, "width", frame.Width, "height", frame.Height, "bytes", len(frame.Pix))
					continue
				}
				result := proc.Process(frame)
				m.processNanos.Add(uint64(result.Duration.Nanoseconds()))
				m.framesProcessed.Add(1)
				if !agg.AddResult(result) {
					m.framesStale.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	slog.Info("daltonize: workers stopped", "workers", workers)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
