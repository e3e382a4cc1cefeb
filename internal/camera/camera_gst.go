//go:build gst

package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"daltonize-go/internal/types"
)

// Stream starts a v4l2 capture pipeline and emits frames until ctx is done.
// Frames are dropped, not queued, when the consumer falls behind.
//
//	v4l2src → videoconvert → [videoflip] → videoscale → videorate → capsfilter(RGB) → appsink
func Stream(ctx context.Context, s Settings) (<-chan types.Frame, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	gst.Init(nil)

	pipeline, sink, err := buildPipeline(s)
	if err != nil {
		return nil, err
	}

	out := make(chan types.Frame, 4)
	var seq, dropped atomic.Uint64

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			sample := sink.PullSample()
			if sample == nil {
				slog.Warn("camera: failed to pull sample, skipping frame")
				return gst.FlowOK
			}
			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowOK
			}
			mapInfo := buffer.Map(gst.MapRead)
			pix, err := packRows(mapInfo.Bytes(), s.Width, s.Height)
			buffer.Unmap()
			if err != nil {
				slog.Warn("camera: unexpected buffer layout", "error", err)
				return gst.FlowOK
			}

			frame := types.Frame{
				Seq:       seq.Add(1),
				Timestamp: time.Now(),
				Width:     s.Width,
				Height:    s.Height,
				Pix:       pix,
			}
			select {
			case out <- frame:
			default:
				if n := dropped.Add(1); n%100 == 1 {
					slog.Debug("camera: dropping frames, consumer busy", "dropped", n)
				}
			}
			return gst.FlowOK
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("failed to start camera pipeline: %w", err)
	}
	slog.Info("camera: capture started", "device", s.Device, "width", s.Width, "height", s.Height, "fps", s.FPS, "mirror", s.Mirror)

	go func() {
		defer close(out)
		defer func() {
			if err := pipeline.SetState(gst.StateNull); err != nil {
				slog.Warn("camera: failed to stop pipeline", "error", err)
			}
		}()

		bus := pipeline.GetPipelineBus()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("camera: end of stream", "frames", seq.Load())
				return
			case gst.MessageError:
				gerr := msg.ParseError()
				slog.Error("camera: pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
				return
			}
		}
	}()

	return out, nil
}

func buildPipeline(s Settings) (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", s.Device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoscale: %w", err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	rate.SetProperty("drop-only", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsString(s)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	chain := []*gst.Element{src, converter}
	if s.Mirror {
		flip, err := gst.NewElement("videoflip")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create videoflip: %w", err)
		}
		flip.SetProperty("method", "horizontal-flip")
		chain = append(chain, flip)
	}
	chain = append(chain, scaler, rate, capsfilter, sink.Element)

	if err := pipeline.AddMany(chain...); err != nil {
		return nil, nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(chain...); err != nil {
		return nil, nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}
	return pipeline, sink, nil
}
