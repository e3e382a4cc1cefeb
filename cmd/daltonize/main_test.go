package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/config"
	"daltonize-go/internal/processing"
	"daltonize-go/internal/session"
	"daltonize-go/internal/types"
)

func TestNewLogger(t *testing.T) {
	l := newLogger("debug", "json")
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	l = newLogger("bogus", "text")
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
}

func TestImageFramesSplitsMetadata(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages := make(chan types.RawMessage, 3)
	frame := types.NewFrame(1, 1)
	frame.Seq = 9
	messages <- types.RawMessage{Type: "start", Meta: map[string]any{"source": "bench"}}
	messages <- types.RawMessage{Type: "image", Image: frame}
	messages <- types.RawMessage{Type: "end", Meta: map[string]any{}}
	close(messages)

	var m metrics
	ui := make(chan any, 4)
	var got []types.Frame
	for f := range imageFrames(ctx, messages, &m, ui) {
		got = append(got, f)
	}
	require.Len(t, got, 1)
	assert.Equal(t, uint64(9), got[0].Seq)
	assert.Equal(t, uint64(2), m.metaMessages.Load())
	require.Len(t, ui, 2)
	first := (<-ui).(map[string]any)
	assert.Equal(t, "stream_start", first["type"])
}

func TestMirrorStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan types.Frame, 2)
	f := types.NewFrame(2, 1)
	f.Set(0, 0, [3]uint8{255, 0, 0})
	in <- f
	in <- types.Frame{Width: 2, Height: 2}
	close(in)

	var m metrics
	var got []types.Frame
	for out := range mirror(ctx, in, &m) {
		got = append(got, out)
	}
	require.Len(t, got, 1)
	assert.Equal(t, [3]uint8{255, 0, 0}, got[0].At(1, 0))
	assert.Equal(t, uint64(1), m.mirrorErrors.Load())
}

func TestRunWorkersAppliesSession(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 3
	cfg.Parallelism = 1
	state := session.New(colorblind.Settings{Mode: colorblind.Protanopia, Correction: true})
	agg := processing.NewAggregator()

	frames := make(chan types.Frame, 8)
	for i := 0; i < 5; i++ {
		f := types.NewFrame(1, 1)
		f.Seq = uint64(i)
		f.Set(0, 0, [3]uint8{255, 0, 0})
		frames <- f
	}
	frames <- types.Frame{Seq: 99, Width: 4, Height: 4}
	frames <- types.Frame{Seq: 100, Width: 1 << 62, Height: 4, Pix: []uint8{}}
	close(frames)

	var m metrics
	done := make(chan struct{})
	go func() {
		runWorkers(context.Background(), cfg, frames, state, agg, &m)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop after the source closed")
	}

	assert.Equal(t, uint64(7), m.framesIn.Load())
	assert.Equal(t, uint64(5), m.framesProcessed.Load())
	latest, ok := agg.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(4), latest.Original.Seq)
	assert.Equal(t, [3]uint8{255, 77, 77}, latest.Output.At(0, 0))
}

func TestSessionReloaderIgnoresUnrelatedEdits(t *testing.T) {
	// The file says protanopia; -mode tritanopia was given on the command line.
	fileSession := colorblind.Settings{Mode: colorblind.Protanopia}
	state := session.New(colorblind.Settings{Mode: colorblind.Tritanopia})
	reload := sessionReloader(fileSession, state.Set)

	next := config.Default()
	next.Session = fileSession
	next.PreviewFPS = 2
	reload(next)
	assert.Equal(t, colorblind.Settings{Mode: colorblind.Tritanopia}, state.Snapshot())

	next.Session = colorblind.Settings{Mode: colorblind.Deuteranopia, Correction: true}
	reload(next)
	assert.Equal(t, next.Session, state.Snapshot())

	state.SetMode(colorblind.None)
	next.JPEGQuality = 70
	reload(next)
	assert.Equal(t, colorblind.None, state.Snapshot().Mode, "a repeated session section is not reapplied")
}
