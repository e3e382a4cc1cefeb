package processing

import (
	"time"

	"github.com/anthonynsimon/bild/transform"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/types"
)

// Result is one frame after dispatch. Simulated and Output alias Original
// when the mode is None.
type Result struct {
	Original  types.Frame
	Simulated types.Frame
	Output    types.Frame
	Settings  colorblind.Settings
	Duration  time.Duration
}

// Processor applies the pipeline using the settings provider's value at
// the moment each frame starts.
type Processor struct {
	Settings    colorblind.SettingsProvider
	Transformer colorblind.Transformer
}

func (p *Processor) Process(frame types.Frame) Result {
	return ProcessFrame(p.Transformer, frame, p.Settings.Snapshot())
}

// ProcessFrame runs one frame with settings already snapshotted.
func ProcessFrame(t colorblind.Transformer, frame types.Frame, settings colorblind.Settings) Result {
	start := time.Now()
	simulated, output := t.ApplyBoth(frame, settings)
	return Result{
		Original:  frame,
		Simulated: simulated,
		Output:    output,
		Settings:  settings,
		Duration:  time.Since(start),
	}
}

// Mirror flips a frame horizontally, as a selfie camera preview does.
func Mirror(frame types.Frame) (types.Frame, error) {
	img, err := frame.RGBA()
	if err != nil {
		return types.Frame{}, err
	}
	out := types.FrameFromImage(transform.FlipH(img))
	out.Seq = frame.Seq
	out.Timestamp = frame.Timestamp
	return out, nil
}
