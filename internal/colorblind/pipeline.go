package colorblind

import "daltonize-go/internal/types"

// Settings is the per-frame session state: which deficiency to simulate
// and whether to correct for it.
type Settings struct {
	Mode       Mode `json:"mode" yaml:"mode" toml:"mode"`
	Correction bool `json:"correction" yaml:"correction" toml:"correction"`
}

// SettingsProvider hands out the session state to use for the next frame.
// Snapshot must return a consistent pair.
type SettingsProvider interface {
	Snapshot() Settings
}

// Apply runs the dispatch for one frame.
func Apply(frame types.Frame, s Settings) types.Frame {
	return Transformer{}.Apply(frame, s)
}

// ApplyBoth is Apply that also returns the simulated stage.
func ApplyBoth(frame types.Frame, s Settings) (simulated, output types.Frame) {
	return Transformer{}.ApplyBoth(frame, s)
}

func (t Transformer) Apply(frame types.Frame, s Settings) types.Frame {
	_, out := t.ApplyBoth(frame, s)
	return out
}

// ApplyBoth passes frame through for None, otherwise simulates and, when
// s.Correction is set, corrects. For None both results are frame itself.
func (t Transformer) ApplyBoth(frame types.Frame, s Settings) (simulated, output types.Frame) {
	if s.Mode == None {
		return frame, frame
	}
	m, err := MatrixFor(s.Mode)
	if err != nil {
		panic(err)
	}
	simulated = t.Simulate(frame, m)
	if !s.Correction {
		return simulated, simulated
	}
	return simulated, t.Correct(frame, simulated, s.Mode)
}

// StatusText describes s the way the status bar shows it.
func StatusText(s Settings) string {
	if s.Mode == None {
		return "No filter applied"
	}
	status := "Filter: " + s.Mode.Label()
	if s.Correction {
		status += " with correction"
	}
	return status
}
