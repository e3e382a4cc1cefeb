package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/session"
	"daltonize-go/internal/types"
)

func rgbFrame(w, h int, pix ...uint8) types.Frame {
	f := types.NewFrame(w, h)
	copy(f.Pix, pix)
	return f
}

func TestProcessorSnapshotsSettings(t *testing.T) {
	state := session.New(colorblind.Settings{Mode: colorblind.Protanopia})
	p := &Processor{Settings: state}

	in := rgbFrame(1, 1, 255, 0, 0)
	r := p.Process(in)
	assert.Equal(t, []uint8{144, 142, 0}, r.Output.Pix)
	assert.Equal(t, r.Simulated.Pix, r.Output.Pix)

	state.SetCorrection(true)
	r = p.Process(in)
	assert.Equal(t, []uint8{255, 77, 77}, r.Output.Pix)
	assert.Equal(t, []uint8{144, 142, 0}, r.Simulated.Pix)
	assert.True(t, r.Settings.Correction)
}

func TestProcessNonePassesThrough(t *testing.T) {
	in := rgbFrame(2, 1, 1, 2, 3, 4, 5, 6)
	r := ProcessFrame(colorblind.Transformer{}, in, colorblind.Settings{})
	assert.True(t, in.Equal(r.Output))
	assert.True(t, in.Equal(r.Simulated))
}

func TestMirror(t *testing.T) {
	in := rgbFrame(3, 1, 1, 1, 1, 2, 2, 2, 3, 3, 3)
	in.Seq = 9
	out, err := Mirror(in)
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 3, 3, 2, 2, 2, 1, 1, 1}, out.Pix)
	assert.Equal(t, uint64(9), out.Seq)

	_, err = Mirror(types.Frame{Width: 2, Height: 2})
	assert.Error(t, err)
}

func TestAggregatorKeepsNewest(t *testing.T) {
	agg := NewAggregator()
	_, ok := agg.Latest()
	assert.False(t, ok)

	newer := rgbFrame(1, 1, 10, 20, 30)
	newer.Seq = 5
	older := rgbFrame(1, 1, 0, 0, 0)
	older.Seq = 4

	assert.True(t, agg.AddResult(Result{Original: newer, Output: newer}))
	assert.False(t, agg.AddResult(Result{Original: older, Output: older}))

	latest, ok := agg.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.Original.Seq)

	snap := agg.Snapshot()
	assert.Equal(t, uint64(2), snap["frames_total"])
	assert.Equal(t, uint64(5), snap["last_seq"])
	assert.Equal(t, [3]float64{10, 20, 30}, snap["channel_means"].(ChannelStats).Output)

	agg.Reset()
	_, ok = agg.Latest()
	assert.False(t, ok)
}
