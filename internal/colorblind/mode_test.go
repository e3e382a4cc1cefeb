package colorblind

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":                        None,
		"Normal":                  None,
		"protanopia":              Protanopia,
		"Protanopia (Red-Blind)":  Protanopia,
		"RED":                     Protanopia,
		" deuteranopia ":          Deuteranopia,
		"green":                   Deuteranopia,
		"Tritanopia (Blue-Blind)": Tritanopia,
		"tritan":                  Tritanopia,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("achromatopsia")
	assert.Error(t, err)
}

func TestModeRoundTripText(t *testing.T) {
	for _, mode := range Modes() {
		got, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)

		got, err = ParseMode(mode.Label())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
}

func TestSettingsJSON(t *testing.T) {
	data, err := json.Marshal(Settings{Mode: Deuteranopia, Correction: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"deuteranopia","correction":true}`, string(data))

	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"Tritanopia (Blue-Blind)"}`), &s))
	assert.Equal(t, Settings{Mode: Tritanopia}, s)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"sepia"}`), &s))
}

func TestMatrixRowsSumToOne(t *testing.T) {
	for _, mode := range []Mode{Protanopia, Deuteranopia, Tritanopia} {
		m, err := MatrixFor(mode)
		require.NoError(t, err)
		for i, row := range m {
			sum := 0.0
			for _, v := range row {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "%s row %d", mode, i)
		}
	}
}

func TestMatrixForRejectsNone(t *testing.T) {
	_, err := MatrixFor(None)
	assert.ErrorIs(t, err, ErrUnknownMode)
	_, err = MatrixFor(Mode(200))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "No filter applied", StatusText(Settings{Correction: true}))
	assert.Equal(t, "Filter: Protanopia (Red-Blind)", StatusText(Settings{Mode: Protanopia}))
	assert.Equal(t, "Filter: Tritanopia (Blue-Blind) with correction", StatusText(Settings{Mode: Tritanopia, Correction: true}))
}
