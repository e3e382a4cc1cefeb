package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/types"
)

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	files, err := listFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.JPG"), filepath.Join(dir, "b.png")}, files)

	files, err = listFiles(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestListFilesSkipsEarlierOutputs(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cat.jpg")
	require.NoError(t, os.WriteFile(input, nil, 0o644))
	for _, mode := range []colorblind.Mode{colorblind.Protanopia, colorblind.Tritanopia} {
		for _, kind := range outputKinds {
			require.NoError(t, os.WriteFile(outputName(input, "", mode, kind), nil, 0o644))
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cat_blue_corrected.png"), nil, 0o644))

	files, err := listFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "cat.jpg"), filepath.Join(dir, "cat_blue_corrected.png")}, files)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, filepath.Join("photos", "cat_protanopia_corrected.jpg"),
		outputName(filepath.Join("photos", "cat.JPG"), "", colorblind.Protanopia, "corrected"))
	assert.Equal(t, filepath.Join("out", "cat_tritanopia_simulated.png"),
		outputName(filepath.Join("photos", "cat.png"), "out", colorblind.Tritanopia, "simulated"))
}

func TestSelectModes(t *testing.T) {
	modes, err := selectModes("all")
	require.NoError(t, err)
	assert.Equal(t, []colorblind.Mode{colorblind.Protanopia, colorblind.Deuteranopia, colorblind.Tritanopia}, modes)

	modes, err = selectModes("deutan")
	require.NoError(t, err)
	assert.Equal(t, []colorblind.Mode{colorblind.Deuteranopia}, modes)

	_, err = selectModes("none")
	assert.Error(t, err)
}

func TestSavePNGIsLossless(t *testing.T) {
	frame := types.NewFrame(2, 1)
	frame.Set(0, 0, [3]uint8{255, 77, 77})
	frame.Set(1, 0, [3]uint8{0, 178, 0})
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, save(path, frame, 90))

	img, err := imgio.Open(path)
	require.NoError(t, err)
	assert.True(t, types.FrameFromImage(img).Equal(frame))
}
