package types

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameAccessors(t *testing.T) {
	f := NewFrame(3, 2)
	require.True(t, f.Valid())
	f.Set(2, 1, [3]uint8{7, 8, 9})
	assert.Equal(t, [3]uint8{7, 8, 9}, f.At(2, 1))
	assert.Equal(t, uint8(7), f.Pix[15])

	c := f.Clone()
	assert.True(t, c.Equal(f))
	c.Set(0, 0, [3]uint8{1, 1, 1})
	assert.False(t, c.Equal(f))
	assert.Equal(t, [3]uint8{}, f.At(0, 0))

	assert.False(t, Frame{Width: 2, Height: 2, Pix: make([]uint8, 11)}.Valid())
	assert.False(t, f.Equal(NewFrame(2, 3)))
}

func TestRGBARoundTrip(t *testing.T) {
	f := NewFrame(2, 2)
	for i := range f.Pix {
		f.Pix[i] = uint8(i * 20)
	}
	img, err := f.RGBA()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), img.Pix[3])
	assert.True(t, FrameFromImage(img).Equal(f))

	_, err = Frame{Width: 1, Height: 1}.RGBA()
	assert.Error(t, err)
}

func TestFrameFromImageConvertsAndCrops(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	sub := src.SubImage(image.Rect(1, 2, 3, 4))

	f := FrameFromImage(sub)
	require.Equal(t, 2, f.Width)
	require.Equal(t, 2, f.Height)
	assert.Equal(t, [3]uint8{10, 20, 200}, f.At(0, 0))
	assert.Equal(t, [3]uint8{20, 30, 200}, f.At(1, 1))
}

func TestValidRejectsOverflowingSize(t *testing.T) {
	assert.False(t, Frame{Width: 1 << 62, Height: 4, Pix: []uint8{}}.Valid())
	assert.False(t, Frame{Width: 4, Height: 1 << 62, Pix: []uint8{}}.Valid())
	assert.False(t, Frame{Width: -1, Height: -3, Pix: make([]uint8, 9)}.Valid())
	assert.True(t, Frame{Width: 0, Height: 1 << 62}.Valid())

	_, err := Frame{Width: 1 << 62, Height: 4}.RGBA()
	assert.Error(t, err)
}
