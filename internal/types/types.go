package types

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/anthonynsimon/bild/clone"
)

// Frame is a dense RGB image, 3 bytes per pixel, row-major.
// Pix must not be modified once the frame has been handed to another stage.
type Frame struct {
	Seq       uint64    `json:"seq" cbor:"seq" msgpack:"seq"`
	Timestamp time.Time `json:"timestamp" cbor:"-" msgpack:"-"`
	Width     int       `json:"width" cbor:"width" msgpack:"width"`
	Height    int       `json:"height" cbor:"height" msgpack:"height"`
	Pix       []uint8   `json:"-" cbor:"data" msgpack:"data"`
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int) Frame {
	return Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// Valid reports whether Pix holds exactly Width*Height RGB triples.
func (f Frame) Valid() bool {
	if f.Width < 0 || f.Height < 0 {
		return false
	}
	if f.Width > 0 && f.Height > math.MaxInt/3/f.Width {
		return false
	}
	return len(f.Pix) == f.Width*f.Height*3
}

// SameSize reports whether two frames have identical dimensions.
func (f Frame) SameSize(other Frame) bool {
	return f.Width == other.Width && f.Height == other.Height
}

// At returns the RGB triple at (x, y).
func (f Frame) At(x, y int) [3]uint8 {
	i := (y*f.Width + x) * 3
	return [3]uint8{f.Pix[i], f.Pix[i+1], f.Pix[i+2]}
}

// Set writes the RGB triple at (x, y).
func (f Frame) Set(x, y int, rgb [3]uint8) {
	i := (y*f.Width + x) * 3
	f.Pix[i] = rgb[0]
	f.Pix[i+1] = rgb[1]
	f.Pix[i+2] = rgb[2]
}

// Clone returns a deep copy.
func (f Frame) Clone() Frame {
	out := f
	out.Pix = make([]uint8, len(f.Pix))
	copy(out.Pix, f.Pix)
	return out
}

// Equal reports whether both frames have the same dimensions and pixels.
func (f Frame) Equal(other Frame) bool {
	if !f.SameSize(other) || len(f.Pix) != len(other.Pix) {
		return false
	}
	for i := range f.Pix {
		if f.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// RGBA converts the frame to an opaque *image.RGBA.
func (f Frame) RGBA() (*image.RGBA, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid RGB data size: got %d bytes for %dx%d", len(f.Pix), f.Width, f.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4+0] = f.Pix[i*3+0]
		img.Pix[i*4+1] = f.Pix[i*3+1]
		img.Pix[i*4+2] = f.Pix[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// FrameFromImage copies any image into an RGB frame, dropping alpha.
func FrameFromImage(img image.Image) Frame {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = clone.AsRGBA(img)
	}
	b := rgba.Bounds()
	out := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		row := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < out.Width; x++ {
			i := (y*out.Width + x) * 3
			out.Pix[i] = row[x*4]
			out.Pix[i+1] = row[x*4+1]
			out.Pix[i+2] = row[x*4+2]
		}
	}
	return out
}

// RawMessage is one decoded ingest message. Image is set for type "image",
// Meta for "start" and "end".
type RawMessage struct {
	Type  string
	Image Frame
	Meta  map[string]any
}
