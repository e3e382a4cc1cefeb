// Package camera captures RGB frames from a local video device.
//
// Capture needs GStreamer and is only compiled with -tags gst; without the
// tag Stream reports that camera support is disabled and callers fall back
// to the synthetic source.
package camera

import (
	"errors"
	"fmt"
)

type Settings struct {
	Device string
	Width  int
	Height int
	FPS    float64
	// Mirror flips frames horizontally inside the pipeline, matching what
	// a user expects when facing the camera.
	Mirror bool
}

func (s Settings) validate() error {
	if s.Device == "" {
		return errors.New("camera device is empty")
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("invalid capture fps %v", s.FPS)
	}
	return nil
}

// capsString is the appsink caps: packed RGB at the requested size and rate.
func capsString(s Settings) string {
	numerator, denominator := 1, 1
	if s.FPS < 1 {
		denominator = int(1 / s.FPS)
	} else {
		numerator = int(s.FPS)
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		s.Width, s.Height, numerator, denominator)
}

// packRows strips per-row padding from a buffer whose rows are stride
// bytes apart, returning exactly width*height*3 bytes.
func packRows(data []byte, width, height int) ([]byte, error) {
	rowBytes := width * 3
	want := rowBytes * height
	if len(data) == want {
		out := make([]byte, want)
		copy(out, data)
		return out, nil
	}
	if height == 0 || len(data)%height != 0 || len(data)/height < rowBytes {
		return nil, fmt.Errorf("buffer of %d bytes does not hold %dx%d RGB", len(data), width, height)
	}
	stride := len(data) / height
	out := make([]byte, want)
	for y := 0; y < height; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], data[y*stride:y*stride+rowBytes])
	}
	return out, nil
}
