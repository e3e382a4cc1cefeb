package simulator

import (
	"context"
	"math"
	"time"

	"daltonize-go/internal/types"
)

// Stream emits a synthetic camera feed: scrolling hue bars over a gray
// ramp, so every deficiency mode has something to remove and restore.
func Stream(ctx context.Context, width, height int, fps float64) <-chan types.Frame {
	out := make(chan types.Frame)
	go func() {
		defer close(out)

		frameInterval := time.Duration(float64(time.Second) / fps)
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame := Pattern(width, height, int(seq))
				frame.Seq = seq
				frame.Timestamp = time.Now()
				select {
				case <-ctx.Done():
					return
				case out <- frame:
				}
				seq++
			}
		}
	}()

	return out
}

// Pattern renders frame number n of the test pattern. The top three
// quarters are fully saturated hue bars shifted by n pixels; the bottom
// quarter is a horizontal gray ramp.
func Pattern(width, height, n int) types.Frame {
	frame := types.NewFrame(width, height)
	if width == 0 || height == 0 {
		return frame
	}
	split := height * 3 / 4
	row := make([]uint8, width*3)
	for x := 0; x < width; x++ {
		hue := float64((x+n)%width) / float64(width) * 360
		r, g, b := hsvToRGB(hue, 1, 1)
		row[x*3], row[x*3+1], row[x*3+2] = r, g, b
	}
	for y := 0; y < split; y++ {
		copy(frame.Pix[y*width*3:], row)
	}
	for x := 0; x < width; x++ {
		v := uint8(x * 255 / max(width-1, 1))
		row[x*3], row[x*3+1], row[x*3+2] = v, v, v
	}
	for y := split; y < height; y++ {
		copy(frame.Pix[y*width*3:], row)
	}
	return frame
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	c := v * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g = c, x
	case hp < 2:
		r, g = x, c
	case hp < 3:
		g, b = c, x
	case hp < 4:
		g, b = x, c
	case hp < 5:
		r, b = x, c
	default:
		r, b = c, x
	}
	m := v - c
	return uint8(math.Round((r + m) * 255)), uint8(math.Round((g + m) * 255)), uint8(math.Round((b + m) * 255))
}
