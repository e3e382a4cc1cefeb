package colorblind

import (
	"runtime"
	"sync"

	"daltonize-go/internal/types"
)

// Transformer runs the pipeline, optionally sharding rows across
// goroutines. The zero value processes frames on the calling goroutine.
type Transformer struct {
	// Workers is the number of row shards; values below 2 disable sharding.
	Workers int
}

// Parallel returns a Transformer with one shard per CPU.
func Parallel() Transformer {
	return Transformer{Workers: runtime.GOMAXPROCS(0)}
}

// Simulate projects frame through m and returns a new frame.
func Simulate(frame types.Frame, m Matrix) types.Frame {
	return Transformer{}.Simulate(frame, m)
}

// Correct re-injects the error lost by the simulation of mode into the
// channels the viewer retains. For None it returns original unchanged.
// It panics with *ContractError if the frames differ in size.
func Correct(original, simulated types.Frame, mode Mode) types.Frame {
	return Transformer{}.Correct(original, simulated, mode)
}

func (t Transformer) Simulate(frame types.Frame, m Matrix) types.Frame {
	mustBeWellFormed("simulate", frame)
	out := frame
	out.Pix = make([]uint8, len(frame.Pix))
	t.shard(frame, func(lo, hi int) {
		simulatePixels(out.Pix[lo:hi], frame.Pix[lo:hi], &m)
	})
	return out
}

func (t Transformer) Correct(original, simulated types.Frame, mode Mode) types.Frame {
	if mode == None {
		return original
	}
	if !mode.Valid() {
		panic(&ContractError{Op: "correct", Mode: mode, Err: ErrUnknownMode})
	}
	mustBeWellFormed("correct", original)
	mustBeWellFormed("correct", simulated)
	if !original.SameSize(simulated) {
		panic(&ContractError{Op: "correct", Mode: mode, Err: ErrDimensionMismatch})
	}
	out := original
	out.Pix = make([]uint8, len(original.Pix))
	t.shard(original, func(lo, hi int) {
		correctPixels(out.Pix[lo:hi], original.Pix[lo:hi], simulated.Pix[lo:hi], mode)
	})
	return out
}

// CorrectionVector routes the per-channel error (original - simulated) of
// one pixel into the channels retained under mode. Products are rounded
// before they are added back so no fused multiply-add is emitted.
func CorrectionVector(mode Mode, errR, errG, errB float64) [3]float64 {
	switch mode {
	case Protanopia:
		c := float64(CorrectionScale * errR)
		return [3]float64{0, c, c}
	case Deuteranopia:
		c := float64(CorrectionScale * errG)
		return [3]float64{c, 0, c}
	case Tritanopia:
		c := float64(CorrectionScale * errB)
		return [3]float64{c, c, 0}
	default:
		return [3]float64{}
	}
}

func simulatePixels(dst, src []uint8, m *Matrix) {
	for i := 0; i+2 < len(src); i += 3 {
		r, g, b := m.mulVec(
			float64(src[i])/255,
			float64(src[i+1])/255,
			float64(src[i+2])/255,
		)
		dst[i] = quantize(r)
		dst[i+1] = quantize(g)
		dst[i+2] = quantize(b)
	}
}

func correctPixels(dst, orig, sim []uint8, mode Mode) {
	for i := 0; i+2 < len(orig); i += 3 {
		oR := float64(orig[i]) / 255
		oG := float64(orig[i+1]) / 255
		oB := float64(orig[i+2]) / 255
		c := CorrectionVector(mode,
			oR-float64(sim[i])/255,
			oG-float64(sim[i+1])/255,
			oB-float64(sim[i+2])/255,
		)
		dst[i] = quantize(oR + c[0])
		dst[i+1] = quantize(oG + c[1])
		dst[i+2] = quantize(oB + c[2])
	}
}

// quantize clamps v to [0,1] and truncates v*255. Truncation biases
// results half a step low on average.
func quantize(v float64) uint8 {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return uint8(v * 255)
}

// shard calls fn over byte ranges covering whole rows of frame.
func (t Transformer) shard(frame types.Frame, fn func(lo, hi int)) {
	rowBytes := frame.Width * 3
	workers := t.Workers
	if workers > frame.Height {
		workers = frame.Height
	}
	if workers < 2 {
		fn(0, len(frame.Pix))
		return
	}
	rowsPer := (frame.Height + workers - 1) / workers
	var wg sync.WaitGroup
	for y := 0; y < frame.Height; y += rowsPer {
		end := y + rowsPer
		if end > frame.Height {
			end = frame.Height
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(y*rowBytes, end*rowBytes)
	}
	wg.Wait()
}

func mustBeWellFormed(op string, frame types.Frame) {
	if !frame.Valid() {
		panic(&ContractError{Op: op, Err: ErrMalformedFrame})
	}
}
