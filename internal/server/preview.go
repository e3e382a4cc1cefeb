package server

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"daltonize-go/internal/types"
)

// EncodePreview renders frame as a JPEG no wider than maxWidth, keeping
// the aspect ratio. maxWidth <= 0 keeps the full size.
func EncodePreview(frame types.Frame, maxWidth, quality int) ([]byte, error) {
	img, err := frame.RGBA()
	if err != nil {
		return nil, err
	}

	var src image.Image = img
	if maxWidth > 0 && frame.Width > maxWidth {
		h := frame.Height * maxWidth / frame.Width
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// frameMessageBytes is the binary websocket layout: 8-byte big-endian
// sequence number followed by the JPEG.
func frameMessageBytes(m types.FrameMessage) []byte {
	out := make([]byte, 8+len(m.JPEG))
	binary.BigEndian.PutUint64(out, m.Seq)
	copy(out[8:], m.JPEG)
	return out
}
