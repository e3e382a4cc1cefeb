package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16BE      = 65
	tagUint16LE      = 69
)

// decodeMultiDimArray unpacks a tag 40 array of shape [rows, cols] or
// [rows, cols, 3] into row-major bytes, returning the shape folded to
// [rows, cols*channels]. 16-bit samples are reduced to their high byte.
func decodeMultiDimArray(tag cbor.Tag) (int, int, []byte, error) {
	if tag.Number != tagMultiDimArray {
		return 0, 0, nil, fmt.Errorf("expected multidim tag 40, got %d", tag.Number)
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return 0, 0, nil, errors.New("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) < 2 || len(dimsRaw) > 3 {
		return 0, 0, nil, errors.New("invalid multidim dimensions")
	}
	dims := make([]int, len(dimsRaw))
	for i, d := range dimsRaw {
		n, err := toInt(d)
		if err != nil {
			return 0, 0, nil, err
		}
		if n < 0 || n > MaxDimension*3 {
			return 0, 0, nil, fmt.Errorf("dimension %d out of range", n)
		}
		dims[i] = n
	}
	rows, cols := dims[0], dims[1]
	if len(dims) == 3 {
		if dims[2] != 3 {
			return 0, 0, nil, fmt.Errorf("expected 3 channels, got %d", dims[2])
		}
		cols *= 3
	}

	flat, err := decodeTypedArray(items[1])
	if err != nil {
		return 0, 0, nil, err
	}
	if rows*cols != len(flat) {
		return 0, 0, nil, errors.New("dimension mismatch")
	}
	return rows, cols, flat, nil
}

func decodeTypedArray(value any) ([]byte, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		if b, ok := value.([]byte); ok {
			return b, nil
		}
		return nil, errors.New("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint8:
		return data, nil
	case tagUint16LE:
		return highBytes(data, binary.LittleEndian), nil
	case tagUint16BE:
		return highBytes(data, binary.BigEndian), nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func highBytes(data []byte, order binary.ByteOrder) []byte {
	out := make([]byte, len(data)/2)
	for i := range out {
		out[i] = byte(order.Uint16(data[i*2:]) >> 8)
	}
	return out
}
