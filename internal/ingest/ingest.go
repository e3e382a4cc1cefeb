package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"

	"daltonize-go/internal/types"
)

const (
	CodecCBOR    = "cbor"
	CodecMsgpack = "msgpack"
)

// MaxDimension bounds the width and height of an ingested frame.
const MaxDimension = 1 << 14

// RawRecorder receives every message before it is decoded.
type RawRecorder interface {
	Record(payload []byte) error
}

type Options struct {
	Endpoint string
	Codec    string
	// LogEvery throttles decode error logs to one in every N.
	LogEvery int
	Recorder RawRecorder
}

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
	logCounter     atomic.Uint64
)

// DecodeFailures is the number of messages dropped since start.
func DecodeFailures() uint64 {
	return decodeFailures.Load()
}

// DecodeTiming returns the number of decoded messages and the total time
// spent decoding them.
func DecodeTiming() (uint64, uint64) {
	return decodeCount.Load(), decodeNanos.Load()
}

// Stream connects a PULL socket to opts.Endpoint and emits decoded
// messages until ctx is done. Message layout:
//
//	{ "type": "image", "seq": <uint>, "width": <int>, "height": <int>, "data": <RGB bytes | tag 40 array> }
//	{ "type": "start" | "end", ...metadata }
func Stream(ctx context.Context, opts Options) (<-chan types.RawMessage, error) {
	if opts.LogEvery < 1 {
		opts.LogEvery = 1
	}
	if opts.Codec == "" {
		opts.Codec = CodecCBOR
	}
	if opts.Codec != CodecCBOR && opts.Codec != CodecMsgpack {
		return nil, fmt.Errorf("unsupported codec %q", opts.Codec)
	}

	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, fmt.Errorf("create zmq socket: %w", err)
	}
	// A receive timeout lets the loop notice ctx cancellation.
	if err := socket.SetRcvtimeo(250 * time.Millisecond); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("set zmq receive timeout: %w", err)
	}
	if err := socket.Connect(opts.Endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("connect %s: %w", opts.Endpoint, err)
	}
	slog.Info("ingest: connected", "endpoint", opts.Endpoint, "codec", opts.Codec)

	out := make(chan types.RawMessage, 16)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				logEveryN(opts.LogEvery, "ingest: recv error", "error", err)
				continue
			}
			if opts.Recorder != nil {
				if err := opts.Recorder.Record(msg); err != nil {
					logEveryN(opts.LogEvery, "ingest: raw log write failed", "error", err)
				}
			}

			raw, ok := DecodeMessage(msg, opts.Codec, opts.LogEvery)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- raw:
			}
		}
	}()

	return out, nil
}

// DecodeMessage decodes one wire message. Failures are counted and logged
// at most once every logEvery calls.
func DecodeMessage(msg []byte, codec string, logEvery int) (types.RawMessage, bool) {
	start := time.Now()
	raw, err := decode(msg, codec)
	decodeCount.Add(1)
	decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest: decode skipped message", "codec", codec, "error", err)
		return types.RawMessage{}, false
	}
	return raw, true
}

func decode(msg []byte, codec string) (types.RawMessage, error) {
	var payload map[string]any
	var err error
	switch codec {
	case CodecMsgpack:
		err = msgpack.Unmarshal(msg, &payload)
	default:
		err = cbor.Unmarshal(msg, &payload)
	}
	if err != nil {
		return types.RawMessage{}, fmt.Errorf("%s decode: %w", codec, err)
	}

	msgType, _ := payload["type"].(string)
	switch msgType {
	case "image":
		frame, err := decodeImage(payload)
		if err != nil {
			return types.RawMessage{}, err
		}
		return types.RawMessage{Type: msgType, Image: frame}, nil
	case "start", "end":
		meta := make(map[string]any, len(payload))
		for k, v := range payload {
			if k != "type" {
				meta[k] = v
			}
		}
		return types.RawMessage{Type: msgType, Meta: meta}, nil
	default:
		return types.RawMessage{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func decodeImage(payload map[string]any) (types.Frame, error) {
	seq, err := toInt(payload["seq"])
	if err != nil || seq < 0 {
		return types.Frame{}, fmt.Errorf("invalid seq: %v", payload["seq"])
	}
	width, err := toInt(payload["width"])
	if err != nil {
		return types.Frame{}, fmt.Errorf("invalid width: %w", err)
	}
	height, err := toInt(payload["height"])
	if err != nil {
		return types.Frame{}, fmt.Errorf("invalid height: %w", err)
	}
	if width < 0 || height < 0 || width > MaxDimension || height > MaxDimension {
		return types.Frame{}, fmt.Errorf("frame size %dx%d out of range", width, height)
	}

	var pix []byte
	switch data := payload["data"].(type) {
	case []byte:
		pix = data
	case cbor.Tag:
		rows, cols, flat, err := decodeMultiDimArray(data)
		if err != nil {
			return types.Frame{}, err
		}
		if rows != height || cols != width*3 {
			return types.Frame{}, fmt.Errorf("array shape %dx%d does not match %dx%d RGB frame", rows, cols, width, height)
		}
		pix = flat
	default:
		return types.Frame{}, fmt.Errorf("unsupported data field %T", payload["data"])
	}

	frame := types.Frame{
		Seq:       uint64(seq),
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Pix:       pix,
	}
	if !frame.Valid() {
		return types.Frame{}, fmt.Errorf("frame data has %d bytes, want %d", len(pix), width*height*3)
	}
	return frame, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, fmt.Errorf("integer %d out of range", n)
		}
		return int(n), nil
	case float64:
		if math.IsNaN(n) || n < math.MinInt || n >= math.MaxInt {
			return 0, fmt.Errorf("integer %v out of range", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func logEveryN(n int, msg string, args ...any) {
	if logCounter.Add(1)%uint64(n) == 0 {
		slog.Warn(msg, args...)
	}
}
