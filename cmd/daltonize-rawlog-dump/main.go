package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"daltonize-go/internal/ingest"
	"daltonize-go/internal/output"
)

var errLimit = errors.New("limit reached")

func main() {
	var (
		path    = flag.String("path", "", "Path to rawlog .bin file")
		codec   = flag.String("codec", ingest.CodecCBOR, "Message codec: cbor or msgpack")
		limit   = flag.Int("limit", 1, "Number of records to dump (0 = all)")
		summary = flag.Bool("summary", false, "Print one line per decoded message instead of JSON")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	count := 0
	var images, meta, failed int
	err := output.ReadRawLog(*path, func(ts time.Time, payload []byte) error {
		if *limit > 0 && count >= *limit {
			return errLimit
		}
		defer func() { count++ }()

		if len(payload) == 0 {
			log.Printf("record %d: empty payload", count)
			return nil
		}

		if *summary {
			raw, ok := ingest.DecodeMessage(payload, *codec, 1)
			if !ok {
				failed++
				fmt.Printf("%d\t%s\tundecodable\t%d bytes\n", count, ts.Format(time.RFC3339Nano), len(payload))
				return nil
			}
			if raw.Type == "image" {
				images++
				fmt.Printf("%d\t%s\timage\tseq=%d\t%dx%d\n", count, ts.Format(time.RFC3339Nano), raw.Image.Seq, raw.Image.Width, raw.Image.Height)
			} else {
				meta++
				fmt.Printf("%d\t%s\t%s\t%d keys\n", count, ts.Format(time.RFC3339Nano), raw.Type, len(raw.Meta))
			}
			return nil
		}

		decoded, err := decodeGeneric(payload, *codec)
		if err != nil {
			log.Printf("record %d: %s decode error: %v", count, *codec, err)
			return nil
		}
		pretty, err := json.MarshalIndent(output.NormalizeJSONValue(decoded), "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", count, err)
			return nil
		}
		log.Printf("record %d timestamp=%s size=%d", count, ts.Format(time.RFC3339Nano), len(payload))
		fmt.Println(string(pretty))
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		log.Fatalf("read rawlog: %v", err)
	}
	if *summary {
		fmt.Printf("summary: records=%d image=%d meta=%d undecodable=%d\n", count, images, meta, failed)
	}
}

func decodeGeneric(payload []byte, codec string) (any, error) {
	var decoded any
	var err error
	switch codec {
	case ingest.CodecMsgpack:
		err = msgpack.Unmarshal(payload, &decoded)
	case ingest.CodecCBOR:
		err = cbor.Unmarshal(payload, &decoded)
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
	return decoded, err
}
