package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RawLogMagic opens every raw log file. Each record that follows is a
// little-endian uint64 unix-nano timestamp, a uint32 length and the payload.
const RawLogMagic = "DALTRAW1"

const rawRecordHeader = 12

// RawLogWriter records undecoded ingest messages for later replay.
type RawLogWriter struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	w       *bufio.Writer
	records uint64
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw log dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.bin", time.Now().Format("20060102_150405"), prefix)
	path := filepath.Join(outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create raw log: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if _, err := w.WriteString(RawLogMagic); err == nil {
		err = w.Flush()
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write raw log header: %w", err)
	}
	return &RawLogWriter{path: path, f: f, w: w}, nil
}

func (r *RawLogWriter) Path() string {
	return r.path
}

// Record appends one payload. Each record is flushed so a crash loses at
// most the message being written.
func (r *RawLogWriter) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return errors.New("raw log writer is closed")
	}
	var header [rawRecordHeader]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	r.records++
	return r.w.Flush()
}

func (r *RawLogWriter) Records() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	r.w = nil
	return errors.Join(flushErr, closeErr)
}

// ReadRawLog calls fn for each record in the log at path until fn returns
// an error or the file ends. A truncated trailing record ends the read
// without error.
func ReadRawLog(path string, fn func(ts time.Time, payload []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open raw log: %w", err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	magic := make([]byte, len(RawLogMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != RawLogMagic {
		return fmt.Errorf("unexpected raw log magic %q", string(magic))
	}

	var header [rawRecordHeader]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read record header: %w", err)
		}
		ts := time.Unix(0, int64(binary.LittleEndian.Uint64(header[:8])))
		payload := make([]byte, binary.LittleEndian.Uint32(header[8:]))
		if _, err := io.ReadFull(br, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read payload: %w", err)
		}
		if err := fn(ts, payload); err != nil {
			return err
		}
	}
}
