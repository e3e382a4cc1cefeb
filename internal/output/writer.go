package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthonynsimon/bild/imgio"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/processing"
	"daltonize-go/internal/types"
)

// CaptureWriter persists the original and filtered frames of a result.
// Safe for concurrent use.
type CaptureWriter struct {
	outputDir   string
	jpegQuality int
	saved       atomic.Uint64
	failed      atomic.Uint64

	now       func() time.Time
	mu        sync.Mutex
	lastStamp string
	repeat    int
}

func NewCaptureWriter(outputDir string, jpegQuality int) (*CaptureWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range 1-100", jpegQuality)
	}
	return &CaptureWriter{outputDir: outputDir, jpegQuality: jpegQuality, now: time.Now}, nil
}

// Save writes original_<ts>.jpg, plus <mode label>_<ts>.jpg when a mode was
// active for r, and returns the paths written. ts is the capture time;
// captures within the same microsecond get a _N suffix.
func (c *CaptureWriter) Save(r processing.Result) ([]string, error) {
	ts := c.stamp()

	files := []string{filepath.Join(c.outputDir, fmt.Sprintf("original_%s.jpg", ts))}
	frames := []types.Frame{r.Original}
	if r.Settings.Mode != colorblind.None {
		files = append(files, filepath.Join(c.outputDir, fmt.Sprintf("%s_%s.jpg", CaptureName(r.Settings), ts)))
		frames = append(frames, r.Output)
	}

	for i, frame := range frames {
		if err := c.write(files[i], frame); err != nil {
			c.failed.Add(1)
			return files[:i], err
		}
	}
	c.saved.Add(1)
	return files, nil
}

func (c *CaptureWriter) stamp() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := CaptureTimestamp(c.now())
	if ts == c.lastStamp {
		c.repeat++
		return fmt.Sprintf("%s_%d", ts, c.repeat)
	}
	c.lastStamp, c.repeat = ts, 0
	return ts
}

func (c *CaptureWriter) write(path string, frame types.Frame) error {
	img, err := frame.RGBA()
	if err != nil {
		return fmt.Errorf("RGB conversion failed: %w", err)
	}
	if err := imgio.Save(path, img, imgio.JPEGEncoder(c.jpegQuality)); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Stats returns how many captures succeeded and failed.
func (c *CaptureWriter) Stats() (saved, failed uint64) {
	return c.saved.Load(), c.failed.Load()
}

// CaptureName is the file name stem for the filtered image of s.
func CaptureName(s colorblind.Settings) string {
	name := s.Mode.Label()
	if s.Correction {
		name += " corrected"
	}
	return strings.NewReplacer("/", "-", ":", "_").Replace(name)
}

// CaptureTimestamp formats t (or now, if zero) without characters that
// are unsafe in file names.
func CaptureTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("2006-01-02 15_04_05.000000")
}
