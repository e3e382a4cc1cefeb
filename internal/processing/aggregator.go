package processing

import (
	"errors"
	"sync"
	"time"

	"daltonize-go/internal/types"
)

// ErrNoFrame is returned when a capture or preview is requested before the
// first frame has been processed.
var ErrNoFrame = errors.New("no frame processed yet")

// ChannelStats are per-channel means of the last processed frame.
type ChannelStats struct {
	Original [3]float64 `json:"original"`
	Output   [3]float64 `json:"output"`
}

// Aggregator keeps the most recent result for capture and preview, along
// with running counters. Safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	latest     Result
	hasLatest  bool
	frameCount uint64
	totalTime  time.Duration
	stats      ChannelStats
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddResult records r if it is newer than the current result. Workers can
// finish out of order; an older frame never replaces a newer one.
func (a *Aggregator) AddResult(r Result) bool {
	stats := ChannelStats{
		Original: channelMeans(r.Original),
		Output:   channelMeans(r.Output),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frameCount++
	a.totalTime += r.Duration
	if a.hasLatest && r.Original.Seq < a.latest.Original.Seq {
		return false
	}
	a.latest = r
	a.hasLatest = true
	a.stats = stats
	return true
}

// Latest returns the most recent result, if any.
func (a *Aggregator) Latest() (Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest, a.hasLatest
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest = Result{}
	a.hasLatest = false
	a.frameCount = 0
	a.totalTime = 0
	a.stats = ChannelStats{}
}

// Snapshot returns counters suitable for a status payload.
func (a *Aggregator) Snapshot() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	avg := time.Duration(0)
	if a.frameCount > 0 {
		avg = a.totalTime / time.Duration(a.frameCount)
	}
	payload := map[string]any{
		"frames_total":      a.frameCount,
		"avg_process_nanos": avg.Nanoseconds(),
		"channel_means":     a.stats,
	}
	if a.hasLatest {
		payload["last_seq"] = a.latest.Original.Seq
		payload["width"] = a.latest.Original.Width
		payload["height"] = a.latest.Original.Height
	}
	return payload
}

func channelMeans(f types.Frame) [3]float64 {
	var sum [3]uint64
	for i := 0; i+2 < len(f.Pix); i += 3 {
		sum[0] += uint64(f.Pix[i])
		sum[1] += uint64(f.Pix[i+1])
		sum[2] += uint64(f.Pix[i+2])
	}
	n := len(f.Pix) / 3
	if n == 0 {
		return [3]float64{}
	}
	return [3]float64{
		float64(sum[0]) / float64(n),
		float64(sum[1]) / float64(n),
		float64(sum[2]) / float64(n),
	}
}
