// Package session holds the viewer-selected settings that the frame
// pipeline reads once per frame.
package session

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"daltonize-go/internal/colorblind"
)

// State is safe for concurrent use. Writers may run on any goroutine;
// Snapshot always returns a mode and flag that were set together.
type State struct {
	id      string
	current atomic.Pointer[colorblind.Settings]

	mu          sync.Mutex
	subscribers map[int]chan colorblind.Settings
	nextSub     int
}

func New(initial colorblind.Settings) *State {
	s := &State{
		id:          uuid.NewString(),
		subscribers: make(map[int]chan colorblind.Settings),
	}
	s.current.Store(&initial)
	return s
}

// ID identifies this session in status payloads and capture metadata.
func (s *State) ID() string {
	return s.id
}

func (s *State) Snapshot() colorblind.Settings {
	return *s.current.Load()
}

func (s *State) Set(next colorblind.Settings) {
	s.update(func(cur *colorblind.Settings) { *cur = next })
}

func (s *State) SetMode(mode colorblind.Mode) {
	s.update(func(cur *colorblind.Settings) { cur.Mode = mode })
}

func (s *State) SetCorrection(enabled bool) {
	s.update(func(cur *colorblind.Settings) { cur.Correction = enabled })
}

// update applies fn to the current settings with a compare-and-swap loop
// so a concurrent SetMode and SetCorrection never lose each other's write.
func (s *State) update(fn func(*colorblind.Settings)) {
	for {
		prev := s.current.Load()
		next := *prev
		fn(&next)
		if next == *prev {
			return
		}
		if s.current.CompareAndSwap(prev, &next) {
			slog.Info("session: settings changed",
				"mode", next.Mode.String(),
				"correction", next.Correction,
				"status", colorblind.StatusText(next),
			)
			s.notify()
			return
		}
	}
}

// Subscribe returns a channel that receives the latest settings after each
// change. Slow readers only ever see the most recent value. Call the
// returned function to unsubscribe.
func (s *State) Subscribe() (<-chan colorblind.Settings, func()) {
	ch := make(chan colorblind.Settings, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// notify sends the current value rather than the one that triggered it, so
// racing writers never leave a subscriber holding a stale value.
func (s *State) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.Snapshot()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- next:
		default:
		}
	}
}
