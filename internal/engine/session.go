// ABOUTME: Per-play playback session with private stop/pause signals
// ABOUTME: Every play() gets fresh flags so stale stops cannot kill new streams
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/clearwave-audio/clearwave-go/internal/library"
)

// session is the mutable playback unit owned by the engine while a
// stream is active. Position, duration and format fields are guarded by
// the engine mutex; the pending seek has its own lock so the control
// path never waits on file-cursor repositioning.
type session struct {
	id       string
	track    library.Track
	deviceID string

	// ctx doubles as the session's private stop signal. Canceling it is
	// non-blocking; the streaming loop observes it and exits on its own.
	ctx    context.Context
	cancel context.CancelFunc

	paused       atomic.Bool
	explicitStop atomic.Bool

	seekMu      sync.Mutex
	pendingSeek float64
	hasSeek     bool

	// Guarded by Engine.mu.
	position   float64
	duration   float64
	sampleRate int
	channels   int
	bitDepth   int
}

func newSession(track library.Track, deviceID string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:       uuid.New().String(),
		track:    track,
		deviceID: deviceID,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// stopped reports whether this session's private stop flag fired.
func (s *session) stopped() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// requestSeek records a seek target for the streaming loop to consume.
func (s *session) requestSeek(seconds float64) {
	s.seekMu.Lock()
	s.pendingSeek = seconds
	s.hasSeek = true
	s.seekMu.Unlock()
}

// takeSeek consumes and clears the pending seek target.
func (s *session) takeSeek() (float64, bool) {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	if !s.hasSeek {
		return 0, false
	}
	s.hasSeek = false
	return s.pendingSeek, true
}
