// ABOUTME: Playback controller owning the session state machine
// ABOUTME: Thread-safe control surface; streaming runs on its own goroutine
package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clearwave-audio/clearwave-go/internal/decode"
	"github.com/clearwave-audio/clearwave-go/internal/device"
	"github.com/clearwave-audio/clearwave-go/internal/library"
	"github.com/clearwave-audio/clearwave-go/internal/spectrum"
)

// State is the playback state machine position.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Errors surfaced on the control path.
var (
	ErrTrackNotFound     = errors.New("track not found")
	ErrDeviceUnavailable = errors.New("device unavailable")
)

// DefaultPeriodFrames is the playback chunk size in frames.
const DefaultPeriodFrames = 2048

// BlockSink consumes PCM block copies from the streaming loop. Push must
// never block; playback never waits on a consumer.
type BlockSink interface {
	Push(b spectrum.Block)
}

// Status is the externally visible playback snapshot.
type Status struct {
	State            State
	TrackID          int // -1 when no track is loaded
	TrackName        string
	DeviceID         string
	Position         float64
	Duration         float64
	SampleRate       int
	Channels         int
	BitDepth         int
	BitPerfect       bool
	BitPerfectReason string
}

// Config holds engine construction parameters.
type Config struct {
	Library      *library.Library
	Backend      device.Backend
	DeviceID     string
	PeriodFrames int
	Sink         BlockSink // optional spectrum consumer

	// OnDeviceChange is invoked after SetOutputDevice, outside the
	// engine lock. Used by the app shell to persist the selection.
	OnDeviceChange func(deviceID string)

	// OpenSource overrides decoder creation. Defaults to decode.Open.
	OpenSource func(path string) (decode.Decoder, error)
}

// Engine owns the playback session and serializes all access to it. The
// control path never blocks on device I/O; device open, reads and writes
// all happen on the streaming goroutine.
type Engine struct {
	mu sync.Mutex

	lib          *library.Library
	backend      device.Backend
	periodFrames int
	sink         BlockSink
	openSource   func(string) (decode.Decoder, error)
	onDevChange  func(string)

	deviceID string
	state    State
	sess     *session

	// Retry schedule for device opens, fixed except under test.
	retryMax  int
	retryFast time.Duration
	retrySlow time.Duration

	bitPerfect       bool
	bitPerfectReason string
}

// New creates an idle engine.
func New(cfg Config) *Engine {
	if cfg.PeriodFrames == 0 {
		cfg.PeriodFrames = DefaultPeriodFrames
	}
	if cfg.OpenSource == nil {
		cfg.OpenSource = decode.Open
	}
	return &Engine{
		lib:          cfg.Library,
		backend:      cfg.Backend,
		periodFrames: cfg.PeriodFrames,
		sink:         cfg.Sink,
		openSource:   cfg.OpenSource,
		onDevChange:  cfg.OnDeviceChange,
		deviceID:     cfg.DeviceID,
		state:        StateIdle,
		retryMax:     openRetryMax,
		retryFast:    openRetryDelay,
		retrySlow:    openRetrySlowDelay,
	}
}

// ListTracks returns the current library contents.
func (e *Engine) ListTracks() []library.Track {
	return e.lib.List()
}

// GetTrack looks up one track by id.
func (e *Engine) GetTrack(id int) (library.Track, error) {
	track, ok := e.lib.Get(id)
	if !ok {
		return library.Track{}, fmt.Errorf("%w: id %d", ErrTrackNotFound, id)
	}
	return track, nil
}

// Library exposes the underlying library for rescans and folder changes.
func (e *Engine) Library() *library.Library {
	return e.lib
}

// ListOutputDevices enumerates playback devices from the backend.
func (e *Engine) ListOutputDevices() ([]device.Device, error) {
	return e.backend.ListDevices()
}

// SetOutputDevice selects the device used by the next stream open. The
// currently playing stream is not touched.
func (e *Engine) SetOutputDevice(id string) {
	e.mu.Lock()
	e.deviceID = id
	hook := e.onDevChange
	e.mu.Unlock()

	log.Printf("Output device changed to %s", id)
	if hook != nil {
		hook(id)
	}
}

// OutputDevice returns the configured device id.
func (e *Engine) OutputDevice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deviceID
}

// Play starts playback of the given track. Any prior session is signaled
// to stop via its own private flag; Play never waits for it to exit.
func (e *Engine) Play(id int) error {
	track, ok := e.lib.Get(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrTrackNotFound, id)
	}

	e.mu.Lock()
	if e.sess != nil {
		e.sess.cancel()
	}
	s := newSession(track, e.deviceID)
	e.sess = s
	e.state = StatePlaying
	e.bitPerfect = false
	e.bitPerfectReason = ""
	e.mu.Unlock()

	log.Printf("Starting playback: id=%d path=%s device=%s session=%s",
		track.ID, track.Path, s.deviceID, s.id)

	go e.stream(s)
	return nil
}

// Pause suspends the streaming loop. Valid only while playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePlaying && e.sess != nil {
		e.sess.paused.Store(true)
		e.state = StatePaused
		log.Printf("Pause requested")
	}
}

// Resume clears the pause flag. Valid only while paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePaused && e.sess != nil {
		e.sess.paused.Store(false)
		e.state = StatePlaying
		log.Printf("Resume requested")
	}
}

// Stop signals the current session to stop. It does not wait for the
// streaming loop to exit, so the caller is never frozen by device
// teardown latency.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil {
		e.sess.explicitStop.Store(true)
		e.sess.paused.Store(false)
		e.sess.cancel()
	}
	e.state = StateStopped
	log.Printf("Stop requested")
}

// Seek records a seek target for the streaming loop and updates the
// visible position immediately for responsive feedback. The actual frame
// repositioning happens asynchronously in the loop.
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if e.sess.duration > 0 && seconds > e.sess.duration {
		seconds = e.sess.duration
	}
	e.sess.requestSeek(seconds)
	e.sess.position = seconds
}

// Position returns the published playback position in seconds.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return 0
	}
	return e.sess.position
}

// Duration returns the current track duration in seconds.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return 0
	}
	return e.sess.duration
}

// Status returns a consistent snapshot of the playback session.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:            e.state,
		TrackID:          -1,
		DeviceID:         e.deviceID,
		BitPerfect:       e.bitPerfect,
		BitPerfectReason: e.bitPerfectReason,
	}
	if e.sess != nil {
		st.TrackID = e.sess.track.ID
		st.TrackName = e.sess.track.Name
		st.Position = e.sess.position
		st.Duration = e.sess.duration
		st.SampleRate = e.sess.sampleRate
		st.Channels = e.sess.channels
		st.BitDepth = e.sess.bitDepth
	}
	return st
}
