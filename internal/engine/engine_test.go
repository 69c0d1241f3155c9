// ABOUTME: Tests for the playback controller
// ABOUTME: Fake backend and decoder drive the state machine through its races
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/clearwave-audio/clearwave-go/internal/audio"
	"github.com/clearwave-audio/clearwave-go/internal/decode"
	"github.com/clearwave-audio/clearwave-go/internal/device"
	"github.com/clearwave-audio/clearwave-go/internal/library"
)

type fakeStream struct {
	mu        sync.Mutex
	delay     time.Duration
	failAfter int // error on writes past this count; 0 means never
	writes    int
	bytes     int
	closed    bool
}

func (s *fakeStream) Write(p []byte) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrDeviceGone
	}
	s.writes++
	if s.failAfter > 0 && s.writes > s.failAfter {
		return device.ErrDeviceGone
	}
	s.bytes += len(p)
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeBackend struct {
	mu         sync.Mutex
	devices    []device.Device
	failOpens  int // leading opens that fail with ErrDeviceBusy
	delay      time.Duration
	failWrites int
	opens      []string
	streams    []*fakeStream
}

func (b *fakeBackend) ListDevices() ([]device.Device, error) {
	return b.devices, nil
}

func (b *fakeBackend) Open(deviceID string, channels, sampleRate int, format device.SampleFormat, periodFrames int) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens = append(b.opens, deviceID)
	if len(b.opens) <= b.failOpens {
		return nil, device.ErrDeviceBusy
	}
	st := &fakeStream{delay: b.delay, failAfter: b.failWrites}
	b.streams = append(b.streams, st)
	return st, nil
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opens)
}

func (b *fakeBackend) stream(i int) *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.streams) {
		return nil
	}
	return b.streams[i]
}

// fakeDecoder produces frames whose sample value equals the frame index,
// so repositioning is observable in the output.
type fakeDecoder struct {
	mu       sync.Mutex
	channels int
	rate     int
	enc      audio.Encoding
	total    int64
	pos      int64
	starts   []int64
	seeks    []int64
}

func (d *fakeDecoder) Info() decode.Info {
	return decode.Info{Channels: d.channels, SampleRate: d.rate, Encoding: d.enc, TotalFrames: d.total}
}

func (d *fakeDecoder) ReadFrames(buf *goaudio.IntBuffer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos >= d.total {
		return 0, io.EOF
	}
	d.starts = append(d.starts, d.pos)

	frames := len(buf.Data) / d.channels
	if rem := d.total - d.pos; int64(frames) > rem {
		frames = int(rem)
	}
	for i := 0; i < frames*d.channels; i++ {
		buf.Data[i] = int(d.pos) + i/d.channels
	}
	buf.SourceBitDepth = d.enc.BitDepth()
	d.pos += int64(frames)
	return frames, nil
}

func (d *fakeDecoder) Seek(frame int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if frame < 0 {
		frame = 0
	}
	if frame > d.total {
		frame = d.total
	}
	d.seeks = append(d.seeks, frame)
	d.pos = frame
	return frame, nil
}

func (d *fakeDecoder) Position() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *fakeDecoder) Close() error { return nil }

func (d *fakeDecoder) seekTargets() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, len(d.seeks))
	copy(out, d.seeks)
	return out
}

func (d *fakeDecoder) readStarts() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, len(d.starts))
	copy(out, d.starts)
	return out
}

// newTestLibrary creates a folder of empty placeholder files just so the
// library hands out track ids; decoding is faked in these tests.
func newTestLibrary(t *testing.T, tracks int) *library.Library {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < tracks; i++ {
		path := filepath.Join(dir, fmt.Sprintf("track%02d.wav", i))
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	lib, err := library.New(dir)
	if err != nil {
		t.Fatalf("library scan failed: %v", err)
	}
	return lib
}

func newTestEngine(t *testing.T, backend *fakeBackend, open func(string) (decode.Decoder, error), tracks int) *Engine {
	t.Helper()
	e := New(Config{
		Library:    newTestLibrary(t, tracks),
		Backend:    backend,
		DeviceID:   "hw:0,0",
		OpenSource: open,
	})
	e.retryFast = time.Millisecond
	e.retrySlow = time.Millisecond
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayUnknownTrack(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{}, nil, 1)
	if err := e.Play(99); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
	if st := e.Status(); st.State != StateIdle || st.TrackID != -1 {
		t.Errorf("expected idle with no track, got %+v", st)
	}
}

func TestPlayToCompletion(t *testing.T) {
	backend := &fakeBackend{}
	dec := &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: 4 * DefaultPeriodFrames}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if st := e.Status(); st.State != StatePlaying || st.TrackID != 0 {
		t.Fatalf("expected playing track 0 right after Play, got %+v", st)
	}

	waitFor(t, "playback to drain", func() bool { return e.Status().State == StateIdle })

	if got := backend.openCount(); got != 1 {
		t.Errorf("expected a single device open, got %d", got)
	}
	st := backend.stream(0)
	if st == nil || !st.isClosed() {
		t.Error("expected the device stream to be closed after EOF")
	}
	wantBytes := int(dec.total) * dec.channels * 2
	if st.bytes != wantBytes {
		t.Errorf("expected %d bytes written, got %d", wantBytes, st.bytes)
	}
	if reason := e.Status().BitPerfectReason; reason != "" {
		t.Errorf("clean EOF should not leave a failure reason, got %q", reason)
	}
}

func TestPlaySupersedesPriorSession(t *testing.T) {
	backend := &fakeBackend{delay: 5 * time.Millisecond}
	open := func(string) (decode.Decoder, error) {
		return &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: 1 << 30}, nil
	}
	e := newTestEngine(t, backend, open, 2)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "first stream to start writing", func() bool {
		s := backend.stream(0)
		return s != nil && s.writeCount() > 0
	})

	if err := e.Play(1); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}

	waitFor(t, "first stream to close", func() bool {
		return backend.stream(0).isClosed()
	})
	waitFor(t, "second stream to take over", func() bool {
		s := backend.stream(1)
		return s != nil && s.writeCount() > 0
	})

	st := e.Status()
	if st.State != StatePlaying || st.TrackID != 1 {
		t.Errorf("expected track 1 playing after switch, got %+v", st)
	}
	if got := backend.openCount(); got != 2 {
		t.Errorf("expected exactly 2 device opens, got %d", got)
	}

	e.Stop()
	waitFor(t, "second stream to close", func() bool { return backend.stream(1).isClosed() })
}

func TestPauseResume(t *testing.T) {
	backend := &fakeBackend{delay: 2 * time.Millisecond}
	dec := &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: 1 << 30}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "stream to start writing", func() bool {
		s := backend.stream(0)
		return s != nil && s.writeCount() > 0
	})

	e.Pause()
	if st := e.Status(); st.State != StatePaused || st.TrackID != 0 {
		t.Fatalf("expected paused on track 0, got %+v", st)
	}

	// Let any in-flight write land, then verify the loop is quiescent.
	time.Sleep(50 * time.Millisecond)
	before := backend.stream(0).writeCount()
	pos := e.Position()
	time.Sleep(80 * time.Millisecond)
	if after := backend.stream(0).writeCount(); after != before {
		t.Errorf("writes continued while paused: %d -> %d", before, after)
	}
	if got := e.Position(); got != pos {
		t.Errorf("position moved while paused: %f -> %f", pos, got)
	}

	e.Resume()
	if st := e.Status(); st.State != StatePlaying || st.TrackID != 0 {
		t.Fatalf("expected playing after resume, got %+v", st)
	}
	waitFor(t, "writes to resume", func() bool {
		return backend.stream(0).writeCount() > before
	})

	e.Stop()
	waitFor(t, "stream to close", func() bool { return backend.stream(0).isClosed() })
}

func TestStopDoesNotBlock(t *testing.T) {
	backend := &fakeBackend{delay: 20 * time.Millisecond}
	dec := &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: 1 << 30}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "stream to start writing", func() bool {
		s := backend.stream(0)
		return s != nil && s.writeCount() > 0
	})

	start := time.Now()
	e.Stop()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Stop blocked for %v", elapsed)
	}
	if st := e.Status(); st.State != StateStopped {
		t.Fatalf("expected stopped immediately, got %+v", st)
	}

	waitFor(t, "stream to close", func() bool { return backend.stream(0).isClosed() })
	waitFor(t, "session teardown", func() bool { return e.Status().TrackID == -1 })
	if st := e.Status(); st.State != StateStopped {
		t.Errorf("explicit stop should land in stopped, got %+v", st)
	}
}

func TestSeekWhilePaused(t *testing.T) {
	backend := &fakeBackend{delay: 2 * time.Millisecond}
	dec := &fakeDecoder{channels: 1, rate: 44100, enc: audio.EncodingPCM16, total: 100 * 44100}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "stream to start writing", func() bool {
		s := backend.stream(0)
		return s != nil && s.writeCount() > 0
	})

	e.Pause()
	time.Sleep(50 * time.Millisecond)

	e.Seek(5)
	if got := e.Position(); got != 5 {
		t.Fatalf("expected position 5 immediately after Seek, got %f", got)
	}

	e.Resume()
	wantFrame := int64(5 * 44100)
	waitFor(t, "decoder repositioning", func() bool {
		for _, f := range dec.seekTargets() {
			if f == wantFrame {
				return true
			}
		}
		return false
	})
	waitFor(t, "a read at the seek target", func() bool {
		for _, s := range dec.readStarts() {
			if s == wantFrame {
				return true
			}
		}
		return false
	})
	waitFor(t, "position to advance past the target", func() bool { return e.Position() >= 5 })

	e.Stop()
	waitFor(t, "stream to close", func() bool { return backend.stream(0).isClosed() })
}

func TestSeekClampsToDuration(t *testing.T) {
	backend := &fakeBackend{delay: 2 * time.Millisecond}
	dec := &fakeDecoder{channels: 1, rate: 44100, enc: audio.EncodingPCM16, total: 10 * 44100}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "duration to publish", func() bool { return e.Duration() > 0 })

	e.Pause()
	time.Sleep(50 * time.Millisecond)

	e.Seek(9999)
	if got := e.Position(); got != 10 {
		t.Errorf("expected clamp to duration 10, got %f", got)
	}
	e.Seek(-3)
	if got := e.Position(); got != 0 {
		t.Errorf("expected clamp to 0, got %f", got)
	}

	e.Stop()
	waitFor(t, "stream to close", func() bool { return backend.stream(0).isClosed() })
}

func TestSeekBeforeDurationIsClamped(t *testing.T) {
	backend := &fakeBackend{delay: 2 * time.Millisecond}
	dec := &fakeDecoder{channels: 1, rate: 44100, enc: audio.EncodingPCM16, total: 10 * 44100}
	gate := make(chan struct{})
	open := func(string) (decode.Decoder, error) {
		<-gate
		return dec, nil
	}
	e := newTestEngine(t, backend, open, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	// The source has not opened yet, so the duration is still unknown and
	// the seek target cannot be clamped.
	e.Seek(9999)
	if got := e.Position(); got != 9999 {
		t.Fatalf("expected the seek to be visible immediately, got %f", got)
	}

	close(gate)
	waitFor(t, "duration to publish", func() bool { return e.Duration() > 0 })
	if pos, dur := e.Position(), e.Duration(); pos > dur {
		t.Errorf("position %f exceeds duration %f", pos, dur)
	}

	e.Stop()
	waitFor(t, "session teardown", func() bool { return e.Status().TrackID == -1 })
}

func TestDeviceOpenRetryExhaustion(t *testing.T) {
	backend := &fakeBackend{failOpens: 1 << 30}
	dec := &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: 44100}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	waitFor(t, "retry exhaustion", func() bool { return e.Status().State == StateIdle })

	if got := backend.openCount(); got != openRetryMax {
		t.Errorf("expected %d open attempts, got %d", openRetryMax, got)
	}
	st := e.Status()
	if st.BitPerfectReason != reasonDeviceOpenFailed {
		t.Errorf("expected reason %q, got %q", reasonDeviceOpenFailed, st.BitPerfectReason)
	}
	if st.BitPerfect {
		t.Error("a failed open must not report bit-perfect")
	}
}

func TestDeviceOpenRetriesThroughBusy(t *testing.T) {
	backend := &fakeBackend{failOpens: 3}
	dec := &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: DefaultPeriodFrames}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "playback to drain", func() bool { return e.Status().State == StateIdle })

	if got := backend.openCount(); got != 4 {
		t.Errorf("expected 4 open attempts, got %d", got)
	}
	if s := backend.stream(0); s == nil || s.writeCount() == 0 {
		t.Error("expected writes after the device came back")
	}
}

func TestWriteFailureEndsStream(t *testing.T) {
	backend := &fakeBackend{failWrites: 2}
	dec := &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: 1 << 30}
	e := newTestEngine(t, backend, func(string) (decode.Decoder, error) { return dec, nil }, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "write failure teardown", func() bool { return e.Status().State == StateIdle })

	st := e.Status()
	if st.BitPerfectReason != reasonWriteFailed {
		t.Errorf("expected reason %q, got %q", reasonWriteFailed, st.BitPerfectReason)
	}
	if st.BitPerfect {
		t.Error("a dead device must not report bit-perfect")
	}
	waitFor(t, "stream to close", func() bool { return backend.stream(0).isClosed() })
}

func TestSourceOpenFailure(t *testing.T) {
	backend := &fakeBackend{}
	open := func(string) (decode.Decoder, error) {
		return nil, fmt.Errorf("probe: %w", audio.ErrUnsupportedFormat)
	}
	e := newTestEngine(t, backend, open, 1)

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "source rejection", func() bool { return e.Status().State == StateIdle })

	if reason := e.Status().BitPerfectReason; reason != reasonSourceRejected {
		t.Errorf("expected reason %q, got %q", reasonSourceRejected, reason)
	}
	if backend.openCount() != 0 {
		t.Error("device must not be opened for a rejected source")
	}
}

func TestSetOutputDeviceHookAndNextOpen(t *testing.T) {
	backend := &fakeBackend{delay: 2 * time.Millisecond}
	dec := func(string) (decode.Decoder, error) {
		return &fakeDecoder{channels: 2, rate: 44100, enc: audio.EncodingPCM16, total: 1 << 30}, nil
	}

	var hooked string
	lib := newTestLibrary(t, 2)
	e := New(Config{
		Library:        lib,
		Backend:        backend,
		DeviceID:       "hw:0,0",
		OpenSource:     dec,
		OnDeviceChange: func(id string) { hooked = id },
	})
	e.retryFast = time.Millisecond
	e.retrySlow = time.Millisecond

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "first open", func() bool { return backend.openCount() == 1 })

	e.SetOutputDevice("hw:1,0")
	if hooked != "hw:1,0" {
		t.Errorf("expected change hook to fire with hw:1,0, got %q", hooked)
	}
	if e.OutputDevice() != "hw:1,0" {
		t.Errorf("expected configured device hw:1,0, got %q", e.OutputDevice())
	}

	// The running stream keeps its device; the next play uses the new one.
	if s := backend.stream(0); s.isClosed() {
		t.Error("device change must not interrupt the current stream")
	}

	if err := e.Play(1); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}
	waitFor(t, "second open", func() bool { return backend.openCount() == 2 })
	backend.mu.Lock()
	second := backend.opens[1]
	backend.mu.Unlock()
	if second != "hw:1,0" {
		t.Errorf("expected second open on hw:1,0, got %q", second)
	}

	e.Stop()
	waitFor(t, "streams to close", func() bool { return backend.stream(1).isClosed() })
}

// writeWAV builds a canonical 44-byte header PCM WAV fixture.
func writeWAV(t *testing.T, path string, channels, sampleRate, bitDepth int, frames int) {
	t.Helper()

	bytesPerSample := bitDepth / 8
	dataLen := frames * channels * bytesPerSample

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitDepth))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if err := os.WriteFile(path, append(header, make([]byte, dataLen)...), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
}

func TestBitPerfectVerdictExclusiveDevice(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "cd.wav"), 2, 44100, 16, 44100)
	lib, err := library.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{delay: 5 * time.Millisecond}
	e := New(Config{Library: lib, Backend: backend, DeviceID: "hw:1,0"})
	e.retryFast = time.Millisecond
	e.retrySlow = time.Millisecond

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "bit-perfect verdict", func() bool {
		st := e.Status()
		return st.State == StatePlaying && st.BitPerfect
	})

	st := e.Status()
	if st.SampleRate != 44100 || st.BitDepth != 16 || st.Channels != 2 {
		t.Errorf("unexpected source format in status: %+v", st)
	}
	if st.BitPerfectReason != "" {
		t.Errorf("bit-perfect path should carry no reason, got %q", st.BitPerfectReason)
	}

	e.Stop()
	waitFor(t, "stream to close", func() bool {
		s := backend.stream(0)
		return s != nil && s.isClosed()
	})
}

func TestBitPerfectVerdictConvertingDevice(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "hires.wav"), 2, 96000, 24, 96000)
	lib, err := library.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{delay: 5 * time.Millisecond}
	e := New(Config{Library: lib, Backend: backend, DeviceID: "plughw:1,0"})
	e.retryFast = time.Millisecond
	e.retrySlow = time.Millisecond

	if err := e.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "converting verdict", func() bool {
		st := e.Status()
		return st.State == StatePlaying && st.BitPerfectReason != ""
	})

	st := e.Status()
	if st.BitPerfect {
		t.Error("plughw device must not report bit-perfect")
	}
	if !strings.Contains(st.BitPerfectReason, "plughw:1,0") {
		t.Errorf("expected the reason to name the device, got %q", st.BitPerfectReason)
	}
	if st.BitDepth != 24 || st.SampleRate != 96000 {
		t.Errorf("unexpected source format in status: %+v", st)
	}

	e.Stop()
	waitFor(t, "stream to close", func() bool {
		s := backend.stream(0)
		return s != nil && s.isClosed()
	})
}
