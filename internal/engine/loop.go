// ABOUTME: The streaming loop: decode, classify, write to hardware
// ABOUTME: One goroutine per play call, tied to its session's private flags
package engine

import (
	"errors"
	"io"
	"log"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/clearwave-audio/clearwave-go/internal/audio"
	"github.com/clearwave-audio/clearwave-go/internal/decode"
	"github.com/clearwave-audio/clearwave-go/internal/device"
	"github.com/clearwave-audio/clearwave-go/internal/spectrum"
)

const (
	pausePoll = 20 * time.Millisecond

	openRetryMax       = 10
	openRetryDelay     = 100 * time.Millisecond
	openRetrySlowAfter = 5
	openRetrySlowDelay = 500 * time.Millisecond
)

// Reasons published in status when a stream aborts.
const (
	reasonDeviceOpenFailed = "device open failed"
	reasonWriteFailed      = "device write failed"
	reasonSourceRejected   = "source not supported for bit-perfect playback"
)

// stream is the playback loop for one session. It owns the decoder and
// the device stream; cleanup always happens on this goroutine's exit
// path, including on errors.
func (e *Engine) stream(s *session) {
	log.Printf("Playback loop started: session=%s path=%s", s.id, s.track.Path)

	dec, err := e.openSource(s.track.Path)
	if err != nil {
		log.Printf("Source open failed: %v", err)
		e.endSession(s, reasonSourceRejected)
		return
	}
	defer dec.Close()

	info := dec.Info()
	log.Printf("Source info: channels=%d rate=%d subtype=%s frames=%d",
		info.Channels, info.SampleRate, info.Encoding, info.TotalFrames)

	e.mu.Lock()
	if e.sess == s {
		s.duration = info.Duration()
		s.sampleRate = info.SampleRate
		s.channels = info.Channels
		s.bitDepth = info.Encoding.BitDepth()
		// A seek accepted before the duration was known could not be
		// clamped; correct the visible position now.
		if s.duration > 0 && s.position > s.duration {
			s.position = s.duration
		}
	}
	e.mu.Unlock()

	mapping, err := audio.MapEncoding(info.Encoding)
	if err != nil {
		log.Printf("Source rejected: %v", err)
		e.endSession(s, reasonSourceRejected)
		return
	}

	stream, err := e.openDeviceWithRetry(s, info, mapping)
	if err != nil {
		if !s.stopped() {
			log.Printf("Device open failed after retries: %v", err)
		}
		e.endSession(s, reasonDeviceOpenFailed)
		return
	}
	defer stream.Close()

	// The verdict is computed fresh for every stream open; it certifies
	// the configuration, not the analog path.
	dev := device.Device{ID: s.deviceID, Exclusive: device.IsExclusive(s.deviceID)}
	verdict := audio.Classify(dev, info.Encoding)
	e.mu.Lock()
	if e.sess == s {
		e.bitPerfect = verdict.BitPerfect
		e.bitPerfectReason = verdict.Reason
	}
	e.mu.Unlock()
	log.Printf("Bit-perfect verdict: %v %s", verdict.BitPerfect, verdict.Reason)

	e.runLoop(s, dec, stream, info)
}

// openDeviceWithRetry opens the output device with a bounded backoff
// schedule. Transient failures (a busy device during a track switch) are
// retried; exhausting the schedule surfaces ErrDeviceUnavailable.
func (e *Engine) openDeviceWithRetry(s *session, info decode.Info, mapping audio.Mapping) (device.Stream, error) {
	var lastErr error

	for attempt := 1; attempt <= e.retryMax; attempt++ {
		if s.stopped() {
			return nil, s.ctx.Err()
		}

		stream, err := e.backend.Open(s.deviceID, info.Channels, info.SampleRate, mapping.DeviceFormat, e.periodFrames)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		log.Printf("Device open attempt %d/%d failed: %v", attempt, e.retryMax, err)

		delay := e.retryFast
		if attempt >= openRetrySlowAfter {
			delay = e.retrySlow
		}
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, errors.Join(ErrDeviceUnavailable, lastErr)
}

// runLoop pumps frames from the decoder to the device until stop, EOF or
// a write failure.
func (e *Engine) runLoop(s *session, dec decode.Decoder, stream device.Stream, info decode.Info) {
	buf := &goaudio.IntBuffer{Data: make([]int, e.periodFrames*info.Channels)}
	rate := float64(info.SampleRate)
	reason := ""

	// A seek issued before the device finished opening applies first.
	e.applySeek(s, dec, info)

	for {
		if s.stopped() {
			break
		}
		if s.paused.Load() {
			time.Sleep(pausePoll)
			continue
		}

		e.applySeek(s, dec, info)

		n, err := dec.ReadFrames(buf)
		if n == 0 {
			if err != nil && err != io.EOF {
				log.Printf("Decode error, ending stream: %v", err)
				reason = reasonSourceRejected
			} else {
				log.Printf("Reached EOF: session=%s", s.id)
			}
			break
		}

		block := buf.Data[:n*info.Channels]

		// Best-effort copy to the analyzer; playback never blocks on or
		// fails because of the visualization side.
		if e.sink != nil {
			cp := make([]int, len(block))
			copy(cp, block)
			e.sink.Push(spectrum.Block{
				Samples:    cp,
				Channels:   info.Channels,
				BitDepth:   info.Encoding.BitDepth(),
				SampleRate: info.SampleRate,
			})
		}

		if werr := stream.Write(audio.PackSamples(block, info.Encoding)); werr != nil {
			// A failed write means the device went away; not retried.
			log.Printf("Device write failed, ending stream: %v", werr)
			reason = reasonWriteFailed
			break
		}

		e.publishPosition(s, float64(dec.Position())/rate)
	}

	e.endSession(s, reason)
}

// applySeek consumes a pending seek target, repositions the decode
// cursor and republishes the corrected position.
func (e *Engine) applySeek(s *session, dec decode.Decoder, info decode.Info) {
	target, ok := s.takeSeek()
	if !ok {
		return
	}

	frame := int64(target * float64(info.SampleRate))
	if frame < 0 {
		frame = 0
	}
	if info.TotalFrames > 0 && frame > info.TotalFrames {
		frame = info.TotalFrames
	}

	pos, err := dec.Seek(frame)
	if err != nil {
		log.Printf("Seek to %.2fs failed: %v", target, err)
		return
	}
	e.publishPosition(s, float64(pos)/float64(info.SampleRate))
}

// publishPosition updates the externally visible position, clamped so it
// never exceeds the duration.
func (e *Engine) publishPosition(s *session, seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != s {
		return
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}
	s.position = seconds
}

// endSession tears down the engine-side state for a finished loop. If a
// newer play call already replaced the session, the engine state belongs
// to the new stream and is left alone.
func (e *Engine) endSession(s *session, failReason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != s {
		log.Printf("Playback loop finished (superseded): session=%s", s.id)
		return
	}

	if s.explicitStop.Load() {
		e.state = StateStopped
	} else {
		e.state = StateIdle
	}
	e.sess = nil
	e.bitPerfect = false
	e.bitPerfectReason = failReason
	log.Printf("Playback loop finished: session=%s state=%s", s.id, e.state)
}
