//go:build !linux || !cgo

// ABOUTME: Fallback playback backend using the oto mixing layer
// ABOUTME: Exposes a single converting device; never a bit-perfect path
package device

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
)

// otoBackend plays through the system mixer. It exists so the engine is
// usable on platforms without ALSA; it is always a converting device and
// only accepts 16-bit samples.
type otoBackend struct{}

// NewBackend returns the platform playback backend.
func NewBackend() Backend {
	return &otoBackend{}
}

func (b *otoBackend) ListDevices() ([]Device, error) {
	return []Device{
		{ID: "default", Label: "System default output [converting]", Exclusive: false},
	}, nil
}

func (b *otoBackend) Open(deviceID string, channels, sampleRate int, format SampleFormat, periodFrames int) (Stream, error) {
	if deviceID != "default" {
		return nil, fmt.Errorf("unknown device: %s", deviceID)
	}
	if format != FormatS16LE {
		return nil, fmt.Errorf("%w: default output supports S16_LE only", ErrFormatNotSettable)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	// The player pulls from a pipe; writes block once the hardware-side
	// buffer fills, which gives the streaming loop its back-pressure.
	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()

	return &otoStream{pw: pw, player: player}, nil
}

type otoStream struct {
	pw     *io.PipeWriter
	player *oto.Player
}

func (s *otoStream) Write(data []byte) error {
	if _, err := s.pw.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceGone, err)
	}
	return nil
}

func (s *otoStream) Close() error {
	_ = s.pw.Close()
	return s.player.Close()
}
