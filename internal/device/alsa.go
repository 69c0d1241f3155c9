//go:build linux && cgo

// ABOUTME: ALSA playback backend with exact hw parameter configuration
// ABOUTME: Probes hw/plughw device pairs and streams interleaved PCM blocks
package device

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <errno.h>
#include <stdlib.h>

static int openPCM(const char* device, int nonblock, snd_pcm_t** handle) {
    return snd_pcm_open(handle, device, SND_PCM_STREAM_PLAYBACK, nonblock ? SND_PCM_NONBLOCK : 0);
}

// setupPCM configures the stream with the exact requested access, format,
// channel count and rate. Only the period size is negotiated to the
// nearest supported value; everything else fails on mismatch.
static int setupPCM(snd_pcm_t* handle, unsigned int channels, unsigned int rate, int format, snd_pcm_uframes_t period) {
    snd_pcm_hw_params_t* params;
    int err;

    snd_pcm_hw_params_alloca(&params);
    if ((err = snd_pcm_hw_params_any(handle, params)) < 0) return err;
    if ((err = snd_pcm_hw_params_set_access(handle, params, SND_PCM_ACCESS_RW_INTERLEAVED)) < 0) return err;
    if ((err = snd_pcm_hw_params_set_format(handle, params, (snd_pcm_format_t)format)) < 0) return err;
    if ((err = snd_pcm_hw_params_set_channels(handle, params, channels)) < 0) return err;
    if ((err = snd_pcm_hw_params_set_rate(handle, params, rate, 0)) < 0) return err;
    if ((err = snd_pcm_hw_params_set_period_size_near(handle, params, &period, 0)) < 0) return err;
    if ((err = snd_pcm_hw_params(handle, params)) < 0) return err;
    return snd_pcm_prepare(handle);
}

static long writePCM(snd_pcm_t* handle, const void* buf, snd_pcm_uframes_t frames) {
    return snd_pcm_writei(handle, buf, frames);
}

static void closePCM(snd_pcm_t* handle) {
    if (handle != NULL) {
        snd_pcm_drain(handle);
        snd_pcm_close(handle);
    }
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

const (
	maxProbeCards   = 8
	maxProbeDevices = 8
)

// alsaBackend enumerates and opens ALSA playback devices. Both the
// exclusive hw: identifier and the converting plughw: identifier are
// exposed for every responsive (card, device) index.
type alsaBackend struct{}

// NewBackend returns the platform playback backend.
func NewBackend() Backend {
	return &alsaBackend{}
}

func alsaFormat(f SampleFormat) C.int {
	if f == FormatS16LE {
		return C.int(C.SND_PCM_FORMAT_S16_LE)
	}
	return C.int(C.SND_PCM_FORMAT_S32_LE)
}

func alsaError(op string, code C.int) error {
	return fmt.Errorf("%s: %s", op, C.GoString(C.snd_strerror(code)))
}

// ListDevices probes a bounded index range per sound card and reports
// every index that accepts a playback open.
func (b *alsaBackend) ListDevices() ([]Device, error) {
	var devices []Device

	card := C.int(-1)
	for i := 0; i < maxProbeCards; i++ {
		if C.snd_card_next(&card) < 0 || card < 0 {
			break
		}

		cardName := fmt.Sprintf("card %d", int(card))
		var cname *C.char
		if C.snd_card_get_name(card, &cname) >= 0 {
			cardName = C.GoString(cname)
			C.free(unsafe.Pointer(cname))
		}

		for dev := 0; dev < maxProbeDevices; dev++ {
			hwID := fmt.Sprintf("hw:%d,%d", int(card), dev)
			if !probePlayback(hwID) {
				continue
			}
			devices = append(devices,
				Describe(hwID, cardName, dev),
				Describe(fmt.Sprintf("plughw:%d,%d", int(card), dev), cardName, dev),
			)
		}
	}

	return devices, nil
}

func probePlayback(deviceID string) bool {
	cID := C.CString(deviceID)
	defer C.free(unsafe.Pointer(cID))

	var handle *C.snd_pcm_t
	if C.openPCM(cID, 1, &handle) < 0 {
		return false
	}
	C.snd_pcm_close(handle)
	return true
}

// Open opens and configures a playback stream. The requested channel
// count, rate and format are set exactly; a device that cannot honor them
// fails here instead of substituting a close match.
func (b *alsaBackend) Open(deviceID string, channels, sampleRate int, format SampleFormat, periodFrames int) (Stream, error) {
	cID := C.CString(deviceID)
	defer C.free(unsafe.Pointer(cID))

	var handle *C.snd_pcm_t
	if err := C.openPCM(cID, 0, &handle); err < 0 {
		if err == -C.EBUSY {
			return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, deviceID)
		}
		return nil, alsaError("snd_pcm_open "+deviceID, err)
	}

	if err := C.setupPCM(handle, C.uint(channels), C.uint(sampleRate), alsaFormat(format), C.snd_pcm_uframes_t(periodFrames)); err < 0 {
		C.snd_pcm_close(handle)
		return nil, fmt.Errorf("%w: %s (%s)", ErrFormatNotSettable, deviceID, C.GoString(C.snd_strerror(err)))
	}

	return &alsaStream{
		handle:     handle,
		frameBytes: channels * format.BytesPerSample(),
	}, nil
}

// alsaStream is an open ALSA playback stream.
type alsaStream struct {
	handle     *C.snd_pcm_t
	frameBytes int
}

// Write pushes one interleaved block to the hardware, blocking until it
// is accepted. An underrun is recovered once with prepare; any other
// failure means the device went away.
func (s *alsaStream) Write(data []byte) error {
	frames := len(data) / s.frameBytes

	for frames > 0 {
		n := C.writePCM(s.handle, unsafe.Pointer(&data[0]), C.snd_pcm_uframes_t(frames))
		if n < 0 {
			if n == -C.EPIPE {
				// Underrun: prepare and retry this block.
				if err := C.snd_pcm_prepare(s.handle); err < 0 {
					return fmt.Errorf("%w: %s", ErrDeviceGone, C.GoString(C.snd_strerror(err)))
				}
				continue
			}
			return fmt.Errorf("%w: %s", ErrDeviceGone, C.GoString(C.snd_strerror(C.int(n))))
		}
		written := int(n)
		data = data[written*s.frameBytes:]
		frames -= written
	}

	return nil
}

// Close drains pending samples and releases the hardware.
func (s *alsaStream) Close() error {
	if s.handle != nil {
		C.closePCM(s.handle)
		s.handle = nil
	}
	return nil
}
