// ABOUTME: Output device descriptors and the playback backend abstraction
// ABOUTME: Defines exclusive vs converting device identifiers and stream I/O
package device

import (
	"errors"
	"fmt"
	"strings"
)

// ExclusivePrefix denotes direct hardware access, bypassing any system
// mixing or resampling layer.
const ExclusivePrefix = "hw:"

// ConvertingPrefix denotes access through the plug layer, which may
// resample or convert sample values.
const ConvertingPrefix = "plughw:"

// Errors returned by backends.
var (
	ErrDeviceBusy        = errors.New("device busy")
	ErrDeviceGone        = errors.New("device disappeared")
	ErrFormatNotSettable = errors.New("device cannot be set to the exact requested configuration")
)

// SampleFormat identifies the on-wire sample layout accepted by a device.
type SampleFormat int

const (
	FormatS16LE SampleFormat = iota // 16-bit signed little-endian
	FormatS32LE                     // 32-bit signed little-endian container
)

// BytesPerSample returns the container width in bytes.
func (f SampleFormat) BytesPerSample() int {
	if f == FormatS16LE {
		return 2
	}
	return 4
}

// String returns the ALSA-style format name.
func (f SampleFormat) String() string {
	if f == FormatS16LE {
		return "S16_LE"
	}
	return "S32_LE"
}

// Device describes one playback endpoint as exposed to the caller.
type Device struct {
	ID        string // e.g. "hw:1,0" or "plughw:1,0"
	Label     string // human-readable card name
	Exclusive bool   // true for direct hardware access identifiers
}

// Stream is an open playback stream accepting interleaved sample blocks.
// Write blocks until the hardware has accepted the data, which is the
// playback path's natural flow control.
type Stream interface {
	Write(data []byte) error
	Close() error
}

// Backend opens and enumerates playback devices. Open must configure the
// exact requested channel count, rate and format; a device that cannot be
// set exactly must fail rather than silently substitute a close match.
type Backend interface {
	ListDevices() ([]Device, error)
	Open(deviceID string, channels, sampleRate int, format SampleFormat, periodFrames int) (Stream, error)
}

// IsExclusive reports whether a device identifier denotes exclusive
// hardware access.
func IsExclusive(deviceID string) bool {
	return strings.HasPrefix(deviceID, ExclusivePrefix)
}

// Describe builds the Device descriptor for an identifier and card label.
func Describe(deviceID, cardName string, devIndex int) Device {
	label := fmt.Sprintf("%s (dev %d)", cardName, devIndex)
	if !IsExclusive(deviceID) {
		label += " [converting]"
	}
	return Device{ID: deviceID, Label: label, Exclusive: IsExclusive(deviceID)}
}
