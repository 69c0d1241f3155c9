// ABOUTME: Format mapper from source encodings to device sample formats
// ABOUTME: Pure function; anything outside integer PCM is rejected
package audio

import (
	"errors"
	"fmt"

	"github.com/clearwave-audio/clearwave-go/internal/device"
)

// ErrUnsupportedFormat marks source encodings excluded from the
// bit-perfect path (float, compressed, unknown).
var ErrUnsupportedFormat = errors.New("unsupported PCM subtype for bit-perfect playback")

// Mapping is the device-side representation of a source encoding.
type Mapping struct {
	DeviceFormat   device.SampleFormat
	BytesPerSample int
}

// MapEncoding maps a source sample encoding to the output device sample
// format and container width. 24-bit sources use a 32-bit container; the
// top 24 bits carry the audio.
func MapEncoding(enc Encoding) (Mapping, error) {
	switch enc {
	case EncodingPCM16:
		return Mapping{DeviceFormat: device.FormatS16LE, BytesPerSample: 2}, nil
	case EncodingPCM24:
		return Mapping{DeviceFormat: device.FormatS32LE, BytesPerSample: 4}, nil
	case EncodingPCM32:
		return Mapping{DeviceFormat: device.FormatS32LE, BytesPerSample: 4}, nil
	default:
		return Mapping{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, enc)
	}
}
