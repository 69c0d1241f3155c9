// ABOUTME: Bit-perfect classifier for a (device, encoding) combination
// ABOUTME: Conservative static check of the pipeline configuration
package audio

import (
	"fmt"

	"github.com/clearwave-audio/clearwave-go/internal/device"
)

// Verdict is the result of classifying a stream configuration. It
// certifies the pipeline configuration only: an exclusive identifier with
// a kernel-level conversion plugin attached would still classify as
// bit-perfect.
type Verdict struct {
	BitPerfect bool
	Reason     string // empty when BitPerfect is true
}

// Classify decides whether the given device and source encoding guarantee
// sample-exact playback. Evaluated fresh for every stream open.
func Classify(dev device.Device, enc Encoding) Verdict {
	if !dev.Exclusive {
		return Verdict{
			Reason: fmt.Sprintf("device %s passes through a converting/mixing layer", dev.ID),
		}
	}
	switch enc {
	case EncodingPCM16, EncodingPCM24, EncodingPCM32:
		return Verdict{BitPerfect: true}
	default:
		return Verdict{
			Reason: fmt.Sprintf("source encoding %s is not integer PCM", enc),
		}
	}
}
