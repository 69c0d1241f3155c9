// ABOUTME: Audio type definitions and sample conversion helpers
// ABOUTME: Defines source encodings and the bit-exact sample packing rules
package audio

import "encoding/binary"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Encoding identifies the sample encoding of a decoded source.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingPCM16            // 16-bit integer PCM
	EncodingPCM24            // 24-bit integer PCM packed in a wider container
	EncodingPCM32            // 32-bit integer PCM
	EncodingFloat            // IEEE float PCM (not bit-perfect playable)
)

// String returns the libsndfile-style subtype name.
func (e Encoding) String() string {
	switch e {
	case EncodingPCM16:
		return "PCM_16"
	case EncodingPCM24:
		return "PCM_24"
	case EncodingPCM32:
		return "PCM_32"
	case EncodingFloat:
		return "FLOAT"
	default:
		return "UNKNOWN"
	}
}

// BitDepth returns the number of significant bits per sample.
func (e Encoding) BitDepth() int {
	switch e {
	case EncodingPCM16:
		return 16
	case EncodingPCM24:
		return 24
	case EncodingPCM32, EncodingFloat:
		return 32
	default:
		return 0
	}
}

// EncodingForBitDepth maps a decoder-reported integer bit depth to an
// encoding. Float sources must be tagged by the caller via isFloat.
func EncodingForBitDepth(bits int, isFloat bool) Encoding {
	if isFloat {
		return EncodingFloat
	}
	switch bits {
	case 16:
		return EncodingPCM16
	case 24:
		return EncodingPCM24
	case 32:
		return EncodingPCM32
	default:
		return EncodingUnknown
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian).
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian).
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// PackSamples serializes interleaved integer samples into the wire layout
// for the given encoding. 16-bit samples go out as S16_LE; 24-bit samples
// are placed in the top 24 bits of an S32_LE container so the DAC receives
// them unchanged; 32-bit samples pass through as S32_LE.
func PackSamples(samples []int, enc Encoding) []byte {
	switch enc {
	case EncodingPCM16:
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
		}
		return out
	case EncodingPCM24:
		out := make([]byte, len(samples)*4)
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(s)<<8))
		}
		return out
	case EncodingPCM32:
		out := make([]byte, len(samples)*4)
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(s)))
		}
		return out
	default:
		return nil
	}
}
