// ABOUTME: WAV decoder with sample-exact reads and frame-accurate seeking
// ABOUTME: Header parsing via go-audio/wav, raw PCM reads at byte offsets
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/clearwave-audio/clearwave-go/internal/audio"
)

const wavFormatIEEEFloat = 3

// WAVDecoder reads integer PCM frames straight from the data chunk so the
// byte path stays bit-exact and any frame offset is directly addressable.
type WAVDecoder struct {
	file           *os.File
	info           Info
	dataStart      int64
	bytesPerSample int
	frameBytes     int
	pos            int64
	scratch        []byte
}

// OpenWAV opens a WAV file for sequential, seekable decode. Only integer
// PCM sources are accepted; IEEE-float WAV is not bit-perfect playable.
func OpenWAV(path string) (*WAVDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	enc := audio.EncodingForBitDepth(int(d.BitDepth), d.WavAudioFormat == wavFormatIEEEFloat)
	switch enc {
	case audio.EncodingPCM16, audio.EncodingPCM24, audio.EncodingPCM32:
	default:
		f.Close()
		return nil, fmt.Errorf("%w: WAV subtype %s", audio.ErrUnsupportedFormat, enc)
	}

	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to locate PCM chunk: %w", err)
	}

	// The reader now sits at the first PCM byte; from here on all reads
	// go through ReadAt against this offset.
	dataStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, err
	}

	channels := int(d.NumChans)
	bytesPerSample := int(d.BitDepth) / 8
	frameBytes := channels * bytesPerSample

	return &WAVDecoder{
		file:           f,
		dataStart:      dataStart,
		bytesPerSample: bytesPerSample,
		frameBytes:     frameBytes,
		info: Info{
			Channels:    channels,
			SampleRate:  int(d.SampleRate),
			Encoding:    enc,
			TotalFrames: d.PCMLen() / int64(frameBytes),
		},
	}, nil
}

// Info returns the stream format.
func (d *WAVDecoder) Info() Info { return d.info }

// ReadFrames fills buf.Data with interleaved samples at native bit depth.
func (d *WAVDecoder) ReadFrames(buf *goaudio.IntBuffer) (int, error) {
	if d.pos >= d.info.TotalFrames {
		return 0, io.EOF
	}

	frames := len(buf.Data) / d.info.Channels
	if remaining := d.info.TotalFrames - d.pos; int64(frames) > remaining {
		frames = int(remaining)
	}

	byteLen := frames * d.frameBytes
	if cap(d.scratch) < byteLen {
		d.scratch = make([]byte, byteLen)
	}
	raw := d.scratch[:byteLen]

	n, err := d.file.ReadAt(raw, d.dataStart+d.pos*int64(d.frameBytes))
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("WAV read failed: %w", err)
	}
	frames = n / d.frameBytes
	if frames == 0 {
		return 0, io.EOF
	}

	samples := frames * d.info.Channels
	switch d.bytesPerSample {
	case 2:
		for i := 0; i < samples; i++ {
			buf.Data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	case 3:
		for i := 0; i < samples; i++ {
			buf.Data[i] = int(audio.SampleFrom24Bit([3]byte{raw[i*3], raw[i*3+1], raw[i*3+2]}))
		}
	case 4:
		for i := 0; i < samples; i++ {
			buf.Data[i] = int(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	}

	d.pos += int64(frames)
	buf.Format = &goaudio.Format{NumChannels: d.info.Channels, SampleRate: d.info.SampleRate}
	buf.SourceBitDepth = d.info.Encoding.BitDepth()
	return frames, nil
}

// Seek repositions the decode cursor to an exact frame offset.
func (d *WAVDecoder) Seek(frame int64) (int64, error) {
	if frame < 0 {
		frame = 0
	}
	if frame > d.info.TotalFrames {
		frame = d.info.TotalFrames
	}
	d.pos = frame
	return d.pos, nil
}

// Position returns the frame offset of the next frame to be read.
func (d *WAVDecoder) Position() int64 { return d.pos }

// Close releases the underlying file.
func (d *WAVDecoder) Close() error {
	return d.file.Close()
}
