// ABOUTME: Sequential source decoder abstraction for lossless files
// ABOUTME: Routes file paths to FLAC or WAV decoders by extension
package decode

import (
	"fmt"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"

	"github.com/clearwave-audio/clearwave-go/internal/audio"
)

// Info describes a decodable source.
type Info struct {
	Channels    int
	SampleRate  int
	Encoding    audio.Encoding
	TotalFrames int64
}

// Duration returns the source length in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.TotalFrames) / float64(i.SampleRate)
}

// Decoder reads interleaved integer PCM frames from a source file.
// Samples keep their native bit depth; no conversion happens here.
type Decoder interface {
	// Info returns the source format. Constant for the decoder lifetime.
	Info() Info
	// ReadFrames fills buf.Data with interleaved samples and returns the
	// number of frames read. Returns 0, io.EOF at end of stream.
	ReadFrames(buf *goaudio.IntBuffer) (int, error)
	// Seek repositions the decode cursor to the given frame, clamped to
	// the valid range, and returns the actual frame position.
	Seek(frame int64) (int64, error)
	// Position returns the frame offset of the next frame to be read.
	Position() int64
	Close() error
}

// Open creates a decoder for the given file path based on its extension.
func Open(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return OpenFLAC(path)
	case ".wav":
		return OpenWAV(path)
	default:
		return nil, fmt.Errorf("%w: no decoder for %s", audio.ErrUnsupportedFormat, filepath.Ext(path))
	}
}
