// ABOUTME: Control bridge message type definitions
// ABOUTME: JSON structs exchanged with remote control clients
package remote

// Message is the top-level wrapper for all control messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound message types.
const (
	TypePlay      = "play"
	TypePause     = "pause"
	TypeResume    = "resume"
	TypeStop      = "stop"
	TypeSeek      = "seek"
	TypeStatus    = "status"
	TypeTracks    = "tracks"
	TypeDevices   = "devices"
	TypeSetDevice = "set_device"
	TypeRescan    = "rescan"
	TypeSpectrum  = "spectrum"
)

// Outbound message types reuse the inbound names where they answer a
// request; TypeError covers all failures.
const TypeError = "error"

// PlayRequest selects a track by library id.
type PlayRequest struct {
	TrackID int `json:"track_id"`
}

// SeekRequest repositions playback to an absolute time.
type SeekRequest struct {
	Seconds float64 `json:"seconds"`
}

// DeviceRequest selects an output device for subsequent streams.
type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// StatusPayload mirrors the engine's playback snapshot.
type StatusPayload struct {
	State            string  `json:"state"`
	TrackID          int     `json:"track_id"`
	TrackName        string  `json:"track_name,omitempty"`
	DeviceID         string  `json:"device_id"`
	Position         float64 `json:"position"`
	Duration         float64 `json:"duration"`
	SampleRate       int     `json:"sample_rate,omitempty"`
	Channels         int     `json:"channels,omitempty"`
	BitDepth         int     `json:"bit_depth,omitempty"`
	BitPerfect       bool    `json:"bit_perfect"`
	BitPerfectReason string  `json:"bit_perfect_reason,omitempty"`
}

// TrackPayload is one library entry.
type TrackPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// TrackListPayload answers a tracks request.
type TrackListPayload struct {
	Tracks []TrackPayload `json:"tracks"`
}

// DevicePayload is one output device entry.
type DevicePayload struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Exclusive bool   `json:"exclusive"`
}

// DeviceListPayload answers a devices request.
type DeviceListPayload struct {
	Devices []DevicePayload `json:"devices"`
}

// SpectrumPayload carries one analyzer display frame in dB.
type SpectrumPayload struct {
	Bands []float64 `json:"bands"`
	Peaks []float64 `json:"peaks"`
}

// ErrorPayload reports a failed command.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
