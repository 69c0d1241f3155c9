// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Track list, transport state, bit-perfect badge and spectrum row
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clearwave-audio/clearwave-go/internal/device"
	"github.com/clearwave-audio/clearwave-go/internal/library"
)

const (
	listRows    = 10
	seekStep    = 5.0 // seconds per arrow press
	boxWidth    = 58
	spectrumLow = -66.0 // dB rendered as the lowest glyph
)

var spectrumGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// Controller is the control surface the TUI drives. All calls must be
// non-blocking; the engine guarantees that.
type Controller interface {
	Play(id int) error
	Pause()
	Resume()
	Stop()
	Seek(seconds float64)
	SetOutputDevice(id string)
}

// Weighter toggles perceptual weighting on the analyzer.
type Weighter interface {
	SetWeighting(enabled bool)
	Weighting() bool
}

// StatusMsg updates the transport section of the TUI.
type StatusMsg struct {
	State            string
	TrackID          int
	TrackName        string
	DeviceID         string
	Position         float64
	Duration         float64
	SampleRate       int
	Channels         int
	BitDepth         int
	BitPerfect       bool
	BitPerfectReason string
}

// TracksMsg replaces the track list.
type TracksMsg []library.Track

// DevicesMsg replaces the output device list.
type DevicesMsg []device.Device

// SpectrumMsg carries one analyzer display frame in dB.
type SpectrumMsg struct {
	Bands []float64
	Peaks []float64
}

// Model represents the TUI state.
type Model struct {
	controller Controller
	weighter   Weighter

	tracks []library.Track
	cursor int
	offset int // first visible list row

	devices   []device.Device
	deviceIdx int

	status   StatusMsg
	spectrum []float64

	width  int
	height int
}

// NewModel creates the TUI model. weighter may be nil when spectrum
// analysis is disabled.
func NewModel(controller Controller, weighter Weighter) Model {
	return Model{
		controller: controller,
		weighter:   weighter,
		status:     StatusMsg{State: "idle", TrackID: -1},
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.status = msg
	case TracksMsg:
		m.tracks = msg
		if m.cursor >= len(m.tracks) {
			m.cursor = len(m.tracks) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
	case DevicesMsg:
		m.devices = msg
		m.deviceIdx = 0
		for i, d := range m.devices {
			if d.ID == m.status.DeviceID {
				m.deviceIdx = i
			}
		}
	case SpectrumMsg:
		m.spectrum = msg.Bands
	}

	return m, nil
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		if m.cursor < m.offset {
			m.offset = m.cursor
		}
	case "down", "j":
		if m.cursor < len(m.tracks)-1 {
			m.cursor++
		}
		if m.cursor >= m.offset+listRows {
			m.offset = m.cursor - listRows + 1
		}
	case "enter":
		if m.cursor < len(m.tracks) {
			m.controller.Play(m.tracks[m.cursor].ID)
		}
	case " ":
		switch m.status.State {
		case "playing":
			m.controller.Pause()
		case "paused":
			m.controller.Resume()
		}
	case "s":
		m.controller.Stop()
	case "left":
		target := m.status.Position - seekStep
		if target < 0 {
			target = 0
		}
		m.controller.Seek(target)
	case "right":
		m.controller.Seek(m.status.Position + seekStep)
	case "d":
		if len(m.devices) > 0 {
			m.deviceIdx = (m.deviceIdx + 1) % len(m.devices)
			m.controller.SetOutputDevice(m.devices[m.deviceIdx].ID)
		}
	case "w":
		if m.weighter != nil {
			m.weighter.SetWeighting(!m.weighter.Weighting())
		}
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderTracks()
	s += m.renderTransport()
	s += m.renderSpectrum()
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	badge := "—"
	switch {
	case m.status.BitPerfect:
		badge = "● BIT-PERFECT"
	case m.status.BitPerfectReason != "":
		badge = "○ " + m.status.BitPerfectReason
	}

	deviceLabel := m.status.DeviceID
	if deviceLabel == "" {
		deviceLabel = "(no device)"
	}

	return fmt.Sprintf(`┌─ Clearwave ──────────────────────────────────────────────┐
│ Device: %-48s │
│ Path:   %-48s │
├──────────────────────────────────────────────────────────┤
`, truncate(deviceLabel, 48), truncate(badge, 48))
}

func (m Model) renderTracks() string {
	if len(m.tracks) == 0 {
		return "│ Library is empty                                         │\n"
	}

	var b strings.Builder
	end := m.offset + listRows
	if end > len(m.tracks) {
		end = len(m.tracks)
	}
	for i := m.offset; i < end; i++ {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		playing := " "
		if m.tracks[i].ID == m.status.TrackID && m.status.State == "playing" {
			playing = "♪"
		}
		fmt.Fprintf(&b, "│ %s%s %-52s │\n", marker, playing, truncate(m.tracks[i].Name, 52))
	}
	return b.String()
}

func (m Model) renderTransport() string {
	format := ""
	if m.status.SampleRate > 0 {
		format = fmt.Sprintf("%d-bit %s %.1fkHz",
			m.status.BitDepth, channelName(m.status.Channels), float64(m.status.SampleRate)/1000.0)
	}

	bar := renderProgress(m.status.Position, m.status.Duration, 30)

	return fmt.Sprintf(`├──────────────────────────────────────────────────────────┤
│ %-8s %s %s / %-8s%-6s │
│ %-56s │
`, strings.ToUpper(m.status.State), bar,
		formatTime(m.status.Position), formatTime(m.status.Duration), "",
		truncate(format, 56))
}

func (m Model) renderSpectrum() string {
	return "│ " + fmt.Sprintf("%-56s", RenderSpectrumRow(m.spectrum, 56)) + " │\n"
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Select  ⏎:Play  ␣:Pause  s:Stop  ←/→:Seek  d:Device  │
└──────────────────────────────────────────────────────────┘
`
}

// RenderSpectrumRow maps band magnitudes in dB onto one row of block
// glyphs. Bands are resampled to the requested width.
func RenderSpectrumRow(bands []float64, width int) string {
	if len(bands) == 0 || width <= 0 {
		return strings.Repeat(" ", width)
	}

	out := make([]rune, width)
	for i := 0; i < width; i++ {
		j := i * len(bands) / width
		out[i] = glyphForDB(bands[j])
	}
	return string(out)
}

// glyphForDB maps a dB value in [spectrumLow, 0] to a block glyph.
func glyphForDB(db float64) rune {
	if db <= spectrumLow {
		return spectrumGlyphs[0]
	}
	if db >= 0 {
		return spectrumGlyphs[len(spectrumGlyphs)-1]
	}
	frac := (db - spectrumLow) / -spectrumLow
	idx := int(frac * float64(len(spectrumGlyphs)-1))
	if idx >= len(spectrumGlyphs) {
		idx = len(spectrumGlyphs) - 1
	}
	return spectrumGlyphs[idx]
}

func renderProgress(position, duration float64, width int) string {
	filled := 0
	if duration > 0 {
		filled = int(position / duration * float64(width))
		if filled > width {
			filled = width
		}
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func truncate(s string, length int) string {
	if len([]rune(s)) <= length {
		return s
	}
	r := []rune(s)
	return string(r[:length-3]) + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
