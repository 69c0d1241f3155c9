// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the player UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the TUI program in the alternate screen. The returned
// program accepts StatusMsg, TracksMsg, DevicesMsg and SpectrumMsg via
// Send from the app shell.
func Run(controller Controller, weighter Weighter) *tea.Program {
	return tea.NewProgram(NewModel(controller, weighter), tea.WithAltScreen())
}
