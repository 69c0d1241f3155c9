// ABOUTME: Main player application orchestration
// ABOUTME: Wires settings, library, engine, analyzer, bridge and TUI together
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clearwave-audio/clearwave-go/internal/config"
	"github.com/clearwave-audio/clearwave-go/internal/device"
	"github.com/clearwave-audio/clearwave-go/internal/engine"
	"github.com/clearwave-audio/clearwave-go/internal/library"
	"github.com/clearwave-audio/clearwave-go/internal/remote"
	"github.com/clearwave-audio/clearwave-go/internal/spectrum"
	"github.com/clearwave-audio/clearwave-go/internal/ui"
)

const (
	statusTick   = 250 * time.Millisecond
	spectrumTick = 50 * time.Millisecond
)

// Config holds player configuration.
type Config struct {
	MusicDir   string
	DeviceID   string
	RemotePort int  // 0 disables the control bridge
	NoTUI      bool // headless mode, control via the bridge only
	NoSpectrum bool
}

// Player is the main application. It owns every component and wires
// status flow from the engine into the TUI and the control bridge.
type Player struct {
	config   Config
	settings *config.Settings
	lib      *library.Library
	watcher  *library.Watcher
	engine   *engine.Engine
	analyzer *spectrum.Analyzer
	bridge   *remote.Server
	tuiProg  *tea.Program

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the player. Settings on disk fill in whatever the config
// leaves empty; explicit config wins.
func New(cfg Config) (*Player, error) {
	settings, err := config.Load(config.DefaultPath())
	if err != nil {
		return nil, err
	}
	if cfg.MusicDir == "" {
		cfg.MusicDir = settings.MusicDir
	}
	if cfg.MusicDir == "" {
		return nil, fmt.Errorf("no music folder configured")
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = settings.DeviceID
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Player{
		config:   cfg,
		settings: settings,
		ctx:      ctx,
		cancel:   cancel,
	}

	p.lib, err = library.New(cfg.MusicDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("library init failed: %w", err)
	}

	backend := device.NewBackend()
	if cfg.DeviceID == "" {
		cfg.DeviceID = pickDefaultDevice(backend)
		p.config.DeviceID = cfg.DeviceID
	}

	if !cfg.NoSpectrum {
		p.analyzer = spectrum.New(spectrum.Config{})
	}

	var sink engine.BlockSink
	if p.analyzer != nil {
		sink = p.analyzer
	}

	p.engine = engine.New(engine.Config{
		Library:  p.lib,
		Backend:  backend,
		DeviceID: cfg.DeviceID,
		Sink:     sink,
		OnDeviceChange: func(id string) {
			p.settings.DeviceID = id
			if err := p.settings.Save(); err != nil {
				log.Printf("Failed to persist device selection: %v", err)
			}
		},
	})

	p.watcher = library.NewWatcher(p.lib, p.onLibraryChange)

	if cfg.RemotePort > 0 {
		p.bridge = remote.New(remote.Config{
			Port:     cfg.RemotePort,
			Engine:   p.engine,
			Analyzer: p.analyzer,
		})
	}

	return p, nil
}

// pickDefaultDevice prefers the first exclusive device, falling back to
// whatever the backend lists first.
func pickDefaultDevice(backend device.Backend) string {
	devices, err := backend.ListDevices()
	if err != nil || len(devices) == 0 {
		return ""
	}
	for _, d := range devices {
		if d.Exclusive {
			return d.ID
		}
	}
	return devices[0].ID
}

// Start runs the player until the TUI quits or Stop is called.
func (p *Player) Start() error {
	p.settings.MusicDir = p.lib.Dir()
	if err := p.settings.Save(); err != nil {
		log.Printf("Failed to persist settings: %v", err)
	}

	if p.analyzer != nil {
		go p.analyzer.Run(p.ctx)
	}
	if p.watcher != nil {
		go p.watcher.Run(p.ctx)
	}
	if p.bridge != nil {
		go func() {
			if err := p.bridge.Start(); err != nil {
				log.Printf("Control bridge failed: %v", err)
			}
		}()
	}

	if p.config.NoTUI {
		log.Printf("Running headless; control via the bridge")
		<-p.ctx.Done()
		return nil
	}

	var weighter ui.Weighter
	if p.analyzer != nil {
		weighter = p.analyzer
	}
	p.tuiProg = ui.Run(p.engine, weighter)

	go p.feedTUI()

	_, err := p.tuiProg.Run()
	p.cancel()
	if err != nil {
		return fmt.Errorf("TUI failed: %w", err)
	}
	return nil
}

// feedTUI pushes tracks, devices, status and spectrum frames into the
// TUI program on fixed intervals.
func (p *Player) feedTUI() {
	p.tuiProg.Send(ui.TracksMsg(p.engine.ListTracks()))
	if devices, err := p.engine.ListOutputDevices(); err == nil {
		p.tuiProg.Send(ui.DevicesMsg(devices))
	}

	statusTicker := time.NewTicker(statusTick)
	defer statusTicker.Stop()
	spectrumTicker := time.NewTicker(spectrumTick)
	defer spectrumTicker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-statusTicker.C:
			p.tuiProg.Send(statusMsg(p.engine.Status()))
		case <-spectrumTicker.C:
			if p.analyzer == nil {
				continue
			}
			bands, peaks := p.analyzer.GetDisplayFrame()
			p.tuiProg.Send(ui.SpectrumMsg{Bands: bands, Peaks: peaks})
		}
	}
}

// onLibraryChange refreshes the TUI track list after a rescan.
func (p *Player) onLibraryChange() {
	if p.tuiProg != nil {
		p.tuiProg.Send(ui.TracksMsg(p.engine.ListTracks()))
	}
}

// statusMsg converts an engine snapshot to a TUI message.
func statusMsg(st engine.Status) ui.StatusMsg {
	return ui.StatusMsg{
		State:            string(st.State),
		TrackID:          st.TrackID,
		TrackName:        st.TrackName,
		DeviceID:         st.DeviceID,
		Position:         st.Position,
		Duration:         st.Duration,
		SampleRate:       st.SampleRate,
		Channels:         st.Channels,
		BitDepth:         st.BitDepth,
		BitPerfect:       st.BitPerfect,
		BitPerfectReason: st.BitPerfectReason,
	}
}

// Stop shuts the player down.
func (p *Player) Stop() {
	p.cancel()
	p.engine.Stop()

	if p.bridge != nil {
		p.bridge.Stop()
	}
	if p.tuiProg != nil {
		p.tuiProg.Quit()
	}
}
