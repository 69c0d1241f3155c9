// ABOUTME: Entry point for the Clearwave player
// ABOUTME: Parses CLI flags and starts the player application
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clearwave-audio/clearwave-go/internal/app"
	"github.com/clearwave-audio/clearwave-go/internal/version"
)

var (
	musicDir   = flag.String("dir", "", "Music folder (default: last used)")
	deviceID   = flag.String("device", "", "Output device id, e.g. hw:1,0 (default: last used or first exclusive)")
	remotePort = flag.Int("remote", 0, "Port for the WebSocket control bridge (0 disables it)")
	logFile    = flag.String("log-file", "clearwave.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	noSpectrum = flag.Bool("no-spectrum", false, "Disable the spectrum analyzer")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file, the terminal belongs to the UI
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s %s", version.Product, version.Version)

	player, err := app.New(app.Config{
		MusicDir:   *musicDir,
		DeviceID:   *deviceID,
		RemotePort: *remotePort,
		NoTUI:      !useTUI,
		NoSpectrum: *noSpectrum,
	})
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		player.Stop()
	}()

	if err := player.Start(); err != nil {
		log.Fatalf("Player failed: %v", err)
	}

	log.Printf("Player stopped")
}
