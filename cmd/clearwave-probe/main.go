// ABOUTME: Diagnostic tool for devices and source files
// ABOUTME: Lists outputs and reports the bit-perfect verdict per device
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/clearwave-audio/clearwave-go/internal/audio"
	"github.com/clearwave-audio/clearwave-go/internal/decode"
	"github.com/clearwave-audio/clearwave-go/internal/device"
)

var filePath = flag.String("file", "", "Audio file to probe (optional)")

func main() {
	flag.Parse()
	log.SetFlags(0)

	backend := device.NewBackend()
	devices, err := backend.ListDevices()
	if err != nil {
		log.Fatalf("Device enumeration failed: %v", err)
	}

	fmt.Println("Output devices:")
	for _, d := range devices {
		mode := "converting"
		if d.Exclusive {
			mode = "exclusive"
		}
		fmt.Printf("  %-16s %-10s %s\n", d.ID, mode, d.Label)
	}

	if *filePath == "" {
		return
	}

	dec, err := decode.Open(*filePath)
	if err != nil {
		log.Fatalf("Cannot open %s: %v", *filePath, err)
	}
	defer dec.Close()

	info := dec.Info()
	fmt.Printf("\nSource: %s\n", *filePath)
	fmt.Printf("  %s, %d channels, %d Hz, %d frames (%.1fs)\n",
		info.Encoding, info.Channels, info.SampleRate, info.TotalFrames, info.Duration())

	mapping, err := audio.MapEncoding(info.Encoding)
	if err != nil {
		fmt.Printf("  Not playable bit-perfect: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Device format: %s (%d bytes per sample)\n",
		mapping.DeviceFormat, mapping.BytesPerSample)

	fmt.Println("\nVerdict per device:")
	for _, d := range devices {
		verdict := audio.Classify(d, info.Encoding)
		if verdict.BitPerfect {
			fmt.Printf("  %-16s bit-perfect\n", d.ID)
		} else {
			fmt.Printf("  %-16s degraded: %s\n", d.ID, verdict.Reason)
		}
	}
}
