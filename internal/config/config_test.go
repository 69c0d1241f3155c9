// ABOUTME: Tests for settings persistence
// ABOUTME: Round trip, missing file behavior and directory creation
package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope", "clearwave.env"))
	if err != nil {
		t.Fatalf("expected missing file to load empty, got %v", err)
	}
	if s.DeviceID != "" || s.MusicDir != "" {
		t.Errorf("expected empty settings, got %+v", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "clearwave.env")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s.DeviceID = "hw:1,0"
	s.MusicDir = "/music/lossless"

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.DeviceID != "hw:1,0" {
		t.Errorf("expected device hw:1,0, got %q", loaded.DeviceID)
	}
	if loaded.MusicDir != "/music/lossless" {
		t.Errorf("expected music dir /music/lossless, got %q", loaded.MusicDir)
	}
}
