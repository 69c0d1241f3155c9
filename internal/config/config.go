// ABOUTME: Persisted player settings (output device, music folder)
// ABOUTME: Stored as a dotenv file, read at startup and written on change
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	keyDevice   = "CLEARWAVE_DEVICE"
	keyMusicDir = "CLEARWAVE_MUSIC_DIR"
)

// Settings is the persisted state owned by the app shell, not the engine.
// The engine only sees setter/getter hooks.
type Settings struct {
	DeviceID string
	MusicDir string

	path string
}

// DefaultPath returns the settings file location under the user config dir.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "clearwave", "clearwave.env")
}

// Load reads settings from path. A missing file is not an error; it
// yields empty settings that will be created on first save.
func Load(path string) (*Settings, error) {
	s := &Settings{path: path}

	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	s.DeviceID = env[keyDevice]
	s.MusicDir = env[keyMusicDir]
	return s, nil
}

// Save writes the settings back to disk, creating the directory if needed.
func (s *Settings) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	env := map[string]string{
		keyDevice:   s.DeviceID,
		keyMusicDir: s.MusicDir,
	}
	if err := godotenv.Write(env, s.path); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", s.path, err)
	}
	return nil
}
