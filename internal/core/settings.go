package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// SettingsFileName is the per-user settings document kept in the home directory
const SettingsFileName = ".lapsus_menubar_config.json"

// Configuration holds the persisted supervision preferences.
// An empty CustomBinaryPath means no custom path is set.
type Configuration struct {
	StartAtLogin         bool   `json:"start_at_login"`
	CustomBinaryPath     string `json:"lapsus_rust_path,omitempty"`
	ShowPresentationIcon bool   `json:"show_dock_icon"`
}

// DefaultConfiguration returns the configuration used when no document exists
func DefaultConfiguration() Configuration {
	return Configuration{}
}

// DefaultSettingsPath returns ~/.lapsus_menubar_config.json
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return SettingsFileName
	}
	return filepath.Join(home, SettingsFileName)
}

// Load reads the settings document at path.
// A missing, empty or malformed document yields the defaults; it is never an error.
func Load(path string) Configuration {
	cfg := DefaultConfiguration()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Failed to read settings, using defaults", "path", path, "error", err)
		}
		return cfg
	}

	var parsed Configuration
	if err := json.Unmarshal(data, &parsed); err != nil {
		slog.Warn("Settings document is malformed, using defaults", "path", path, "error", err)
		return cfg
	}

	return parsed
}

// Save writes the whole configuration to path.
// The document is replaced via temp file + rename so readers see either the old or the new content.
func Save(path string, cfg Configuration) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", path, err)
	}

	return nil
}

// Store owns the in-memory Configuration and its backing document
type Store struct {
	path string
	mu   sync.Mutex
	cfg  Configuration
}

// NewStore loads the document once and returns the owning handle
func NewStore(path string) *Store {
	return &Store{
		path: path,
		cfg:  Load(path),
	}
}

// Path returns the location of the settings document
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current configuration
func (s *Store) Get() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Update applies mutate to the configuration and rewrites the document.
// When the save fails the in-memory change is kept; the next successful save reconciles the file.
func (s *Store) Update(mutate func(*Configuration)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mutate(&s.cfg)
	return Save(s.path, s.cfg)
}
