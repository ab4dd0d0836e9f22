// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const configFileName = "config.json"

// Config represents the daemon configuration
type Config struct {
	// LibraryPaths is a list of directories containing audio files
	LibraryPaths []string `json:"libraryPaths"`

	// DataDir is where to store the database and other data files.
	// Empty means a "data" directory next to the config file.
	DataDir string `json:"dataDir"`

	// Audio settings
	Audio AudioConfig `json:"audio"`

	// Library filter settings
	Library LibraryConfig `json:"library"`

	// Alarm settings
	Alarm AlarmConfig `json:"alarm"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for audio output (default: 44100)
	SampleRate int `json:"sampleRate"`

	// Volume level 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `json:"defaultVolume"`
}

// LibraryConfig controls which files the scanner accepts
type LibraryConfig struct {
	// MinDurationMillis drops short clips like notification sounds
	MinDurationMillis int64 `json:"minDurationMillis"`

	// ExcludePathSubstrings drops files whose path contains any of these
	ExcludePathSubstrings []string `json:"excludePathSubstrings"`
}

// AlarmConfig contains scheduled-playback settings
type AlarmConfig struct {
	// ExactTimers requests exact-timer registration; when denied the
	// scheduler degrades to inexact timers
	ExactTimers bool `json:"exactTimers"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LibraryPaths: []string{},
		Audio: AudioConfig{
			SampleRate:    44100,
			DefaultVolume: 1.0,
		},
		Library: LibraryConfig{
			MinDurationMillis: 30000,
		},
		Alarm: AlarmConfig{
			ExactTimers: true,
		},
	}
}

// Manager handles loading and saving configuration. The config is read by
// IPC connection goroutines and the rescan path, so access goes through a
// lock and Get hands out copies.
type Manager struct {
	configDir string

	mu     sync.RWMutex
	config *Config
}

// clone returns a deep copy so callers can mutate freely
func (c *Config) clone() *Config {
	out := *c
	out.LibraryPaths = append([]string(nil), c.LibraryPaths...)
	out.Library.ExcludePathSubstrings = append([]string(nil), c.Library.ExcludePathSubstrings...)
	return &out
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir: configDir,
		config:    DefaultConfig(),
	}
}

// Load reads the configuration from disk. A missing file is not an error;
// defaults are written out so the user has something to edit.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(m.GetPath())
	if os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// Unmarshal over defaults so fields absent from the file keep their
	// default values
	loaded := DefaultConfig()
	if err := json.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.config = loaded
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.clone()
}

// Update replaces the configuration and persists it
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg.clone()
	return m.saveLocked()
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return filepath.Join(m.configDir, configFileName)
}

// DataDir returns the resolved data directory
func (m *Manager) DataDir() string {
	if m.config.DataDir != "" {
		return m.config.DataDir
	}
	return filepath.Join(m.configDir, "data")
}
