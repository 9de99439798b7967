// Package theme holds the process-wide light/dark flag
package theme

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Mode is the colour scheme
type Mode string

const (
	Light Mode = "light"
	Dark  Mode = "dark"
)

// Preferences persists the chosen mode between runs
type Preferences interface {
	Load() (Mode, bool, error)
	Save(Mode) error
}

// Store is a theme flag with a single write entry point
type Store struct {
	// writeMu orders toggles so the saved mode always matches the live one
	writeMu   sync.Mutex
	mu        sync.RWMutex
	dark      bool
	prefs     Preferences
	listeners []func(Mode)
}

// NewStore reads the saved preference, falling back to the system preference
// when none was saved or it could not be read
func NewStore(prefs Preferences, systemPrefersDark bool) *Store {
	s := &Store{dark: systemPrefersDark, prefs: prefs}
	if prefs == nil {
		return s
	}
	mode, ok, err := prefs.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Could not read theme preference, using system default")
		return s
	}
	if ok {
		s.dark = mode == Dark
	}
	return s
}

// IsDark reports whether dark mode is on
func (s *Store) IsDark() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dark
}

// Mode returns the current mode
func (s *Store) Mode() Mode {
	if s.IsDark() {
		return Dark
	}
	return Light
}

// OnChange registers a listener called after every toggle
func (s *Store) OnChange(fn func(Mode)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Toggle flips the mode and persists it. The flag flips even if saving
// fails; the error is returned so callers can report it. Listeners run
// before the next toggle starts and must not call Toggle themselves.
func (s *Store) Toggle() (Mode, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.dark = !s.dark
	mode := Light
	if s.dark {
		mode = Dark
	}
	prefs := s.prefs
	listeners := append([]func(Mode){}, s.listeners...)
	s.mu.Unlock()

	var err error
	if prefs != nil {
		if err = prefs.Save(mode); err != nil {
			log.Error().Err(err).Str("mode", string(mode)).Msg("Failed to persist theme preference")
		}
	}
	for _, fn := range listeners {
		fn(mode)
	}
	return mode, err
}

var (
	defaultMu    sync.RWMutex
	defaultStore = NewStore(nil, false)
)

// Init replaces the process-wide store
func Init(prefs Preferences, systemPrefersDark bool) *Store {
	s := NewStore(prefs, systemPrefersDark)
	defaultMu.Lock()
	defaultStore = s
	defaultMu.Unlock()
	return s
}

// Default returns the process-wide store
func Default() *Store {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultStore
}

// IsDark reports the process-wide flag
func IsDark() bool { return Default().IsDark() }

// Toggle flips the process-wide flag
func Toggle() (Mode, error) { return Default().Toggle() }

// FilePreferences stores the mode in a small YAML file
type FilePreferences struct {
	Path string
}

type prefsFile struct {
	Theme Mode `yaml:"theme"`
}

// Load implements Preferences. A missing file means no saved preference.
func (f FilePreferences) Load() (Mode, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preferences: %w", err)
	}

	var pf prefsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return "", false, fmt.Errorf("failed to parse preferences: %w", err)
	}
	switch pf.Theme {
	case Dark, Light:
		return pf.Theme, true, nil
	case "":
		return "", false, nil
	}
	return "", false, fmt.Errorf("unknown theme %q", pf.Theme)
}

// Save implements Preferences
func (f FilePreferences) Save(mode Mode) error {
	data, err := yaml.Marshal(prefsFile{Theme: mode})
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create preferences directory: %w", err)
		}
	}
	if err := os.WriteFile(f.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
