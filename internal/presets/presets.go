// Package presets persists stream configurations across daemon
// restarts. Presets live in a single TOML file; autostart presets are
// launched when the daemon boots.
package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cueplex/cueplex/internal/orchestrator"
)

// Preset is one saved stream configuration.
type Preset struct {
	Stream    orchestrator.StreamConfig `toml:"stream" json:"stream"`
	Autostart bool                      `toml:"autostart" json:"autostart" doc:"Start this stream on daemon boot"`
	CreatedAt time.Time                 `toml:"created_at" json:"created_at" required:"false"`
	UpdatedAt time.Time                 `toml:"updated_at" json:"updated_at" required:"false"`
}

type presetsFile struct {
	Version int               `toml:"version"`
	Presets map[string]Preset `toml:"presets"`
}

// Store manages the presets file.
type Store struct {
	mu   sync.Mutex
	path string
	file *presetsFile
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	if path == "" {
		path = "presets.toml"
	}
	return &Store{
		path: path,
		file: &presetsFile{
			Version: 1,
			Presets: make(map[string]Preset),
		},
	}
}

// Load reads the presets file. A missing file is not an error; the
// store starts empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read presets: %w", err)
	}
	if err := toml.Unmarshal(data, s.file); err != nil {
		return fmt.Errorf("failed to parse presets: %w", err)
	}
	if s.file.Presets == nil {
		s.file.Presets = make(map[string]Preset)
	}
	if s.file.Version == 0 {
		s.file.Version = 1
	}
	return nil
}

// ReadFile parses the presets file at path. Used by the config
// watcher so reloads always see fresh on-disk data.
func ReadFile(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}
	var file presetsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	if file.Presets == nil {
		file.Presets = make(map[string]Preset)
	}
	return file.Presets, nil
}

// Replace swaps the in-memory preset set without writing to disk.
// Save and Remove after a Replace persist the replaced set.
func (s *Store) Replace(presets map[string]Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if presets == nil {
		presets = make(map[string]Preset)
	}
	s.file.Presets = presets
}

// saveLocked writes the file. Caller holds s.mu.
func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create presets directory: %w", err)
	}
	data, err := toml.Marshal(s.file)
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write presets: %w", err)
	}
	return nil
}

// Save stores or replaces a preset keyed by its stream name. The
// configuration is validated before it is written.
func (s *Store) Save(p Preset) error {
	if err := p.Stream.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.file.Presets[p.Stream.Name]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	s.file.Presets[p.Stream.Name] = p
	return s.saveLocked()
}

// Remove deletes a preset by stream name.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.file.Presets[name]; !ok {
		return fmt.Errorf("preset %s not found", name)
	}
	delete(s.file.Presets, name)
	return s.saveLocked()
}

// Get retrieves a preset by stream name.
func (s *Store) Get(name string) (Preset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.file.Presets[name]
	return p, ok
}

// All returns a copy of every preset keyed by stream name.
func (s *Store) All() map[string]Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Preset, len(s.file.Presets))
	for name, p := range s.file.Presets {
		out[name] = p
	}
	return out
}

// Autostart returns the presets flagged for boot-time launch.
func (s *Store) Autostart() []Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Preset
	for _, p := range s.file.Presets {
		if p.Autostart {
			out = append(out, p)
		}
	}
	return out
}

// SetAutostart flips the autostart flag for an existing preset.
func (s *Store) SetAutostart(name string, autostart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.file.Presets[name]
	if !ok {
		return fmt.Errorf("preset %s not found", name)
	}
	p.Autostart = autostart
	p.UpdatedAt = time.Now()
	s.file.Presets[name] = p
	return s.saveLocked()
}
