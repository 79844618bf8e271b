package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cueplex/cueplex/internal/orchestrator"
)

func samplePreset(name string) Preset {
	return Preset{
		Stream: orchestrator.StreamConfig{
			Name:             name,
			InputURL:         "srt://0.0.0.0:9000",
			Formats:          []string{orchestrator.FormatHLS},
			VideoBitrateKbps: 5000,
			AudioBitrateKbps: 128,
			SegmentSeconds:   4,
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")

	store := NewStore(path)
	p := samplePreset("channel1")
	p.Autostart = true
	if err := store.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := reloaded.Get("channel1")
	if !ok {
		t.Fatalf("preset missing after reload")
	}
	if got.Stream.InputURL != "srt://0.0.0.0:9000" {
		t.Errorf("input url = %q", got.Stream.InputURL)
	}
	if !got.Autostart {
		t.Errorf("autostart flag lost")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set")
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.toml"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(store.All()) != 0 {
		t.Errorf("expected empty store")
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "presets.toml"))
	p := samplePreset("bad")
	p.Stream.Formats = nil
	if err := store.Save(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "presets.toml"))
	if err := store.Save(samplePreset("ch")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, _ := store.Get("ch")

	updated := samplePreset("ch")
	updated.Stream.VideoBitrateKbps = 8000
	if err := store.Save(updated); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	second, _ := store.Get("ch")
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update")
	}
	if second.Stream.VideoBitrateKbps != 8000 {
		t.Errorf("update not applied")
	}
}

func TestRemove(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "presets.toml"))
	if err := store.Save(samplePreset("gone")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Remove("gone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := store.Get("gone"); ok {
		t.Errorf("preset still present after remove")
	}
	if err := store.Remove("gone"); err == nil {
		t.Errorf("expected error removing missing preset")
	}
}

func TestAutostartSelection(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "presets.toml"))

	auto := samplePreset("auto")
	auto.Autostart = true
	manual := samplePreset("manual")
	for _, p := range []Preset{auto, manual} {
		if err := store.Save(p); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	selected := store.Autostart()
	if len(selected) != 1 || selected[0].Stream.Name != "auto" {
		t.Fatalf("autostart selection = %v", selected)
	}

	if err := store.SetAutostart("manual", true); err != nil {
		t.Fatalf("SetAutostart: %v", err)
	}
	if len(store.Autostart()) != 2 {
		t.Errorf("autostart flag not persisted in memory")
	}
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "presets.toml")
	store := NewStore(path)
	if err := store.Save(samplePreset("ch")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("presets file not written: %v", err)
	}
}
