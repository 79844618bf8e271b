package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// daemonOptions mirrors the shape of the main Options struct.
type daemonOptions struct {
	Config string `help:"Config file path"`

	Port          string   `toml:"server.port" env:"SERVER_PORT"`
	PresetsFile   string   `toml:"streams.presets_file" env:"PRESETS_FILE"`
	OutputDir     string   `toml:"streams.output_dir" env:"OUTPUT_DIR"`
	Autostart     bool     `toml:"streams.autostart" env:"AUTOSTART"`
	Formats       []string `toml:"streams.formats" env:"FORMATS"`
	SequenceStart uint64   `toml:"scte35.sequence_start" env:"SCTE35_SEQUENCE_START"`
	HealthSeconds int      `toml:"health.interval_seconds" env:"HEALTH_INTERVAL_SECONDS"`
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = ":9100"

[streams]
presets_file = "/etc/cueplex/presets.toml"
output_dir = "/var/lib/cueplex"
autostart = true
formats = ["hls", "dash"]

[scte35]
sequence_start = 200000

[health]
interval_seconds = 10
`)

	opts := &daemonOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":9100" {
		t.Errorf("Port = %q, want %q", opts.Port, ":9100")
	}
	if opts.PresetsFile != "/etc/cueplex/presets.toml" {
		t.Errorf("PresetsFile = %q", opts.PresetsFile)
	}
	if !opts.Autostart {
		t.Error("Autostart should be true")
	}
	if want := []string{"hls", "dash"}; !reflect.DeepEqual(opts.Formats, want) {
		t.Errorf("Formats = %v, want %v", opts.Formats, want)
	}
	if opts.SequenceStart != 200000 {
		t.Errorf("SequenceStart = %d, want 200000", opts.SequenceStart)
	}
	if opts.HealthSeconds != 10 {
		t.Errorf("HealthSeconds = %d, want 10", opts.HealthSeconds)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CUEPLEX_SERVER_PORT", ":7000")
	t.Setenv("CUEPLEX_AUTOSTART", "true")
	t.Setenv("CUEPLEX_FORMATS", "hls, dash")
	t.Setenv("CUEPLEX_SCTE35_SEQUENCE_START", "500")
	t.Setenv("CUEPLEX_HEALTH_INTERVAL_SECONDS", "30")

	opts := &daemonOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":7000" {
		t.Errorf("Port = %q, want %q", opts.Port, ":7000")
	}
	if !opts.Autostart {
		t.Error("Autostart should be true")
	}
	if want := []string{"hls", "dash"}; !reflect.DeepEqual(opts.Formats, want) {
		t.Errorf("Formats = %v, want %v (spaces trimmed)", opts.Formats, want)
	}
	if opts.SequenceStart != 500 {
		t.Errorf("SequenceStart = %d, want 500", opts.SequenceStart)
	}
	if opts.HealthSeconds != 30 {
		t.Errorf("HealthSeconds = %d, want 30", opts.HealthSeconds)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = ":9100"

[streams]
output_dir = "/from/toml"
`)
	t.Setenv("CUEPLEX_SERVER_PORT", ":7000")

	opts := &daemonOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":7000" {
		t.Errorf("Port = %q, env should win over TOML", opts.Port)
	}
	if opts.OutputDir != "/from/toml" {
		t.Errorf("OutputDir = %q, TOML should apply without env override", opts.OutputDir)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &daemonOptions{Config: "does_not_exist.toml"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should tolerate a missing file: %v", err)
	}
}

func TestLoadConfigMalformedTOML(t *testing.T) {
	path := writeConfigFile(t, "[server\nnot toml")
	opts := &daemonOptions{Config: path}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("LoadConfig should fail for malformed TOML")
	}
}

func TestLookupTOML(t *testing.T) {
	values := map[string]any{
		"streams": map[string]any{
			"scte35": map[string]any{
				"pid": int64(500),
			},
			"output_dir": "/srv",
		},
		"port": ":8090",
	}

	tests := []struct {
		path string
		want any
	}{
		{"port", ":8090"},
		{"streams.output_dir", "/srv"},
		{"streams.scte35.pid", int64(500)},
		{"missing", nil},
		{"streams.missing", nil},
		{"port.not_a_table", nil},
	}
	for _, tt := range tests {
		if got := lookupTOML(values, tt.path); got != tt.want {
			t.Errorf("lookupTOML(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAssignKinds(t *testing.T) {
	opts := &daemonOptions{}
	v := reflect.ValueOf(opts).Elem()

	assign(v.FieldByName("Port"), ":1234")
	assign(v.FieldByName("Autostart"), true)
	assign(v.FieldByName("HealthSeconds"), int64(15))
	assign(v.FieldByName("SequenceStart"), int64(42))
	assign(v.FieldByName("Formats"), []any{"hls"})

	if opts.Port != ":1234" || !opts.Autostart || opts.HealthSeconds != 15 {
		t.Errorf("assign produced %+v", opts)
	}
	if opts.SequenceStart != 42 {
		t.Errorf("SequenceStart = %d, want 42", opts.SequenceStart)
	}
	if want := []string{"hls"}; !reflect.DeepEqual(opts.Formats, want) {
		t.Errorf("Formats = %v, want %v", opts.Formats, want)
	}

	// Wrong dynamic types leave the field untouched
	assign(v.FieldByName("HealthSeconds"), "not a number")
	if opts.HealthSeconds != 15 {
		t.Errorf("HealthSeconds changed on mismatched type: %d", opts.HealthSeconds)
	}
	assign(v.FieldByName("SequenceStart"), int64(-1))
	if opts.SequenceStart != 42 {
		t.Errorf("negative value must not reach a uint64 field: %d", opts.SequenceStart)
	}
}

func TestAssignStringKinds(t *testing.T) {
	opts := &daemonOptions{}
	v := reflect.ValueOf(opts).Elem()

	assignString(v.FieldByName("Port"), ":9999")
	assignString(v.FieldByName("Autostart"), "1")
	assignString(v.FieldByName("HealthSeconds"), "25")
	assignString(v.FieldByName("SequenceStart"), "100000")
	assignString(v.FieldByName("Formats"), " hls , dash ")

	if opts.Port != ":9999" || !opts.Autostart || opts.HealthSeconds != 25 || opts.SequenceStart != 100000 {
		t.Errorf("assignString produced %+v", opts)
	}
	if want := []string{"hls", "dash"}; !reflect.DeepEqual(opts.Formats, want) {
		t.Errorf("Formats = %v, want %v", opts.Formats, want)
	}

	assignString(v.FieldByName("HealthSeconds"), "nope")
	if opts.HealthSeconds != 25 {
		t.Errorf("unparsable int changed the field: %d", opts.HealthSeconds)
	}
}

func TestFlagName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Port", "port"},
		{"PresetsFile", "presets-file"},
		{"LoggingLevel", "logging-level"},
	}
	for _, tt := range tests {
		if got := flagName(tt.in); got != tt.want {
			t.Errorf("flagName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadLoggingConfigModuleLevels(t *testing.T) {
	path := writeConfigFile(t, `
[logging]
level = "info"
format = "json"
streams = "debug"
scte35 = "debug"
manifest = "warn"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "info" || cfg.Format != "json" {
		t.Errorf("level/format = %q/%q", cfg.Level, cfg.Format)
	}
	want := map[string]string{"streams": "debug", "scte35": "debug", "manifest": "warn"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}
}

func TestLoadLoggingConfigMissingFile(t *testing.T) {
	cfg := LoadLoggingConfig("nope.toml")
	if cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}
