package orchestrator

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cueplex/cueplex/internal/encoder"
	"github.com/cueplex/cueplex/internal/manifest"
)

// Output format names.
const (
	FormatHLS  = "hls"
	FormatDASH = "dash"
)

// SCTE35Config enables in-band ad markers for a stream.
type SCTE35Config struct {
	Enabled bool `toml:"enabled" json:"enabled" doc:"Whether ad markers can be injected"`
	PID     int  `toml:"pid,omitempty" json:"pid,omitempty" example:"500" doc:"MPEG-TS PID for splice info, 1-8191"`
}

// StreamConfig is the full configuration for one stream.
type StreamConfig struct {
	Name     string   `toml:"name" json:"name" example:"channel1" doc:"Unique stream name"`
	InputURL string   `toml:"input_url" json:"input_url" example:"srt://0.0.0.0:9000" doc:"Encoder input"`
	Formats  []string `toml:"formats" json:"formats" example:"[\"hls\"]" doc:"Enabled output formats (hls, dash)"`

	VideoCodec       string `toml:"video_codec,omitempty" json:"video_codec,omitempty" example:"libx264" doc:"Video encoder"`
	VideoBitrateKbps int    `toml:"video_bitrate_kbps" json:"video_bitrate_kbps" example:"5000" doc:"Video bitrate in kbps"`
	Width            int    `toml:"width,omitempty" json:"width,omitempty" example:"1920"`
	Height           int    `toml:"height,omitempty" json:"height,omitempty" example:"1080"`
	Framerate        int    `toml:"framerate,omitempty" json:"framerate,omitempty" example:"30"`
	GOP              int    `toml:"gop,omitempty" json:"gop,omitempty" doc:"Keyframe interval in frames"`
	BFrames          int    `toml:"bframes,omitempty" json:"bframes,omitempty" doc:"B-frame count, -1 leaves the encoder default"`
	Profile          string `toml:"profile,omitempty" json:"profile,omitempty" example:"main"`
	PixelFormat      string `toml:"pixel_format,omitempty" json:"pixel_format,omitempty" example:"yuv420p"`

	AudioCodec       string `toml:"audio_codec,omitempty" json:"audio_codec,omitempty" example:"aac"`
	AudioBitrateKbps int    `toml:"audio_bitrate_kbps" json:"audio_bitrate_kbps" example:"128" doc:"Audio bitrate in kbps"`
	SampleRate       int    `toml:"sample_rate,omitempty" json:"sample_rate,omitempty" example:"48000"`
	Channels         int    `toml:"channels,omitempty" json:"channels,omitempty" example:"2"`

	SegmentSeconds int `toml:"segment_seconds,omitempty" json:"segment_seconds,omitempty" example:"4" doc:"Segment duration"`
	PlaylistLength int `toml:"playlist_length,omitempty" json:"playlist_length,omitempty" example:"6" doc:"HLS playlist window in segments"`
	WindowSize     int `toml:"window_size,omitempty" json:"window_size,omitempty" example:"5" doc:"DASH window size in segments"`

	SCTE35 SCTE35Config `toml:"scte35" json:"scte35" doc:"Ad-marker settings"`

	OutputDir string `toml:"output_dir,omitempty" json:"output_dir,omitempty" doc:"Base directory for manifests and segments"`
}

const maxSCTE35PID = 8191

// Validate checks the configuration before any subprocess is spawned.
func (c *StreamConfig) Validate() error {
	if c.Name == "" {
		return newError(CodeInvalidParams, "", "stream name cannot be empty")
	}
	if c.InputURL == "" {
		return newError(CodeInvalidParams, c.Name, "input URL cannot be empty")
	}
	if len(c.Formats) == 0 {
		return newError(CodeInvalidParams, c.Name, "at least one output format must be enabled")
	}
	seen := make(map[string]bool)
	for _, f := range c.Formats {
		if f != FormatHLS && f != FormatDASH {
			return newError(CodeInvalidParams, c.Name, "unknown output format %q", f)
		}
		if seen[f] {
			return newError(CodeInvalidParams, c.Name, "duplicate output format %q", f)
		}
		seen[f] = true
	}
	if c.VideoBitrateKbps <= 0 {
		return newError(CodeInvalidParams, c.Name, "video bitrate must be positive, got %d", c.VideoBitrateKbps)
	}
	if c.AudioBitrateKbps <= 0 {
		return newError(CodeInvalidParams, c.Name, "audio bitrate must be positive, got %d", c.AudioBitrateKbps)
	}
	if c.SCTE35.Enabled && (c.SCTE35.PID < 1 || c.SCTE35.PID > maxSCTE35PID) {
		return newError(CodeInvalidParams, c.Name, "SCTE-35 PID must be in [1, %d], got %d", maxSCTE35PID, c.SCTE35.PID)
	}
	return nil
}

// HasFormat reports whether the format is enabled.
func (c *StreamConfig) HasFormat(format string) bool {
	return slices.Contains(c.Formats, format)
}

// streamDir is the output directory for this stream's artifacts.
func (c *StreamConfig) streamDir() string {
	base := c.OutputDir
	if base == "" {
		base = "streams"
	}
	return filepath.Join(base, c.Name)
}

// EncoderParams builds the deterministic subprocess parameters for one
// output format. The encoder writes its own media playlist next to the
// generator-maintained artifact.
func (c *StreamConfig) EncoderParams(format string) *encoder.Params {
	mediaExt := "_media.m3u8"
	if format == FormatDASH {
		mediaExt = "_media.mpd"
	}

	p := &encoder.Params{
		InputURL:         c.InputURL,
		VideoCodec:       c.VideoCodec,
		BitrateKbps:      c.VideoBitrateKbps,
		Width:            c.Width,
		Height:           c.Height,
		Framerate:        c.Framerate,
		GOP:              c.GOP,
		BFrames:          c.BFrames,
		Profile:          c.Profile,
		PixelFormat:      c.PixelFormat,
		AudioCodec:       c.AudioCodec,
		AudioBitrateKbps: c.AudioBitrateKbps,
		SampleRate:       c.SampleRate,
		Channels:         c.Channels,
		Format:           format,
		SegmentSeconds:   c.SegmentSeconds,
		PlaylistLength:   c.PlaylistLength,
		WindowSize:       c.WindowSize,
		OutputPath:       filepath.Join(c.streamDir(), c.Name+mediaExt),
	}
	if p.VideoCodec == "" {
		p.VideoCodec = "libx264"
	}
	if p.AudioCodec == "" {
		p.AudioCodec = "aac"
	}
	if c.SCTE35.Enabled {
		p.SCTE35PID = c.SCTE35.PID
		p.CopyTimestamps = true
	}
	return p
}

// manifestSettings derives the generator settings for this stream.
func (c *StreamConfig) manifestSettings() manifest.StreamSettings {
	return manifest.StreamSettings{
		Name:             c.Name,
		OutputDir:        c.streamDir(),
		TargetDuration:   c.SegmentSeconds,
		VideoCodec:       c.VideoCodec,
		BitrateKbps:      c.VideoBitrateKbps,
		Width:            c.Width,
		Height:           c.Height,
		Framerate:        c.Framerate,
		AudioCodec:       c.AudioCodec,
		AudioBitrateKbps: c.AudioBitrateKbps,
		SampleRate:       c.SampleRate,
		Channels:         c.Channels,
	}
}

// String returns a short description for logs.
func (c *StreamConfig) String() string {
	return fmt.Sprintf("%s [%dx%d @ %d kbps, formats %v]",
		c.Name, c.Width, c.Height, c.VideoBitrateKbps, c.Formats)
}
