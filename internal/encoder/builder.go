package encoder

import (
	"fmt"
	"strings"
)

// Base returns the encoder binary invocation prefix shared by all pipelines.
// -stats forces the periodic progress line on stderr that the metrics
// scraper depends on.
func Base() string {
	return "ffmpeg -hide_banner -loglevel level+info -stats"
}

// BuildCommand builds an encoder command from structured parameters.
// The argument order is deterministic for a given Params value so that
// command comparison can detect configuration changes.
func BuildCommand(p *Params) string {
	var cmd strings.Builder

	cmd.WriteString(Base())

	// Timestamp preservation must precede the input for marker alignment
	if p.CopyTimestamps {
		cmd.WriteString(" -copyts -start_at_zero")
	}

	cmd.WriteString(" -i " + p.InputURL)

	// Video encoder
	cmd.WriteString(" -c:v " + p.VideoCodec)
	if p.BitrateKbps > 0 {
		cmd.WriteString(fmt.Sprintf(" -b:v %dk", p.BitrateKbps))
	}
	if p.Width > 0 && p.Height > 0 {
		cmd.WriteString(fmt.Sprintf(" -s %dx%d", p.Width, p.Height))
	}
	if p.Framerate > 0 {
		cmd.WriteString(fmt.Sprintf(" -r %d", p.Framerate))
	}
	if p.GOP > 0 {
		cmd.WriteString(fmt.Sprintf(" -g %d", p.GOP))
	} else {
		// Default GOP keeps segment boundaries aligned with keyframes
		cmd.WriteString(" -g 60")
	}
	if p.BFrames >= 0 {
		cmd.WriteString(fmt.Sprintf(" -bf %d", p.BFrames))
	}
	if p.Profile != "" {
		cmd.WriteString(" -profile:v " + p.Profile)
	}
	if p.PixelFormat != "" {
		cmd.WriteString(" -pix_fmt " + p.PixelFormat)
	}

	// Audio encoder
	if p.AudioCodec != "" {
		cmd.WriteString(" -c:a " + p.AudioCodec)
		if p.AudioBitrateKbps > 0 {
			cmd.WriteString(fmt.Sprintf(" -b:a %dk", p.AudioBitrateKbps))
		}
		if p.SampleRate > 0 {
			cmd.WriteString(fmt.Sprintf(" -ar %d", p.SampleRate))
		}
		if p.Channels > 0 {
			cmd.WriteString(fmt.Sprintf(" -ac %d", p.Channels))
		}
	}

	if p.ProgressSocket != "" {
		cmd.WriteString(" -progress unix://" + p.ProgressSocket)
	}

	// Ad-marker passthrough: keep splice info on its own PID
	if p.SCTE35PID > 0 {
		cmd.WriteString(fmt.Sprintf(" -mpegts_pid_scte35 %d -muxpreload 0 -muxdelay 0", p.SCTE35PID))
	}

	// Format-specific muxer flags
	switch p.Format {
	case "dash":
		cmd.WriteString(fmt.Sprintf(" -f dash -seg_duration %d -window_size %d -use_template 1",
			segSeconds(p), windowSize(p)))
	default:
		cmd.WriteString(fmt.Sprintf(" -f hls -hls_time %d -hls_list_size %d -hls_flags delete_segments+program_date_time",
			segSeconds(p), playlistLength(p)))
	}

	cmd.WriteString(" " + p.OutputPath)

	return cmd.String()
}

func segSeconds(p *Params) int {
	if p.SegmentSeconds > 0 {
		return p.SegmentSeconds
	}
	return 4
}

func playlistLength(p *Params) int {
	if p.PlaylistLength > 0 {
		return p.PlaylistLength
	}
	return 6
}

func windowSize(p *Params) int {
	if p.WindowSize > 0 {
		return p.WindowSize
	}
	return 5
}
