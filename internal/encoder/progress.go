package encoder

import (
	"regexp"
	"strconv"
)

// Progress holds the metric values scraped from one encoder status line.
// Nil fields were not present on the line.
type Progress struct {
	BitrateKbps  *float64
	FPS          *float64
	AudioLevelDB *float64
}

// Status-line patterns. This is a best-effort contract: the encoder's
// stderr format is not versioned, so absent matches are simply skipped.
var (
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	audioRe   = regexp.MustCompile(`audio:\s*(-?[\d.]+)\s*dB`)
)

// ParseProgress scrapes bitrate, fps and audio level values from an
// encoder status line. Returns nil when the line carries none of them.
func ParseProgress(line string) *Progress {
	var p Progress
	found := false

	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.BitrateKbps = &v
			found = true
		}
	}
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.FPS = &v
			found = true
		}
	}
	if m := audioRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.AudioLevelDB = &v
			found = true
		}
	}

	if !found {
		return nil
	}
	return &p
}
