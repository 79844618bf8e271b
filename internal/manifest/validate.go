package manifest

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateFile inspects a manifest artifact on disk without requiring
// live stream state, used by the validate CLI command. The format is
// inferred from the file extension. Returned defects are empty when the
// artifact passes.
func ValidateFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return validatePlaylistFile(path)
	case ".mpd":
		return validateMPDFile(path)
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q", filepath.Ext(path))
	}
}

func validatePlaylistFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	content := string(data)
	dir := filepath.Dir(path)

	var defects []string
	if !strings.HasPrefix(content, "#EXTM3U") {
		defects = append(defects, "playlist does not start with #EXTM3U")
	}
	for _, required := range []string{"#EXT-X-VERSION", "#EXT-X-TARGETDURATION", "#EXT-X-MEDIA-SEQUENCE"} {
		if !strings.Contains(content, required) {
			defects = append(defects, fmt.Sprintf("missing required tag %s", required))
		}
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, line)); err != nil {
			defects = append(defects, fmt.Sprintf("segment file missing: %s", line))
		}
	}
	return defects, nil
}

func validateMPDFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	dir := filepath.Dir(path)

	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return []string{fmt.Sprintf("manifest is not well-formed XML: %v", err)}, nil
	}

	var defects []string
	if mpd.Type != "dynamic" && mpd.Type != "static" {
		defects = append(defects, fmt.Sprintf("unexpected MPD type %q", mpd.Type))
	}
	if len(mpd.Periods) == 0 {
		defects = append(defects, "manifest has no Period")
	}
	for _, period := range mpd.Periods {
		for _, as := range period.AdaptationSets {
			for _, rep := range as.Representations {
				if rep.SegmentList == nil {
					continue
				}
				for _, su := range rep.SegmentList.SegmentURLs {
					if _, err := os.Stat(filepath.Join(dir, su.Media)); err != nil {
						defects = append(defects, fmt.Sprintf("segment file missing: %s", su.Media))
					}
				}
			}
		}
	}
	return defects, nil
}
