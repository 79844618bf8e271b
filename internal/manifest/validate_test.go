package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestValidateFilePlaylist(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "seg00000.ts", "data")
	path := writeArtifact(t, dir, "ch.m3u8",
		"#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:4.000,\nseg00000.ts\n")

	defects, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if len(defects) != 0 {
		t.Errorf("unexpected defects: %v", defects)
	}
}

func TestValidateFilePlaylistDefects(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "bad.m3u8",
		"#EXT-X-VERSION:3\n#EXTINF:4.000,\nmissing.ts\n")

	defects, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	found := map[string]bool{}
	for _, d := range defects {
		found[d] = true
	}
	if !found["playlist does not start with #EXTM3U"] {
		t.Errorf("missing header defect: %v", defects)
	}
	if !found["segment file missing: missing.ts"] {
		t.Errorf("missing segment defect: %v", defects)
	}
}

func TestValidateFileMPD(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "chunk-0001.m4s", "data")
	path := writeArtifact(t, dir, "ch.mpd", `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" minBufferTime="PT2S" profiles="urn:mpeg:dash:profile:isoff-live:2011">
  <Period id="1">
    <AdaptationSet contentType="video" mimeType="video/mp4" segmentAlignment="true">
      <Representation id="video" bandwidth="5000000">
        <SegmentList duration="4" timescale="1">
          <SegmentURL media="chunk-0001.m4s"/>
        </SegmentList>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>
`)

	defects, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if len(defects) != 0 {
		t.Errorf("unexpected defects: %v", defects)
	}
}

func TestValidateFileMPDDefects(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "empty.mpd",
		`<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="weird"></MPD>`)

	defects, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if len(defects) != 2 {
		t.Errorf("defects = %v, want type and period complaints", defects)
	}
}

func TestValidateFileMalformedXML(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "broken.mpd", "<MPD><Period></MPD>")

	defects, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if len(defects) != 1 {
		t.Errorf("defects = %v", defects)
	}
}

func TestValidateFileUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "ch.txt", "whatever")
	if _, err := ValidateFile(path); err == nil {
		t.Errorf("expected error for unsupported extension")
	}
}
