package manifest

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cueplex/cueplex/internal/scte35"
)

func parseMPD(t *testing.T, gen *DASH, name string) *MPD {
	t.Helper()
	content, err := gen.Content(name)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	var mpd MPD
	if err := xml.Unmarshal([]byte(content), &mpd); err != nil {
		t.Fatalf("manifest is not valid XML: %v", err)
	}
	return &mpd
}

func TestDASHStartStreamWritesValidMPD(t *testing.T) {
	gen := NewDASH(nil)
	settings := testSettings(t, "channel1")

	if err := gen.StartStream(settings); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	mpd := parseMPD(t, gen, "channel1")
	if mpd.Type != "dynamic" {
		t.Errorf("type = %s, want dynamic", mpd.Type)
	}
	if len(mpd.Periods) != 1 {
		t.Fatalf("periods = %d, want 1", len(mpd.Periods))
	}
	sets := mpd.Periods[0].AdaptationSets
	if len(sets) != 2 {
		t.Fatalf("adaptation sets = %d, want 2", len(sets))
	}

	video := sets[0].Representations[0]
	if video.Bandwidth != 5000000 {
		t.Errorf("video bandwidth = %d, want 5000000", video.Bandwidth)
	}
	if video.Width != 1920 || video.Height != 1080 {
		t.Errorf("video resolution = %dx%d, want 1920x1080", video.Width, video.Height)
	}

	audio := sets[1].Representations[0]
	if audio.AudioSamplingRate != 48000 {
		t.Errorf("audio sampling rate = %d, want 48000", audio.AudioSamplingRate)
	}
}

func TestDASHInjectAddsSupplementalProperty(t *testing.T) {
	gen := NewDASH(nil)
	if err := gen.StartStream(testSettings(t, "channel1")); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	ev := cueEvent("evt-100023", scte35.EventCueOut, 30, time.Now())
	ev.Descriptor = "ZmFrZS1kZXNjcmlwdG9y"
	if err := gen.InjectSCTE35("channel1", ev); err != nil {
		t.Fatalf("InjectSCTE35 failed: %v", err)
	}

	mpd := parseMPD(t, gen, "channel1")
	video := mpd.Periods[0].AdaptationSets[0].Representations[0]
	if len(video.SupplementalProperties) != 1 {
		t.Fatalf("supplemental properties = %d, want 1", len(video.SupplementalProperties))
	}
	prop := video.SupplementalProperties[0]
	if prop.SchemeIDURI != scte35SchemeURI {
		t.Errorf("schemeIdUri = %s, want %s", prop.SchemeIDURI, scte35SchemeURI)
	}
	if prop.Signal == nil || prop.Signal.Binary != ev.Descriptor {
		t.Error("descriptor payload not embedded in Signal/Binary")
	}
}

func TestDASHSlowWriteDoesNotDropConcurrentCue(t *testing.T) {
	gen := NewDASH(nil)
	if err := gen.StartStream(testSettings(t, "channel1")); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	release := make(chan struct{})
	var stallOnce sync.Once
	gen.writer.writeFile = func(name string, data []byte, perm os.FileMode) error {
		stallOnce.Do(func() { <-release })
		return os.WriteFile(name, data, perm)
	}

	base := time.Date(2026, 1, 27, 10, 0, 0, 0, time.UTC)
	segDone := make(chan error, 1)
	go func() {
		segDone <- gen.AddSegment("channel1", Segment{Sequence: 0, Duration: 4, URI: "seg00000.m4s", Timestamp: base})
	}()

	cueDone := make(chan error, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		ev := cueEvent("evt-7", scte35.EventCueOut, 30, base.Add(2*time.Second))
		ev.Descriptor = "ZmFrZS1kZXNjcmlwdG9y"
		cueDone <- gen.InjectSCTE35("channel1", ev)
	}()

	time.Sleep(150 * time.Millisecond)
	close(release)

	if err := <-segDone; err != nil {
		t.Fatalf("AddSegment failed: %v", err)
	}
	if err := <-cueDone; err != nil {
		t.Fatalf("InjectSCTE35 failed: %v", err)
	}

	mpd := parseMPD(t, gen, "channel1")
	video := mpd.Periods[0].AdaptationSets[0].Representations[0]
	if len(video.SupplementalProperties) != 1 {
		t.Error("on-disk manifest lost the injected cue")
	}
	if video.SegmentList == nil || len(video.SegmentList.SegmentURLs) != 1 {
		t.Error("on-disk manifest lost the segment")
	}
}

func TestDASHAddSegmentUpdatesPeriodDuration(t *testing.T) {
	gen := NewDASH(nil)
	if err := gen.StartStream(testSettings(t, "channel1")); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	base := time.Now()
	for i := range 3 {
		seg := Segment{
			Sequence:  uint64(i),
			Duration:  4,
			URI:       fmt.Sprintf("chunk-%04d.m4s", i),
			Timestamp: base.Add(time.Duration(i*4) * time.Second),
		}
		if err := gen.AddSegment("channel1", seg); err != nil {
			t.Fatalf("AddSegment failed: %v", err)
		}
	}

	mpd := parseMPD(t, gen, "channel1")
	if got := mpd.Periods[0].Duration; got != "PT12.000S" {
		t.Errorf("period duration = %s, want PT12.000S", got)
	}
	video := mpd.Periods[0].AdaptationSets[0].Representations[0]
	if video.SegmentList == nil || len(video.SegmentList.SegmentURLs) != 3 {
		t.Fatal("expected 3 segment URLs in video representation")
	}
}

func TestDASHStopStreamFlipsToStatic(t *testing.T) {
	gen := NewDASH(nil)
	settings := testSettings(t, "channel1")
	if err := gen.StartStream(settings); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	if err := gen.AddSegment("channel1", Segment{Sequence: 0, Duration: 4, URI: "chunk-0000.m4s", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AddSegment failed: %v", err)
	}

	if err := gen.StopStream("channel1"); err != nil {
		t.Fatalf("StopStream failed: %v", err)
	}
	// Second stop after state discard is a no-op
	if err := gen.StopStream("channel1"); err != nil {
		t.Fatalf("second StopStream failed: %v", err)
	}

	// Read the final artifact directly, in-memory state is gone
	data, err := os.ReadFile(filepath.Join(settings.OutputDir, "channel1.mpd"))
	if err != nil {
		t.Fatalf("reading final manifest failed: %v", err)
	}
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		t.Fatalf("final manifest is not valid XML: %v", err)
	}
	if mpd.Type != "static" {
		t.Errorf("type = %s, want static", mpd.Type)
	}
	if mpd.AvailabilityEndTime == "" {
		t.Error("availabilityEndTime not set on final manifest")
	}
	if mpd.MediaPresentationDuration != "PT4.000S" {
		t.Errorf("mediaPresentationDuration = %s, want PT4.000S", mpd.MediaPresentationDuration)
	}
}

func TestDASHValidateReportsMissingSegment(t *testing.T) {
	gen := NewDASH(nil)
	if err := gen.StartStream(testSettings(t, "channel1")); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	if err := gen.AddSegment("channel1", Segment{Sequence: 0, Duration: 4, URI: "ghost.m4s", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AddSegment failed: %v", err)
	}

	defects, err := gen.Validate("channel1")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	found := false
	for _, d := range defects {
		if strings.Contains(d, "ghost.m4s") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing segment defect, got %v", defects)
	}
}
