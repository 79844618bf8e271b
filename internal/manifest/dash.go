package manifest

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/logging"
	"github.com/cueplex/cueplex/internal/scte35"
)

// SCTE-35 signaling scheme for DASH SupplementalProperty descriptors.
const scte35SchemeURI = "urn:scte:scte35:2014:xml+bin"

// MPD is the DASH manifest root element.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Xmlns                     string   `xml:"xmlns,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	Type                      string   `xml:"type,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	AvailabilityStartTime     string   `xml:"availabilityStartTime,attr,omitempty"`
	AvailabilityEndTime       string   `xml:"availabilityEndTime,attr,omitempty"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr,omitempty"`
	Periods                   []Period `xml:"Period"`
}

// Period groups the adaptation sets of one presentation interval.
type Period struct {
	ID             string          `xml:"id,attr"`
	Start          string          `xml:"start,attr,omitempty"`
	Duration       string          `xml:"duration,attr,omitempty"`
	AdaptationSets []AdaptationSet `xml:"AdaptationSet"`
}

// AdaptationSet holds the representations of one media type.
type AdaptationSet struct {
	ContentType     string           `xml:"contentType,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	SegmentAlign    bool             `xml:"segmentAlignment,attr"`
	Representations []Representation `xml:"Representation"`
}

// Representation is a single encoded rendition.
type Representation struct {
	ID                     string                 `xml:"id,attr"`
	Codecs                 string                 `xml:"codecs,attr,omitempty"`
	Bandwidth              int                    `xml:"bandwidth,attr"`
	Width                  int                    `xml:"width,attr,omitempty"`
	Height                 int                    `xml:"height,attr,omitempty"`
	FrameRate              int                    `xml:"frameRate,attr,omitempty"`
	AudioSamplingRate      int                    `xml:"audioSamplingRate,attr,omitempty"`
	SupplementalProperties []SupplementalProperty `xml:"SupplementalProperty"`
	SegmentList            *SegmentList           `xml:"SegmentList,omitempty"`
}

// SupplementalProperty carries an SCTE-35 signal for a representation.
type SupplementalProperty struct {
	SchemeIDURI string  `xml:"schemeIdUri,attr"`
	Signal      *Signal `xml:"Signal,omitempty"`
}

// Signal wraps the base64 splice descriptor payload.
type Signal struct {
	Binary string `xml:"Binary"`
}

// SegmentList enumerates the media segments of a representation.
type SegmentList struct {
	Duration    int          `xml:"duration,attr"`
	Timescale   int          `xml:"timescale,attr"`
	SegmentURLs []SegmentURL `xml:"SegmentURL"`
}

// SegmentURL references one media segment file.
type SegmentURL struct {
	Media string `xml:"media,attr"`
}

type dashStream struct {
	mu       sync.Mutex
	settings StreamSettings
	segments []Segment
	events   []*scte35.Event
	started  time.Time
	static   bool
	endedAt  time.Time
}

func (s *dashStream) path() string {
	return filepath.Join(s.settings.OutputDir, s.settings.Name+".mpd")
}

// DASH maintains live DASH manifests.
type DASH struct {
	mu      sync.RWMutex
	streams map[string]*dashStream
	writer  *artifactWriter
	logger  *slog.Logger
}

// NewDASH creates a DASH manifest generator.
func NewDASH(bus *events.Bus) *DASH {
	return &DASH{
		streams: make(map[string]*dashStream),
		writer:  newArtifactWriter("dash", bus),
		logger:  logging.GetLogger("manifest").With("format", "dash"),
	}
}

// Format returns "dash".
func (d *DASH) Format() string { return "dash" }

// StartStream allocates manifest state and writes an initial MPD with
// video and audio adaptation sets derived from the stream settings.
func (d *DASH) StartStream(settings StreamSettings) error {
	if settings.Name == "" {
		return fmt.Errorf("stream name cannot be empty")
	}
	if err := os.MkdirAll(settings.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	d.mu.Lock()
	if _, exists := d.streams[settings.Name]; exists {
		d.mu.Unlock()
		return fmt.Errorf("manifest state for stream %s already exists", settings.Name)
	}
	st := &dashStream{settings: settings, started: time.Now().UTC()}
	d.streams[settings.Name] = st
	d.mu.Unlock()

	d.logger.Info("Manifest initialized", "stream_id", settings.Name, "path", st.path())
	return d.rewrite(st)
}

// AddSegment appends a segment and rewrites the manifest.
func (d *DASH) AddSegment(streamName string, seg Segment) error {
	st, err := d.stream(streamName)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.segments = append(st.segments, seg)
	st.mu.Unlock()

	return d.rewrite(st)
}

// InjectSCTE35 adds a marker event and rewrites the manifest.
func (d *DASH) InjectSCTE35(streamName string, ev *scte35.Event) error {
	st, err := d.stream(streamName)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.events = append(st.events, ev)
	st.mu.Unlock()

	d.logger.Debug("Marker added to manifest",
		"stream_id", streamName, "event_id", ev.ID, "type", ev.Type)
	return d.rewrite(st)
}

// StopStream flips the manifest from dynamic to static, records the
// availability end time and discards in-memory state.
func (d *DASH) StopStream(streamName string) error {
	d.mu.Lock()
	st, ok := d.streams[streamName]
	if ok {
		delete(d.streams, streamName)
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}

	st.mu.Lock()
	alreadyStatic := st.static
	st.static = true
	st.endedAt = time.Now().UTC()
	st.mu.Unlock()

	if alreadyStatic {
		return nil
	}

	d.logger.Info("Manifest finalized", "stream_id", streamName)
	return d.rewrite(st)
}

// Content returns the current on-disk manifest.
func (d *DASH) Content(streamName string) (string, error) {
	st, err := d.stream(streamName)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(st.path())
	if err != nil {
		return "", fmt.Errorf("failed to read manifest: %w", err)
	}
	return string(data), nil
}

// Validate checks the on-disk manifest structure and that every
// referenced segment file exists.
func (d *DASH) Validate(streamName string) ([]string, error) {
	st, err := d.stream(streamName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(st.path())
	if err != nil {
		return []string{fmt.Sprintf("manifest file missing: %v", err)}, nil
	}

	var defects []string
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return append(defects, fmt.Sprintf("manifest is not valid XML: %v", err)), nil
	}

	if len(mpd.Periods) == 0 {
		defects = append(defects, "manifest has no Period element")
	}
	for _, period := range mpd.Periods {
		if len(period.AdaptationSets) == 0 {
			defects = append(defects, fmt.Sprintf("period %s has no AdaptationSet", period.ID))
		}
		for _, as := range period.AdaptationSets {
			for _, rep := range as.Representations {
				if rep.SegmentList == nil {
					continue
				}
				for _, su := range rep.SegmentList.SegmentURLs {
					segPath := filepath.Join(st.settings.OutputDir, su.Media)
					if _, err := os.Stat(segPath); err != nil {
						defects = append(defects, fmt.Sprintf("segment file missing: %s", su.Media))
					}
				}
			}
		}
	}

	return defects, nil
}

// CleanupOldSegments deletes segment files older than maxAge.
func (d *DASH) CleanupOldSegments(streamName string, maxAge time.Duration) (int, error) {
	st, err := d.stream(streamName)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(st.settings.OutputDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".m4s") && !strings.HasSuffix(name, ".mp4")) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(st.settings.OutputDir, name)); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		d.logger.Info("Cleaned up old segments", "stream_id", streamName, "removed", removed)
	}
	return removed, nil
}

func (d *DASH) stream(name string) (*dashStream, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	return st, nil
}

// rewrite renders the manifest and writes it while holding the stream
// lock, serializing concurrent mutations so a stale render can never
// overwrite a newer one on disk.
func (d *DASH) rewrite(st *dashStream) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := xml.MarshalIndent(renderMPD(st), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render manifest: %w", err)
	}
	content := append([]byte(xml.Header), data...)
	content = append(content, '\n')

	return d.writer.write(st.settings.Name, st.path(), content)
}

func renderMPD(st *dashStream) *MPD {
	settings := st.settings

	properties := make([]SupplementalProperty, 0, len(st.events))
	for _, ev := range mergeOrder(st.events) {
		properties = append(properties, SupplementalProperty{
			SchemeIDURI: scte35SchemeURI,
			Signal:      &Signal{Binary: ev.Descriptor},
		})
	}

	var totalDuration float64
	segmentURLs := make([]SegmentURL, 0, len(st.segments))
	for _, seg := range st.segments {
		totalDuration += seg.Duration
		segmentURLs = append(segmentURLs, SegmentURL{Media: seg.URI})
	}

	segList := &SegmentList{
		Duration:  settings.targetDuration(),
		Timescale: 1,
	}
	if len(segmentURLs) > 0 {
		segList.SegmentURLs = segmentURLs
	}

	video := Representation{
		ID:                     "video",
		Codecs:                 settings.VideoCodec,
		Bandwidth:              settings.BitrateKbps * 1000,
		Width:                  settings.Width,
		Height:                 settings.Height,
		FrameRate:              settings.Framerate,
		SupplementalProperties: properties,
		SegmentList:            segList,
	}
	audio := Representation{
		ID:                     "audio",
		Codecs:                 settings.AudioCodec,
		Bandwidth:              settings.AudioBitrateKbps * 1000,
		AudioSamplingRate:      settings.SampleRate,
		SupplementalProperties: properties,
	}

	mpd := &MPD{
		Xmlns:         "urn:mpeg:dash:schema:mpd:2011",
		Profiles:      "urn:mpeg:dash:profile:isoff-live:2011",
		Type:          "dynamic",
		MinBufferTime: "PT2S",
		Periods: []Period{{
			ID:       "1",
			Start:    "PT0S",
			Duration: isoDuration(totalDuration),
			AdaptationSets: []AdaptationSet{
				{
					ContentType:     "video",
					MimeType:        "video/mp4",
					SegmentAlign:    true,
					Representations: []Representation{video},
				},
				{
					ContentType:     "audio",
					MimeType:        "audio/mp4",
					SegmentAlign:    true,
					Representations: []Representation{audio},
				},
			},
		}},
	}

	if !st.started.IsZero() {
		mpd.AvailabilityStartTime = st.started.Format(time.RFC3339)
	}
	if st.static {
		mpd.Type = "static"
		mpd.AvailabilityEndTime = st.endedAt.Format(time.RFC3339)
		mpd.MediaPresentationDuration = isoDuration(totalDuration)
	}

	return mpd
}

// isoDuration formats seconds as an ISO 8601 duration.
func isoDuration(seconds float64) string {
	if seconds <= 0 {
		return "PT0S"
	}
	return fmt.Sprintf("PT%.3fS", seconds)
}
