// Package manifest maintains on-disk HLS playlists and DASH manifests
// for live streams, merging ad-marker events into the artifact so that
// marker tags always precede the segment that temporally follows them.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/metrics"
	"github.com/cueplex/cueplex/internal/scte35"
)

// Segment is one media segment reported by an encoder pipeline.
// Sequence numbers are monotonically increasing per stream.
type Segment struct {
	Sequence  uint64    `json:"sequence" doc:"Monotonic segment sequence number"`
	Duration  float64   `json:"duration" example:"4.0" doc:"Segment duration in seconds"`
	URI       string    `json:"uri" example:"seg00001.ts" doc:"Segment file name relative to the output directory"`
	Timestamp time.Time `json:"timestamp" doc:"Segment start time"`
}

// StreamSettings carries everything a generator needs to produce an
// initial structurally valid artifact for a stream.
type StreamSettings struct {
	Name             string
	OutputDir        string
	TargetDuration   int // seconds, defaults to 4
	VideoCodec       string
	BitrateKbps      int
	Width            int
	Height           int
	Framerate        int
	AudioCodec       string
	AudioBitrateKbps int
	SampleRate       int
	Channels         int
}

func (s *StreamSettings) targetDuration() int {
	if s.TargetDuration > 0 {
		return s.TargetDuration
	}
	return 4
}

// Generator is the per-format manifest maintainer.
type Generator interface {
	// Format returns the format name ("hls" or "dash").
	Format() string

	// StartStream allocates state and writes an initial empty artifact.
	StartStream(settings StreamSettings) error

	// AddSegment appends a segment and rewrites the artifact.
	AddSegment(streamName string, seg Segment) error

	// InjectSCTE35 adds a marker event and rewrites the artifact.
	InjectSCTE35(streamName string, ev *scte35.Event) error

	// StopStream finalizes the artifact and discards in-memory state.
	// Idempotent: finalizing an already-final artifact is a no-op.
	StopStream(streamName string) error

	// Content returns the current on-disk artifact.
	Content(streamName string) (string, error)

	// Validate checks the artifact structure and referenced segment
	// files, returning human-readable defects rather than failing.
	Validate(streamName string) ([]string, error)

	// CleanupOldSegments deletes segment files older than maxAge and
	// returns how many were removed.
	CleanupOldSegments(streamName string, maxAge time.Duration) (int, error)
}

const writeAttempts = 3

// artifactWriter writes manifest artifacts with a bounded retry. An
// exhausted retry is surfaced as an event for the health monitor
// instead of aborting the stream.
type artifactWriter struct {
	format    string
	bus       *events.Bus
	writeFile func(name string, data []byte, perm os.FileMode) error
	retryWait time.Duration
}

func newArtifactWriter(format string, bus *events.Bus) *artifactWriter {
	return &artifactWriter{
		format:    format,
		bus:       bus,
		writeFile: atomicWriteFile,
		retryWait: 50 * time.Millisecond,
	}
}

// atomicWriteFile writes data to a temp file in the artifact's directory
// and renames it over the target, so a player polling the artifact never
// observes a truncated manifest.
func atomicWriteFile(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, name)
}

func (w *artifactWriter) write(streamName, path string, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if lastErr = w.writeFile(path, data, 0644); lastErr == nil {
			metrics.IncManifestWrite(streamName, w.format)
			return nil
		}
		if attempt < writeAttempts {
			time.Sleep(w.retryWait)
		}
	}

	metrics.IncManifestWriteFailure(streamName, w.format)
	if w.bus != nil {
		w.bus.Publish(events.ManifestWriteFailedEvent{
			Stream:    streamName,
			Format:    w.format,
			Error:     lastErr.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return fmt.Errorf("failed to write %s artifact after %d attempts: %w", w.format, writeAttempts, lastErr)
}

// mergeOrder returns the stream's marker events sorted by creation time
// ascending, the order the rewrite walks them in.
func mergeOrder(evs []*scte35.Event) []*scte35.Event {
	sorted := make([]*scte35.Event, len(evs))
	copy(sorted, evs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}
