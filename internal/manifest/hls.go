package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/logging"
	"github.com/cueplex/cueplex/internal/scte35"
)

// ErrStreamNotFound is returned for operations on streams without
// manifest state.
var ErrStreamNotFound = fmt.Errorf("no manifest state for stream")

const endListTag = "#EXT-X-ENDLIST"

type hlsStream struct {
	mu       sync.Mutex
	settings StreamSettings
	segments []Segment
	events   []*scte35.Event
	ended    bool
}

func (s *hlsStream) path() string {
	return filepath.Join(s.settings.OutputDir, s.settings.Name+".m3u8")
}

// HLS maintains live HLS playlists.
type HLS struct {
	mu      sync.RWMutex
	streams map[string]*hlsStream
	writer  *artifactWriter
	logger  *slog.Logger
}

// NewHLS creates an HLS manifest generator.
func NewHLS(bus *events.Bus) *HLS {
	return &HLS{
		streams: make(map[string]*hlsStream),
		writer:  newArtifactWriter("hls", bus),
		logger:  logging.GetLogger("manifest").With("format", "hls"),
	}
}

// Format returns "hls".
func (h *HLS) Format() string { return "hls" }

// StartStream allocates playlist state and writes an initial empty but
// structurally valid playlist.
func (h *HLS) StartStream(settings StreamSettings) error {
	if settings.Name == "" {
		return fmt.Errorf("stream name cannot be empty")
	}
	if err := os.MkdirAll(settings.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	h.mu.Lock()
	if _, exists := h.streams[settings.Name]; exists {
		h.mu.Unlock()
		return fmt.Errorf("manifest state for stream %s already exists", settings.Name)
	}
	st := &hlsStream{settings: settings}
	h.streams[settings.Name] = st
	h.mu.Unlock()

	h.logger.Info("Playlist initialized", "stream_id", settings.Name, "path", st.path())
	return h.rewrite(st)
}

// AddSegment appends a segment and rewrites the playlist.
func (h *HLS) AddSegment(streamName string, seg Segment) error {
	st, err := h.stream(streamName)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.segments = append(st.segments, seg)
	st.mu.Unlock()

	return h.rewrite(st)
}

// InjectSCTE35 adds a marker event and rewrites the playlist.
func (h *HLS) InjectSCTE35(streamName string, ev *scte35.Event) error {
	st, err := h.stream(streamName)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.events = append(st.events, ev)
	st.mu.Unlock()

	h.logger.Debug("Marker added to playlist",
		"stream_id", streamName, "event_id", ev.ID, "type", ev.Type)
	return h.rewrite(st)
}

// StopStream appends #EXT-X-ENDLIST and discards in-memory state. The
// final artifact remains on disk. If state is already gone, the on-disk
// playlist is checked so that a second stop does not duplicate the tag.
func (h *HLS) StopStream(streamName string) error {
	h.mu.Lock()
	st, ok := h.streams[streamName]
	if ok {
		delete(h.streams, streamName)
	}
	h.mu.Unlock()

	if !ok {
		return nil
	}

	st.mu.Lock()
	alreadyEnded := st.ended
	st.ended = true
	st.mu.Unlock()

	if alreadyEnded {
		return nil
	}

	// Guard against a final tag already present on disk
	if data, err := os.ReadFile(st.path()); err == nil &&
		strings.Contains(string(data), endListTag) {
		return nil
	}

	h.logger.Info("Playlist finalized", "stream_id", streamName)
	return h.rewrite(st)
}

// Content returns the current on-disk playlist.
func (h *HLS) Content(streamName string) (string, error) {
	st, err := h.stream(streamName)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(st.path())
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}
	return string(data), nil
}

// Validate checks the on-disk playlist structure and that every
// referenced segment file exists.
func (h *HLS) Validate(streamName string) ([]string, error) {
	st, err := h.stream(streamName)
	if err != nil {
		return nil, err
	}

	var defects []string

	data, err := os.ReadFile(st.path())
	if err != nil {
		return []string{fmt.Sprintf("playlist file missing: %v", err)}, nil
	}
	content := string(data)

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
		segPath := filepath.Join(st.settings.OutputDir, line)
		if _, err := os.Stat(segPath); err != nil {
			defects = append(defects, fmt.Sprintf("segment file missing: %s", line))
		}
	}

	return defects, nil
}

// CleanupOldSegments deletes segment files older than maxAge.
func (h *HLS) CleanupOldSegments(streamName string, maxAge time.Duration) (int, error) {
	st, err := h.stream(streamName)
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
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ts") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(st.settings.OutputDir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		h.logger.Info("Cleaned up old segments", "stream_id", streamName, "removed", removed)
	}
	return removed, nil
}

func (h *HLS) stream(name string) (*hlsStream, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	return st, nil
}

// rewrite renders the playlist from scratch and writes it to disk.
// Marker events are merged in timestamp order: before each segment's
// lines, every not-yet-emitted event at or before that segment's
// timestamp is written; leftovers land after the last segment.
//
// The stream lock is held across render and write so concurrent
// mutations on the same stream cannot land an older render on disk
// after a newer one.
func (h *HLS) rewrite(st *hlsStream) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return h.writer.write(st.settings.Name, st.path(), []byte(renderPlaylist(st)))
}

func renderPlaylist(st *hlsStream) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", st.settings.targetDuration())
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence(st.segments))
	b.WriteString("#EXT-X-PLAYLIST-TYPE:EVENT\n")

	pending := mergeOrder(st.events)
	next := 0
	for _, seg := range st.segments {
		for next < len(pending) && !pending[next].CreatedAt.After(seg.Timestamp) {
			writeCueTag(&b, pending[next])
			next++
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		b.WriteString(seg.URI + "\n")
	}
	for ; next < len(pending); next++ {
		writeCueTag(&b, pending[next])
	}

	if st.ended {
		b.WriteString(endListTag + "\n")
	}
	return b.String()
}

func writeCueTag(b *strings.Builder, ev *scte35.Event) {
	switch ev.Type {
	case scte35.EventCueOut:
		b.WriteString("#EXT-X-CUE-OUT:" + strconv.FormatFloat(ev.Duration, 'f', -1, 64) + "\n")
	case scte35.EventCueIn:
		b.WriteString("#EXT-X-CUE-IN\n")
	}
}

func mediaSequence(segments []Segment) uint64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[0].Sequence
}
