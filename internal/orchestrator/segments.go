package orchestrator

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cueplex/cueplex/internal/manifest"
)

// segmentWatcher observes a stream's output directory and feeds
// encoder-produced segment files into the manifest generators. HLS
// segments are .ts files, DASH segments .m4s; anything else the encoder
// writes (playlists, init segments, temp files) is ignored.
type segmentWatcher struct {
	orch    *Orchestrator
	stream  string
	seconds float64
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	seen map[string]bool
	next map[string]uint64

	done chan struct{}
	once sync.Once
}

func newSegmentWatcher(o *Orchestrator, stream, dir string, segmentSeconds float64) (*segmentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	sw := &segmentWatcher{
		orch:    o,
		stream:  stream,
		seconds: segmentSeconds,
		watcher: w,
		seen:    make(map[string]bool),
		next:    make(map[string]uint64),
		done:    make(chan struct{}),
	}
	go sw.run()
	return sw, nil
}

func (sw *segmentWatcher) stop() {
	sw.once.Do(func() {
		close(sw.done)
		sw.watcher.Close()
	})
}

func (sw *segmentWatcher) run() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			// Encoders create then append; Create is where the segment
			// first becomes referenceable.
			if event.Op&fsnotify.Create != 0 {
				sw.handleFile(event.Name)
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.orch.logger.Warn("Segment watcher error",
				"stream_id", sw.stream, "error", err)
		}
	}
}

func (sw *segmentWatcher) handleFile(path string) {
	name := filepath.Base(path)
	var format string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ts":
		format = FormatHLS
	case ".m4s":
		format = FormatDASH
	default:
		return
	}
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".tmp") {
		return
	}
	if strings.Contains(name, "init") {
		return
	}

	sw.mu.Lock()
	if sw.seen[name] {
		sw.mu.Unlock()
		return
	}
	sw.seen[name] = true
	seq := sw.next[format]
	sw.next[format]++
	sw.mu.Unlock()

	seg := manifest.Segment{
		Sequence:  seq,
		Duration:  sw.seconds,
		URI:       name,
		Timestamp: time.Now(),
	}
	if err := sw.orch.AddSegment(sw.stream, format, seg); err != nil {
		sw.orch.logger.Warn("Failed to register segment",
			"stream_id", sw.stream, "segment", name, "error", err)
	}
}
