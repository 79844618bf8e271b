// Package health samples stream and node metrics on a fixed interval,
// evaluates them against thresholds and raises edge-triggered issue
// notifications: one event when an issue appears, one when it resolves,
// nothing while it persists.
package health

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/logging"
)

// DefaultInterval is the sampling period per watched stream.
const DefaultInterval = 5 * time.Second

// Issue is one detected health problem.
type Issue struct {
	Type      IssueType `json:"type" example:"bitrate" doc:"Issue category"`
	Severity  Severity  `json:"severity" example:"medium" doc:"Issue severity"`
	Message   string    `json:"message" doc:"Human-readable description"`
	Timestamp time.Time `json:"timestamp" doc:"First detection time"`
	Resolved  bool      `json:"resolved" doc:"Whether the issue has cleared"`
}

// StreamHealth is the health record for one watched stream.
type StreamHealth struct {
	Stream    string    `json:"stream" example:"channel1" doc:"Stream name"`
	Overall   Status    `json:"overall" example:"good" doc:"Aggregate classification"`
	Metrics   Snapshot  `json:"metrics" doc:"Latest sampled metrics"`
	Issues    []Issue   `json:"issues" doc:"Current unresolved issues"`
	LastCheck time.Time `json:"last_check" doc:"Time of the last sampling tick"`
}

// SystemHealth aggregates every watched stream.
type SystemHealth struct {
	Overall  Status `json:"overall" example:"good" doc:"Worst classification across streams"`
	Streams  int    `json:"streams" doc:"Number of watched streams"`
	Good     int    `json:"good" doc:"Streams in good health"`
	Warning  int    `json:"warning" doc:"Streams with warnings"`
	Critical int    `json:"critical" doc:"Streams in critical health"`
}

type watched struct {
	health   StreamHealth
	timer    Timer
	external []Issue
}

// Monitor owns per-stream sampling timers and health records.
type Monitor struct {
	mu         sync.Mutex
	clock      Clock
	interval   time.Duration
	thresholds Thresholds
	source     MetricsSource
	bus        *events.Bus
	logger     *slog.Logger
	streams    map[string]*watched
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock substitutes the sampling clock.
func WithClock(c Clock) MonitorOption {
	return func(m *Monitor) { m.clock = c }
}

// WithInterval overrides the sampling period.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithThresholds overrides the evaluation thresholds.
func WithThresholds(t Thresholds) MonitorOption {
	return func(m *Monitor) { m.thresholds = t }
}

// WithSource substitutes the metrics source.
func WithSource(s MetricsSource) MonitorOption {
	return func(m *Monitor) { m.source = s }
}

// WithBus sets the event bus for issue notifications. The monitor also
// subscribes to manifest write failures and stream errors, folding them
// into the owning stream's issue list on its next tick.
func WithBus(b *events.Bus) MonitorOption {
	return func(m *Monitor) { m.bus = b }
}

// NewMonitor creates a health monitor.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		clock:      NewClock(),
		interval:   DefaultInterval,
		thresholds: DefaultThresholds(),
		source:     DefaultSource("."),
		logger:     logging.GetLogger("health"),
		streams:    make(map[string]*watched),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.bus != nil {
		m.bus.Subscribe(func(e events.ManifestWriteFailedEvent) {
			m.ReportIssue(e.Stream, IssueResource, SeverityMedium,
				fmt.Sprintf("manifest writes failing (%s): %s", e.Format, e.Error))
		})
		m.bus.Subscribe(func(e events.StreamErrorEvent) {
			m.ReportIssue(e.Stream, IssueConnection, SeverityHigh,
				fmt.Sprintf("pipeline %s exited with code %d", e.Format, e.ExitCode))
		})
	}
	return m
}

// Watch registers a sampling timer for the stream. Idempotent: watching
// an already-watched stream keeps the existing record and timer.
func (m *Monitor) Watch(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.streams[streamID]; exists {
		return
	}

	w := &watched{
		health: StreamHealth{
			Stream:  streamID,
			Overall: StatusGood,
		},
	}
	m.streams[streamID] = w
	w.timer = m.clock.AfterFunc(m.interval, func() { m.tick(streamID) })

	m.logger.Info("Watching stream health", "stream_id", streamID, "interval", m.interval)
}

// Unwatch cancels the stream's sampling timer and discards its record.
func (m *Monitor) Unwatch(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.streams[streamID]
	if !ok {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(m.streams, streamID)

	m.logger.Info("Stopped watching stream health", "stream_id", streamID)
}

// ReportIssue queues an externally detected issue. It joins the
// threshold-derived issues on the stream's next sampling tick and
// resolves like any other issue once it stops being reported.
func (m *Monitor) ReportIssue(streamID string, typ IssueType, severity Severity, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.streams[streamID]
	if !ok {
		return
	}
	w.external = append(w.external, Issue{
		Type:      typ,
		Severity:  severity,
		Message:   message,
		Timestamp: m.clock.Now(),
	})
}

// GetStreamHealth returns the current health record for a stream.
func (m *Monitor) GetStreamHealth(streamID string) (*StreamHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("stream %s is not watched", streamID)
	}
	dup := w.health
	dup.Issues = append([]Issue(nil), w.health.Issues...)
	return &dup, nil
}

// GetSystemHealth aggregates all watched streams, classified by the
// same critical > warning > good precedence as per-stream health.
func (m *Monitor) GetSystemHealth() SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	sys := SystemHealth{Overall: StatusGood, Streams: len(m.streams)}
	for _, w := range m.streams {
		switch w.health.Overall {
		case StatusCritical:
			sys.Critical++
		case StatusWarning:
			sys.Warning++
		default:
			sys.Good++
		}
	}
	if sys.Critical > 0 {
		sys.Overall = StatusCritical
	} else if sys.Warning > 0 {
		sys.Overall = StatusWarning
	}
	return sys
}

// tick runs one sampling pass for the stream and reschedules itself.
func (m *Monitor) tick(streamID string) {
	snap := m.source(streamID)

	m.mu.Lock()
	w, ok := m.streams[streamID]
	if !ok {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	current := m.evaluate(snap, now)
	current = append(current, w.external...)
	w.external = nil

	newIssues, resolved := diffIssues(w.health.Issues, current)
	current = preserveTimestamps(w.health.Issues, current)

	w.health.Metrics = snap
	w.health.Issues = current
	w.health.Overall = classify(current)
	w.health.LastCheck = now

	w.timer = m.clock.AfterFunc(m.interval, func() { m.tick(streamID) })
	m.mu.Unlock()

	for _, issue := range newIssues {
		m.logger.Warn("Health issue detected",
			"stream_id", streamID, "type", issue.Type, "severity", issue.Severity, "message", issue.Message)
		if m.bus != nil {
			m.bus.Publish(events.HealthIssueEvent{
				Stream:    streamID,
				IssueType: string(issue.Type),
				Severity:  string(issue.Severity),
				Message:   issue.Message,
				Timestamp: now.UTC().Format(time.RFC3339),
			})
		}
	}
	for _, issue := range resolved {
		m.logger.Info("Health issue resolved",
			"stream_id", streamID, "type", issue.Type, "message", issue.Message)
		if m.bus != nil {
			m.bus.Publish(events.HealthResolvedEvent{
				Stream:    streamID,
				IssueType: string(issue.Type),
				Message:   issue.Message,
				Timestamp: now.UTC().Format(time.RFC3339),
			})
		}
	}
}

// evaluate derives threshold-violation issues from a snapshot.
func (m *Monitor) evaluate(snap Snapshot, now time.Time) []Issue {
	var issues []Issue
	add := func(typ IssueType, message string) {
		issues = append(issues, Issue{
			Type:      typ,
			Severity:  severityFor(typ),
			Message:   message,
			Timestamp: now,
		})
	}

	if snap.HasStreamMetrics {
		if m.thresholds.BitrateKbps.violated(snap.BitrateKbps) {
			add(IssueBitrate, fmt.Sprintf("bitrate %.1f kbps outside range", snap.BitrateKbps))
		}
		if m.thresholds.FPS.violated(snap.FPS) {
			add(IssueFPS, fmt.Sprintf("fps %.2f outside range", snap.FPS))
		}
		if m.thresholds.AudioLevelDB.violated(snap.AudioLevelDB) {
			add(IssueAudio, fmt.Sprintf("audio level %.1f dB outside range", snap.AudioLevelDB))
		}
		if m.thresholds.LatencyMs.violated(snap.LatencyMs) {
			add(IssueLatency, fmt.Sprintf("metrics latency %.0f ms exceeds limit", snap.LatencyMs))
		}
	}

	if m.thresholds.CPUPercent.violated(snap.CPUPercent) {
		add(IssueResource, fmt.Sprintf("cpu usage %.1f%% exceeds limit", snap.CPUPercent))
	}
	if m.thresholds.MemoryPercent.violated(snap.MemoryPercent) {
		add(IssueResource, fmt.Sprintf("memory usage %.1f%% exceeds limit", snap.MemoryPercent))
	}
	if m.thresholds.DiskPercent.violated(snap.DiskPercent) {
		add(IssueResource, fmt.Sprintf("disk usage %.1f%% exceeds limit", snap.DiskPercent))
	}

	return issues
}

// diffIssues edge-matches the new issue set against the previous tick,
// keyed by (type, message).
func diffIssues(prev, current []Issue) (newIssues, resolved []Issue) {
	key := func(i Issue) string { return string(i.Type) + "\x00" + i.Message }

	prevSet := make(map[string]Issue, len(prev))
	for _, i := range prev {
		if !i.Resolved {
			prevSet[key(i)] = i
		}
	}
	currentSet := make(map[string]bool, len(current))
	for _, i := range current {
		currentSet[key(i)] = true
		if _, existed := prevSet[key(i)]; !existed {
			newIssues = append(newIssues, i)
		}
	}
	for k, i := range prevSet {
		if !currentSet[k] {
			i.Resolved = true
			resolved = append(resolved, i)
		}
	}
	return newIssues, resolved
}

// preserveTimestamps keeps the first-detection time of issues that
// persist across ticks.
func preserveTimestamps(prev, current []Issue) []Issue {
	key := func(i Issue) string { return string(i.Type) + "\x00" + i.Message }
	prevSet := make(map[string]Issue, len(prev))
	for _, i := range prev {
		if !i.Resolved {
			prevSet[key(i)] = i
		}
	}
	for n, i := range current {
		if old, ok := prevSet[key(i)]; ok {
			current[n].Timestamp = old.Timestamp
		}
	}
	return current
}

// classify applies the aggregate rule: any high issue means critical,
// any issue at all means warning.
func classify(issues []Issue) Status {
	status := StatusGood
	for _, i := range issues {
		if i.Severity == SeverityHigh {
			return StatusCritical
		}
		status = StatusWarning
	}
	return status
}
