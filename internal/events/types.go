package events

// Event type constants for kelindar/event.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStopped
	TypeStreamError
	TypeCueDispatched
	TypeCueCompleted
	TypeHealthIssue
	TypeHealthResolved
	TypeManifestWriteFailed
	TypeStreamMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStartedEvent is published when a stream reaches active status.
type StreamStartedEvent struct {
	Stream    string   `json:"stream" example:"channel1" doc:"Stream name"`
	Formats   []string `json:"formats" example:"[\"hls\"]" doc:"Enabled output formats"`
	Timestamp string   `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartedEvent.
func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStoppedEvent is published when a stream is stopped and removed
// from the registry.
type StreamStoppedEvent struct {
	Stream    string `json:"stream" example:"channel1" doc:"Stream name"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// StreamErrorEvent is published when a pipeline subprocess exits
// abnormally while its stream is active.
type StreamErrorEvent struct {
	Stream    string `json:"stream" example:"channel1" doc:"Stream name"`
	Format    string `json:"format" example:"hls" doc:"Output format of the failed pipeline"`
	ExitCode  int    `json:"exit_code" example:"1" doc:"Subprocess exit code"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamErrorEvent.
func (e StreamErrorEvent) Type() uint32 { return TypeStreamError }

// CueDispatchedEvent is published when an ad-marker event is dispatched
// to the stream's manifests and pipelines.
type CueDispatchedEvent struct {
	Stream    string `json:"stream" example:"channel1" doc:"Stream name"`
	EventID   string `json:"event_id" doc:"Marker event identifier"`
	EventType string `json:"event_type" example:"CUE-OUT" doc:"CUE-OUT or CUE-IN"`
	Sequence  uint64 `json:"sequence" example:"100023" doc:"Monotonic sequence number"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CueDispatchedEvent.
func (e CueDispatchedEvent) Type() uint32 { return TypeCueDispatched }

// CueCompletedEvent is published when an ad-marker event completes,
// either by its follow-up timer or by cancellation.
type CueCompletedEvent struct {
	Stream    string `json:"stream" example:"channel1" doc:"Stream name"`
	EventID   string `json:"event_id" doc:"Marker event identifier"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CueCompletedEvent.
func (e CueCompletedEvent) Type() uint32 { return TypeCueCompleted }

// HealthIssueEvent is published once when a new health issue is detected.
// Persisting issues do not re-publish.
type HealthIssueEvent struct {
	Stream    string `json:"stream" example:"channel1" doc:"Stream name"`
	IssueType string `json:"issue_type" example:"bitrate" doc:"Issue category"`
	Severity  string `json:"severity" example:"medium" doc:"low, medium or high"`
	Message   string `json:"message" doc:"Human-readable issue description"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HealthIssueEvent.
func (e HealthIssueEvent) Type() uint32 { return TypeHealthIssue }

// HealthResolvedEvent is published once when a previously reported issue
// is no longer observed.
type HealthResolvedEvent struct {
	Stream    string `json:"stream" example:"channel1" doc:"Stream name"`
	IssueType string `json:"issue_type" example:"bitrate" doc:"Issue category"`
	Message   string `json:"message" doc:"Description of the resolved issue"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HealthResolvedEvent.
func (e HealthResolvedEvent) Type() uint32 { return TypeHealthResolved }

// ManifestWriteFailedEvent is published after the bounded write retries
// for a manifest artifact are exhausted. The health monitor converts it
// into a warning-severity issue.
type ManifestWriteFailedEvent struct {
	Stream    string `json:"stream" example:"channel1" doc:"Stream name"`
	Format    string `json:"format" example:"hls" doc:"Manifest format"`
	Error     string `json:"error" doc:"Last write error"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ManifestWriteFailedEvent.
func (e ManifestWriteFailedEvent) Type() uint32 { return TypeManifestWriteFailed }

// StreamMetricsEvent carries the latest scraped encoder metrics for a
// stream. Published periodically by the metrics SSE exporter.
type StreamMetricsEvent struct {
	Stream       string `json:"stream" example:"channel1" doc:"Stream name"`
	BitrateKbps  string `json:"bitrate_kbps" example:"5000.00" doc:"Current output bitrate in kbps"`
	FPS          string `json:"fps" example:"29.97" doc:"Current frames per second"`
	AudioLevelDB string `json:"audio_level_db" example:"-23.0" doc:"Current audio level in dB"`
	Timestamp    string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamMetricsEvent.
func (e StreamMetricsEvent) Type() uint32 { return TypeStreamMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
