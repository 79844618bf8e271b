package health

// IssueType categorizes a health issue.
type IssueType string

// Issue categories.
const (
	IssueBitrate    IssueType = "bitrate"
	IssueFPS        IssueType = "fps"
	IssueAudio      IssueType = "audio"
	IssueLatency    IssueType = "latency"
	IssueConnection IssueType = "connection"
	IssueResource   IssueType = "resource"
)

// Severity ranks a health issue.
type Severity string

// Issue severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Status is the aggregate health classification.
type Status string

// Aggregate health states, ordered good < warning < critical.
const (
	StatusGood     Status = "good"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// MinMax is an inclusive range check. A zero bound is disabled.
type MinMax struct {
	Min float64
	Max float64
}

// violated reports whether v falls outside the enabled bounds.
func (r MinMax) violated(v float64) bool {
	if r.Min != 0 && v < r.Min {
		return true
	}
	if r.Max != 0 && v > r.Max {
		return true
	}
	return false
}

// Thresholds are the per-metric acceptance ranges evaluated each tick.
type Thresholds struct {
	BitrateKbps   MinMax
	FPS           MinMax
	AudioLevelDB  MinMax
	LatencyMs     MinMax
	CPUPercent    MinMax
	MemoryPercent MinMax
	DiskPercent   MinMax
}

// DefaultThresholds returns the standard broadcast-oriented thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BitrateKbps:   MinMax{Min: 500, Max: 50000},
		FPS:           MinMax{Min: 15, Max: 120},
		AudioLevelDB:  MinMax{Min: -60, Max: -1},
		LatencyMs:     MinMax{Max: 10000},
		CPUPercent:    MinMax{Max: 90},
		MemoryPercent: MinMax{Max: 90},
		DiskPercent:   MinMax{Max: 95},
	}
}

// severityFor derives issue severity from the metric category:
// resource and latency violations endanger every stream on the node,
// encoder quality drifts only degrade one.
func severityFor(t IssueType) Severity {
	switch t {
	case IssueResource, IssueLatency, IssueConnection:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
