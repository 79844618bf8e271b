package health

import (
	"runtime"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/cueplex/cueplex/internal/metrics"
)

// Snapshot is one sampled view of a stream's metrics plus node
// resource usage.
type Snapshot struct {
	HasStreamMetrics bool    `json:"has_stream_metrics" doc:"Whether encoder metrics were available"`
	BitrateKbps      float64 `json:"bitrate_kbps" doc:"Output bitrate in kbps"`
	FPS              float64 `json:"fps" doc:"Encoding frames per second"`
	AudioLevelDB     float64 `json:"audio_level_db" doc:"Audio level in dBFS"`
	LatencyMs        float64 `json:"latency_ms" doc:"Milliseconds since the last metrics update"`
	CPUPercent       float64 `json:"cpu_percent" doc:"Node CPU load approximation"`
	MemoryPercent    float64 `json:"memory_percent" doc:"Node memory usage"`
	DiskPercent      float64 `json:"disk_percent" doc:"Output volume disk usage"`
}

// MetricsSource produces a snapshot for a stream. Substituted in tests.
type MetricsSource func(streamID string) Snapshot

// DefaultSource samples the in-process metrics cache and node resource
// usage from procfs and statfs. outputDir locates the volume whose disk
// usage is checked.
func DefaultSource(outputDir string) MetricsSource {
	return func(streamID string) Snapshot {
		snap := Snapshot{}

		if m := metrics.GetStreamMetrics(streamID); m != nil {
			snap.HasStreamMetrics = true
			snap.BitrateKbps = m.BitrateKbps
			snap.FPS = m.FPS
			snap.AudioLevelDB = m.AudioLevelDB
			if !m.LastUpdate.IsZero() {
				snap.LatencyMs = float64(time.Since(m.LastUpdate).Milliseconds())
			}
		}

		if fs, err := procfs.NewDefaultFS(); err == nil {
			if load, err := fs.LoadAvg(); err == nil {
				snap.CPUPercent = load.Load1 / float64(runtime.NumCPU()) * 100
			}
			if mem, err := fs.Meminfo(); err == nil && mem.MemTotal != nil && *mem.MemTotal > 0 {
				available := uint64(0)
				if mem.MemAvailable != nil {
					available = *mem.MemAvailable
				}
				snap.MemoryPercent = float64(*mem.MemTotal-available) / float64(*mem.MemTotal) * 100
			}
		}

		var stat unix.Statfs_t
		if err := unix.Statfs(outputDir, &stat); err == nil && stat.Blocks > 0 {
			used := stat.Blocks - stat.Bavail
			snap.DiskPercent = float64(used) / float64(stat.Blocks) * 100
		}

		return snap
	}
}
