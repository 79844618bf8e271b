// Package orchestrator owns the stream registry: it validates stream
// configuration, spawns one encoder subprocess per enabled output
// format, wires manifest generators, ad-marker injection and health
// watching together, and tears everything down again on stop.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cueplex/cueplex/internal/encoder"
	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/health"
	"github.com/cueplex/cueplex/internal/logging"
	"github.com/cueplex/cueplex/internal/manifest"
	"github.com/cueplex/cueplex/internal/metrics"
	"github.com/cueplex/cueplex/internal/metrics/collectors"
	"github.com/cueplex/cueplex/internal/process"
	"github.com/cueplex/cueplex/internal/scte35"
)

// Status is the lifecycle state of a stream.
type Status string

// Stream lifecycle states.
const (
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// DefaultActivationTimeout bounds how long a stream may sit in
// `starting` waiting for first encoder output before it is promoted
// anyway.
const DefaultActivationTimeout = 10 * time.Second

// Stream is the public view of a registered stream.
type Stream struct {
	Name          string         `json:"name" example:"channel1" doc:"Stream name"`
	Status        Status         `json:"status" example:"active" doc:"Lifecycle state"`
	Formats       []string       `json:"formats" example:"[\"hls\"]" doc:"Enabled output formats"`
	SCTE35Enabled bool           `json:"scte35_enabled" doc:"Whether ad markers can be injected"`
	PIDs          map[string]int `json:"pids,omitempty" doc:"Subprocess PID per format"`
	CreatedAt     time.Time      `json:"created_at" doc:"Registration time"`
	StartedAt     time.Time      `json:"started_at,omitzero" doc:"Time the stream became active"`
}

type pipeline struct {
	format    string
	proc      *process.Process
	progress  *collectors.ProgressCollector
	done      chan struct{}
	exitCode  int
	sawOutput bool
}

type streamState struct {
	config    StreamConfig
	status    Status
	createdAt time.Time
	startedAt time.Time
	pipelines map[string]*pipeline
	watcher   *segmentWatcher
	fallback  *time.Timer
}

// Orchestrator is the stream registry and lifecycle engine.
type Orchestrator struct {
	mu      sync.Mutex
	streams map[string]*streamState
	busy    map[string]bool

	injector   *scte35.Injector
	generators map[string]manifest.Generator
	monitor    *health.Monitor
	bus        *events.Bus
	logger     *slog.Logger

	// Seam for tests: substitute the encoder command.
	commandFor func(p *encoder.Params) string

	activationTimeout time.Duration
	gracefulTimeout   time.Duration
	watchSegments     bool
	progressSockets   bool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCommandBuilder substitutes the encoder command construction.
func WithCommandBuilder(f func(p *encoder.Params) string) OrchestratorOption {
	return func(o *Orchestrator) { o.commandFor = f }
}

// WithActivationTimeout overrides the first-output promotion fallback.
func WithActivationTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.activationTimeout = d }
}

// WithGracefulTimeout overrides the subprocess stop grace window.
func WithGracefulTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.gracefulTimeout = d }
}

// WithSegmentWatching toggles the filesystem segment watcher that feeds
// encoder-produced segments into the manifest generators.
func WithSegmentWatching(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.watchSegments = enabled }
}

// WithProgressSockets toggles the per-pipeline Unix socket the encoder
// reports progress on. Disabled, stream metrics come only from stderr
// scraping.
func WithProgressSockets(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.progressSockets = enabled }
}

// New creates an orchestrator and registers itself as the injector's
// dispatch sink.
func New(injector *scte35.Injector, monitor *health.Monitor, bus *events.Bus, generators []manifest.Generator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		streams:           make(map[string]*streamState),
		busy:              make(map[string]bool),
		injector:          injector,
		generators:        make(map[string]manifest.Generator),
		monitor:           monitor,
		bus:               bus,
		logger:            logging.GetLogger("streams"),
		commandFor:        encoder.BuildCommand,
		activationTimeout: DefaultActivationTimeout,
		watchSegments:     true,
		progressSockets:   true,
	}
	for _, g := range generators {
		o.generators[g.Format()] = g
	}
	for _, opt := range opts {
		opt(o)
	}
	if injector != nil {
		injector.SetDispatcher(o.dispatchMarker)
	}
	return o
}

// StartStream validates the config, initializes manifests, spawns one
// encoder subprocess per enabled format and registers the stream. The
// stream is promoted to `active` once every pipeline has produced its
// first output line; a fallback timer promotes it anyway if the encoder
// stays quiet past the activation timeout.
func (o *Orchestrator) StartStream(config StreamConfig) (*Stream, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	name := config.Name

	o.mu.Lock()
	if o.busy[name] {
		o.mu.Unlock()
		return nil, newError(CodeStreamBusy, name, "operation already in progress for stream %s", name)
	}
	if _, exists := o.streams[name]; exists {
		o.mu.Unlock()
		return nil, newError(CodeStreamExists, name, "stream %s is already registered", name)
	}
	o.busy[name] = true
	o.mu.Unlock()
	defer o.clearBusy(name)

	if err := os.MkdirAll(config.streamDir(), 0755); err != nil {
		return nil, wrapError(CodeSpawnFailed, name, err, "failed to create output directory")
	}

	// Manifest state first so artifacts exist before the encoder runs
	var started []manifest.Generator
	for _, format := range config.Formats {
		gen, ok := o.generators[format]
		if !ok {
			o.rollbackManifests(name, started)
			return nil, newError(CodeInvalidParams, name, "no manifest generator for format %q", format)
		}
		if err := gen.StartStream(config.manifestSettings()); err != nil {
			o.rollbackManifests(name, started)
			return nil, wrapError(CodeManifestError, name, err, "failed to initialize %s manifest", format)
		}
		started = append(started, gen)
	}

	st := &streamState{
		config:    config,
		status:    StatusStarting,
		createdAt: time.Now(),
		pipelines: make(map[string]*pipeline),
	}

	// Registered before spawning so crash monitors can find the stream.
	// The busy flag keeps other operations away until startup settles.
	o.mu.Lock()
	o.streams[name] = st
	o.mu.Unlock()

	for _, format := range config.Formats {
		params := config.EncoderParams(format)
		if o.progressSockets {
			params.ProgressSocket = filepath.Join(config.streamDir(), "."+format+"-progress.sock")
		}
		command := o.commandFor(params)

		pl := &pipeline{
			format: format,
			done:   make(chan struct{}),
		}
		procLogger := o.logger.With("stream_id", name, "format", format)
		pl.proc = process.NewWithOutput(name+"-"+format, command, procLogger,
			&pipelineOutput{orch: o, stream: name, pipeline: pl})
		pl.proc.SetLogParser(logging.GetLogger("encoder").With("stream_id", name, "format", format),
			encoder.ParseLogLevel)
		if o.gracefulTimeout > 0 {
			pl.proc.SetGracefulTimeout(o.gracefulTimeout)
		}

		if err := pl.proc.Start(); err != nil {
			// Roll back everything spawned so far. The status flip keeps
			// the crash monitors of prior pipelines from reporting the
			// intentional shutdowns as stream errors.
			o.mu.Lock()
			st.status = StatusStopping
			o.mu.Unlock()
			for _, prior := range st.pipelines {
				prior.proc.Shutdown()
				<-prior.done
				if prior.progress != nil {
					prior.progress.Stop()
				}
			}
			o.mu.Lock()
			delete(o.streams, name)
			o.mu.Unlock()
			o.rollbackManifests(name, started)
			return nil, wrapError(CodeSpawnFailed, name, err, "failed to spawn %s pipeline", format)
		}
		if params.ProgressSocket != "" {
			pl.progress = collectors.NewProgressCollector(params.ProgressSocket, name)
			if err := pl.progress.Start(context.Background()); err != nil {
				o.logger.Warn("Progress collector unavailable",
					"stream_id", name, "format", format, "error", err)
			}
		}
		o.mu.Lock()
		st.pipelines[format] = pl
		o.mu.Unlock()

		go o.monitorPipeline(name, pl)
	}

	if o.watchSegments {
		watcher, err := newSegmentWatcher(o, name, config.streamDir(), float64(config.SegmentSeconds))
		if err != nil {
			o.logger.Warn("Segment watcher unavailable", "stream_id", name, "error", err)
		} else {
			st.watcher = watcher
		}
	}

	o.mu.Lock()
	st.fallback = time.AfterFunc(o.activationTimeout, func() { o.promoteStream(name, true) })
	o.mu.Unlock()

	o.logger.Info("Stream starting", "stream_id", name, "config", config.String())
	return o.viewLocked(name), nil
}

// StopStream gracefully terminates every pipeline, finalizes manifests,
// cancels pending ad-marker timers and removes the stream.
func (o *Orchestrator) StopStream(name string) error {
	o.mu.Lock()
	if o.busy[name] {
		o.mu.Unlock()
		return newError(CodeStreamBusy, name, "operation already in progress for stream %s", name)
	}
	st, exists := o.streams[name]
	if !exists {
		o.mu.Unlock()
		return newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	if st.status != StatusActive && st.status != StatusStarting && st.status != StatusError {
		o.mu.Unlock()
		return newError(CodeStreamNotActive, name, "stream %s is %s", name, st.status)
	}
	o.busy[name] = true
	st.status = StatusStopping
	if st.fallback != nil {
		st.fallback.Stop()
	}
	pipelines := make([]*pipeline, 0, len(st.pipelines))
	for _, pl := range st.pipelines {
		pipelines = append(pipelines, pl)
	}
	o.mu.Unlock()
	defer o.clearBusy(name)

	// Pending follow-up timers must not fire against a removed stream
	if o.injector != nil {
		o.injector.CancelStream(name)
	}
	if o.monitor != nil {
		o.monitor.Unwatch(name)
	}
	if st.watcher != nil {
		st.watcher.stop()
	}

	for _, pl := range pipelines {
		pl.proc.Shutdown()
	}
	for _, pl := range pipelines {
		<-pl.done
		if pl.progress != nil {
			pl.progress.Stop()
		}
	}

	for _, format := range st.config.Formats {
		if gen, ok := o.generators[format]; ok {
			if err := gen.StopStream(name); err != nil {
				o.logger.Warn("Manifest finalization failed",
					"stream_id", name, "format", format, "error", err)
			}
		}
	}

	metrics.DeleteStreamMetrics(name)

	o.mu.Lock()
	st.status = StatusStopped
	delete(o.streams, name)
	o.mu.Unlock()

	if o.bus != nil {
		o.bus.Publish(events.StreamStoppedEvent{
			Stream:    name,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	o.logger.Info("Stream stopped", "stream_id", name)
	return nil
}

// InjectSCTE35 validates the stream state and delegates to the marker
// injector, whose dispatch sink fans the event out to this stream's
// manifests and subprocess control channels.
func (o *Orchestrator) InjectSCTE35(name string, typ scte35.EventType, duration, preRoll float64) (*scte35.Event, error) {
	o.mu.Lock()
	st, exists := o.streams[name]
	if !exists {
		o.mu.Unlock()
		return nil, newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	if st.status != StatusActive {
		o.mu.Unlock()
		return nil, newError(CodeStreamNotActive, name, "stream %s is %s", name, st.status)
	}
	if !st.config.SCTE35.Enabled {
		o.mu.Unlock()
		return nil, newError(CodeSCTE35Disabled, name, "ad markers are not enabled for stream %s", name)
	}
	o.mu.Unlock()

	ev, err := o.injector.Inject(name, typ, duration, preRoll)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// AddSegment feeds a segment into every generator of the formats that
// use the segment's container. Exposed for collaborators that track
// segment production themselves; the built-in segment watcher calls it
// too.
func (o *Orchestrator) AddSegment(name, format string, seg manifest.Segment) error {
	o.mu.Lock()
	st, exists := o.streams[name]
	if !exists {
		o.mu.Unlock()
		return newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	hasFormat := st.config.HasFormat(format)
	o.mu.Unlock()

	if !hasFormat {
		return newError(CodeInvalidParams, name, "format %q is not enabled for stream %s", format, name)
	}
	gen, ok := o.generators[format]
	if !ok {
		return newError(CodeInvalidParams, name, "no manifest generator for format %q", format)
	}
	if err := gen.AddSegment(name, seg); err != nil {
		return wrapError(CodeManifestError, name, err, "failed to add segment")
	}
	return nil
}

// GetStream returns the public view of a stream.
func (o *Orchestrator) GetStream(name string) (*Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.streams[name]; !exists {
		return nil, newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	return o.view(name), nil
}

// GetAllStreams returns every registered stream sorted by name.
func (o *Orchestrator) GetAllStreams() []*Stream {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*Stream, 0, len(o.streams))
	for name := range o.streams {
		out = append(out, o.view(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetManifestContent returns the current artifact for one format.
func (o *Orchestrator) GetManifestContent(name, format string) (string, error) {
	o.mu.Lock()
	_, exists := o.streams[name]
	o.mu.Unlock()
	if !exists {
		return "", newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	gen, ok := o.generators[format]
	if !ok {
		return "", newError(CodeInvalidParams, name, "no manifest generator for format %q", format)
	}
	content, err := gen.Content(name)
	if err != nil {
		return "", wrapError(CodeManifestError, name, err, "failed to read %s manifest", format)
	}
	return content, nil
}

// ValidateManifests runs artifact validation for every enabled format.
func (o *Orchestrator) ValidateManifests(name string) (map[string][]string, error) {
	o.mu.Lock()
	st, exists := o.streams[name]
	if !exists {
		o.mu.Unlock()
		return nil, newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	formats := append([]string(nil), st.config.Formats...)
	o.mu.Unlock()

	result := make(map[string][]string, len(formats))
	for _, format := range formats {
		gen, ok := o.generators[format]
		if !ok {
			continue
		}
		defects, err := gen.Validate(name)
		if err != nil {
			return nil, wrapError(CodeManifestError, name, err, "failed to validate %s manifest", format)
		}
		result[format] = defects
	}
	return result, nil
}

// CleanupOldSegments bounds on-disk segment storage for a stream.
func (o *Orchestrator) CleanupOldSegments(name string, maxAge time.Duration) (int, error) {
	o.mu.Lock()
	st, exists := o.streams[name]
	if !exists {
		o.mu.Unlock()
		return 0, newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	formats := append([]string(nil), st.config.Formats...)
	o.mu.Unlock()

	total := 0
	for _, format := range formats {
		gen, ok := o.generators[format]
		if !ok {
			continue
		}
		n, err := gen.CleanupOldSegments(name, maxAge)
		if err != nil {
			return total, wrapError(CodeManifestError, name, err, "segment cleanup failed for %s", format)
		}
		total += n
	}
	return total, nil
}

// Shutdown stops every stream, used on daemon exit.
func (o *Orchestrator) Shutdown() {
	for _, stream := range o.GetAllStreams() {
		if err := o.StopStream(stream.Name); err != nil {
			o.logger.Warn("Failed to stop stream during shutdown",
				"stream_id", stream.Name, "error", err)
		}
	}
}

// dispatchMarker is the injector's sink: the marker goes to every
// manifest generator of the stream and best-effort to each subprocess
// control channel.
func (o *Orchestrator) dispatchMarker(name string, ev *scte35.Event) error {
	o.mu.Lock()
	st, exists := o.streams[name]
	if !exists {
		o.mu.Unlock()
		return newError(CodeStreamNotFound, name, "stream %s not found", name)
	}
	formats := append([]string(nil), st.config.Formats...)
	pipelines := make([]*pipeline, 0, len(st.pipelines))
	for _, pl := range st.pipelines {
		pipelines = append(pipelines, pl)
	}
	o.mu.Unlock()

	for _, format := range formats {
		gen, ok := o.generators[format]
		if !ok {
			continue
		}
		if err := gen.InjectSCTE35(name, ev); err != nil {
			return fmt.Errorf("%s manifest rejected marker: %w", format, err)
		}
	}

	// Advisory only: the encoder may ignore control lines
	for _, pl := range pipelines {
		line := fmt.Sprintf("scte35 %s %d %.0f", ev.Type, ev.Sequence, ev.Duration)
		if err := pl.proc.SendControl(line); err != nil {
			o.logger.Debug("Control channel write failed",
				"stream_id", name, "format", pl.format, "error", err)
		}
	}
	return nil
}

// pipelineSawOutput promotes the stream once all pipelines produced
// output.
func (o *Orchestrator) pipelineSawOutput(name string, pl *pipeline) {
	o.mu.Lock()
	pl.sawOutput = true
	st, exists := o.streams[name]
	if !exists || st.status != StatusStarting {
		o.mu.Unlock()
		return
	}
	for _, p := range st.pipelines {
		if !p.sawOutput {
			o.mu.Unlock()
			return
		}
	}
	o.mu.Unlock()

	o.promoteStream(name, false)
}

// promoteStream transitions starting -> active. The fallback path fires
// from a timer when the encoder produced no output within the
// activation timeout.
func (o *Orchestrator) promoteStream(name string, fallback bool) {
	o.mu.Lock()
	st, exists := o.streams[name]
	if !exists || st.status != StatusStarting {
		o.mu.Unlock()
		return
	}
	st.status = StatusActive
	st.startedAt = time.Now()
	if st.fallback != nil {
		st.fallback.Stop()
	}
	formats := append([]string(nil), st.config.Formats...)
	o.mu.Unlock()

	if fallback {
		o.logger.Warn("Stream promoted without encoder output", "stream_id", name)
	} else {
		o.logger.Info("Stream active", "stream_id", name)
	}

	if o.monitor != nil {
		o.monitor.Watch(name)
	}
	if o.bus != nil {
		o.bus.Publish(events.StreamStartedEvent{
			Stream:    name,
			Formats:   formats,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// monitorPipeline observes a subprocess until exit. An abnormal exit
// while the stream is supposed to be running moves the stream to error.
func (o *Orchestrator) monitorPipeline(name string, pl *pipeline) {
	code := pl.proc.Wait()
	pl.exitCode = code
	close(pl.done)
	if pl.progress != nil {
		pl.progress.Stop()
	}

	o.mu.Lock()
	st, exists := o.streams[name]
	if !exists || st.status == StatusStopping || st.status == StatusStopped {
		o.mu.Unlock()
		return
	}
	st.status = StatusError
	o.mu.Unlock()

	o.logger.Error("Pipeline exited unexpectedly",
		"stream_id", name, "format", pl.format, "exit_code", code)
	if o.bus != nil {
		o.bus.Publish(events.StreamErrorEvent{
			Stream:    name,
			Format:    pl.format,
			ExitCode:  code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (o *Orchestrator) clearBusy(name string) {
	o.mu.Lock()
	delete(o.busy, name)
	o.mu.Unlock()
}

// rollbackManifests finalizes generators initialized before a start
// failure so no half-built artifacts linger on disk.
func (o *Orchestrator) rollbackManifests(name string, started []manifest.Generator) {
	for _, gen := range started {
		if err := gen.StopStream(name); err != nil {
			o.logger.Warn("Manifest rollback failed",
				"stream_id", name, "format", gen.Format(), "error", err)
		}
	}
}

// view builds the public stream snapshot. Caller must hold o.mu.
func (o *Orchestrator) view(name string) *Stream {
	st := o.streams[name]
	s := &Stream{
		Name:          name,
		Status:        st.status,
		Formats:       append([]string(nil), st.config.Formats...),
		SCTE35Enabled: st.config.SCTE35.Enabled,
		PIDs:          make(map[string]int, len(st.pipelines)),
		CreatedAt:     st.createdAt,
		StartedAt:     st.startedAt,
	}
	for format, pl := range st.pipelines {
		if pid := pl.proc.PID(); pid > 0 {
			s.PIDs[format] = pid
		}
	}
	return s
}

func (o *Orchestrator) viewLocked(name string) *Stream {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.streams[name]; !exists {
		return nil
	}
	return o.view(name)
}

// pipelineOutput scrapes encoder output for metrics and first-output
// detection.
type pipelineOutput struct {
	orch     *Orchestrator
	stream   string
	pipeline *pipeline
	notified bool
	mu       sync.Mutex
}

// HandleLine implements process.OutputHandler.
func (h *pipelineOutput) HandleLine(source, line string) {
	h.mu.Lock()
	first := !h.notified
	h.notified = true
	h.mu.Unlock()
	if first {
		h.orch.pipelineSawOutput(h.stream, h.pipeline)
	}

	if prog := encoder.ParseProgress(line); prog != nil {
		if prog.BitrateKbps != nil {
			metrics.SetStreamBitrate(h.stream, *prog.BitrateKbps)
		}
		if prog.FPS != nil {
			metrics.SetStreamFPS(h.stream, *prog.FPS)
		}
		if prog.AudioLevelDB != nil {
			metrics.SetStreamAudioLevel(h.stream, *prog.AudioLevelDB)
		}
	}
}
