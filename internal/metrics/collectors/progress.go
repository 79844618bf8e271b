// Package collectors feeds encoder runtime telemetry into the metrics
// registry.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cueplex/cueplex/internal/metrics"
)

// acceptPollInterval bounds how long Accept blocks so the listener can
// notice a cancelled context between connections.
const acceptPollInterval = time.Second

// ProgressCollector receives encoder progress reports over a Unix
// socket. The pipeline points the encoder at it with
// -progress unix://<path>; the encoder then writes key=value blocks,
// each terminated by a progress= line, for the life of the process.
type ProgressCollector struct {
	logger     *slog.Logger
	socketPath string
	streamID   string
	listener   net.Listener
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// NewProgressCollector creates a collector for one stream's socket.
func NewProgressCollector(socketPath, streamID string) *ProgressCollector {
	return &ProgressCollector{
		logger:     slog.With("component", "progress_collector", "stream_id", streamID),
		socketPath: socketPath,
		streamID:   streamID,
	}
}

// Start opens the socket and begins accepting encoder connections.
func (p *ProgressCollector) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := os.Remove(p.socketPath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("Failed to clean up old socket file", "error", err)
	}
	listener, err := net.Listen("unix", p.socketPath)
	if err != nil {
		p.cancel()
		return err
	}
	p.listener = listener

	p.logger.Info("Progress socket listening", "socket", p.socketPath)
	go p.serve(listener)
	return nil
}

// Stop closes the socket, removes its file and drops the stream's
// gauges. Safe to call more than once.
func (p *ProgressCollector) Stop() error {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if p.listener != nil {
			p.listener.Close()
			p.listener = nil
		}
		if p.socketPath != "" {
			os.Remove(p.socketPath)
		}
		metrics.DeleteStreamMetrics(p.streamID)
	})
	return nil
}

func (p *ProgressCollector) serve(listener net.Listener) {
	defer func() {
		listener.Close()
		os.Remove(p.socketPath)
	}()

	for p.ctx.Err() == nil {
		conn, ok := p.accept(listener)
		if !ok {
			return
		}
		if conn != nil {
			go p.readReports(conn)
		}
	}
}

// accept waits for the next encoder connection. A nil conn with ok=true
// means the poll deadline expired and the caller should try again.
func (p *ProgressCollector) accept(listener net.Listener) (net.Conn, bool) {
	if ul, isUnix := listener.(*net.UnixListener); isUnix {
		ul.SetDeadline(time.Now().Add(acceptPollInterval))
	}

	conn, err := listener.Accept()
	if err == nil {
		return conn, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil, true
	}
	if p.ctx.Err() != nil || strings.Contains(err.Error(), "use of closed network connection") {
		return nil, false
	}
	p.logger.Warn("Error accepting connection", "error", err)
	return nil, true
}

// readReports consumes one encoder connection, recording a sample each
// time a progress= line closes a key=value block.
func (p *ProgressCollector) readReports(conn net.Conn) {
	defer conn.Close()

	block := make(map[string]string)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if p.ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		block[strings.TrimSpace(key)] = strings.TrimSpace(value)

		if key == "progress" {
			parseProgressBlock(block).record(p.streamID)
			block = make(map[string]string)
		}
	}
}

// progressSample holds the fields of one progress block that the stream
// gauges track. Missing or unparsable fields stay nil and leave the
// corresponding gauge untouched.
type progressSample struct {
	bitrateKbps   *float64
	fps           *float64
	droppedFrames *float64
	speed         *float64
}

func parseProgressBlock(block map[string]string) progressSample {
	var s progressSample
	s.bitrateKbps = parseFloatField(block["bitrate"], "kbits/s")
	s.fps = parseFloatField(block["fps"], "")
	s.droppedFrames = parseFloatField(block["drop_frames"], "")
	s.speed = parseFloatField(block["speed"], "x")
	return s
}

func parseFloatField(raw, suffix string) *float64 {
	raw = strings.TrimSpace(strings.TrimSuffix(raw, suffix))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (s progressSample) record(streamID string) {
	if s.bitrateKbps != nil {
		metrics.SetStreamBitrate(streamID, *s.bitrateKbps)
	}
	if s.fps != nil {
		metrics.SetStreamFPS(streamID, *s.fps)
	}
	if s.droppedFrames != nil {
		metrics.SetStreamDroppedFrames(streamID, *s.droppedFrames)
	}
	if s.speed != nil {
		metrics.SetStreamSpeed(streamID, *s.speed)
	}
}
