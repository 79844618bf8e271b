package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// OutputHandler receives every line the subprocess writes. Implementations
// scrape progress, detect first output, or feed metrics.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser extracts a log level and message from one subprocess line.
type LogParser func(line string) (level, msg string)

// killedExitCode is reported when the grace window elapses and the
// subprocess has to be killed, matching the shell's 128+SIGKILL.
const killedExitCode = 137

// Process supervises a single subprocess over its whole lifecycle.
type Process struct {
	id            string
	command       string
	commandMu     sync.RWMutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	stdinMu       sync.Mutex
	logger        *slog.Logger
	outputLogger  *slog.Logger // destination for subprocess lines, nil falls back to logger
	logParser     LogParser
	ctx           context.Context
	cancel        context.CancelFunc
	restartChan   chan string
	outputHandler OutputHandler

	gracefulTimeout time.Duration
	killTimeout     time.Duration

	current *handle
}

// handle tracks one spawned subprocess until exit.
type handle struct {
	exited  <-chan error
	drained chan struct{} // closed-equivalent: receives once per output stream
}

// New creates a process that discards no output but scrapes nothing.
func New(id, command string, logger *slog.Logger) *Process {
	return NewWithOutput(id, command, logger, nil)
}

// NewWithOutput creates a process whose stdout and stderr lines are fed
// to handler as they arrive.
func NewWithOutput(id, command string, logger *slog.Logger, handler OutputHandler) *Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		restartChan:     make(chan string, 1),
		outputHandler:   handler,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// SetGracefulTimeout overrides the grace window before force kill.
func (p *Process) SetGracefulTimeout(d time.Duration) {
	p.gracefulTimeout = d
}

// SetLogParser routes subprocess output through logger, with parser
// deciding the level of each line.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.outputLogger = logger
	p.logParser = parser
}

// GetCommand returns the command the next spawn will run.
func (p *Process) GetCommand() string {
	p.commandMu.RLock()
	defer p.commandMu.RUnlock()
	return p.command
}

// PID returns the subprocess pid, or 0 before the first spawn.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// SendControl writes one line to the subprocess stdin. Advisory only:
// the tool may ignore it, and a write error never tears down the pipeline.
func (p *Process) SendControl(line string) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return fmt.Errorf("process %s: stdin not available", p.id)
	}
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

// RequestRestart queues a respawn with a new command. If a restart is
// already pending the request is dropped.
func (p *Process) RequestRestart(newCommand string) {
	select {
	case p.restartChan <- newCommand:
		p.logger.Info("Restart requested")
	default:
		p.logger.Warn("Restart already pending, ignoring")
	}
}

// Shutdown begins a graceful stop. Wait or Run observes the exit.
func (p *Process) Shutdown() {
	p.cancel()
}

// Start spawns the subprocess without blocking.
func (p *Process) Start() error {
	h, err := p.spawn(p.GetCommand())
	if err != nil {
		return err
	}
	p.current = h
	return nil
}

// Wait blocks until the subprocess exits or Shutdown is called and
// returns the exit code. On shutdown, SIGINT escalates to SIGKILL once
// the grace window passes.
func (p *Process) Wait() int {
	h := p.current
	if h == nil {
		return 1
	}
	defer h.drain()

	select {
	case <-p.ctx.Done():
		p.signalStop()
		return p.awaitExit(h.exited)
	case err := <-h.exited:
		return p.reportExit(err)
	}
}

// Run spawns the subprocess and blocks until it exits.
func (p *Process) Run() int {
	if err := p.Start(); err != nil {
		return 1
	}
	return p.Wait()
}

// RunWithRestart keeps the subprocess alive across RequestRestart calls,
// respawning with the new command each time. Returns on shutdown or when
// the subprocess exits on its own.
func (p *Process) RunWithRestart() int {
	for {
		code, again := p.superviseOnce()
		if !again {
			return code
		}
		p.logger.Info("Restarting process")
	}
}

// superviseOnce runs one spawn-to-exit cycle. The second return value is
// true when a restart was requested and the loop should go again.
func (p *Process) superviseOnce() (int, bool) {
	h, err := p.spawn(p.GetCommand())
	if err != nil {
		return 1, false
	}
	defer h.drain()

	select {
	case <-p.ctx.Done():
		p.logger.Info("Context cancelled, shutting down process")
		p.signalStop()
		return p.awaitExit(h.exited), false

	case next := <-p.restartChan:
		p.logger.Info("Received restart request")
		p.signalStop()
		p.commandMu.Lock()
		p.command = next
		p.commandMu.Unlock()
		return p.awaitExit(h.exited), true

	case err := <-h.exited:
		return p.reportExit(err), false
	}
}

// spawn parses and launches command, wiring stdin and both output pumps.
func (p *Process) spawn(command string) (*handle, error) {
	args, err := parseCommand(command)
	if err != nil {
		p.logger.Error("Failed to parse command", "error", err)
		return nil, err
	}
	if len(args) == 0 {
		p.logger.Error("Empty command")
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.logger.Error("Failed to create stdin pipe", "error", err)
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.logger.Error("Failed to create stdout pipe", "error", err)
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.logger.Error("Failed to create stderr pipe", "error", err)
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", command)
		return nil, err
	}
	p.cmd = cmd

	p.stdinMu.Lock()
	p.stdin = stdin
	p.stdinMu.Unlock()

	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)

	drained := make(chan struct{}, 2)
	pump := func(r io.Reader, source string) {
		p.pumpOutput(r, source)
		drained <- struct{}{}
	}
	go pump(stdout, "stdout")
	go pump(stderr, "stderr")

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	return &handle{exited: exited, drained: drained}, nil
}

// drain waits for both output pumps to hit EOF.
func (h *handle) drain() {
	<-h.drained
	<-h.drained
}

// signalStop asks the subprocess to stop with SIGINT.
func (p *Process) signalStop() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Info("Sending SIGINT to process", "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// awaitExit waits for the subprocess to exit within the grace window,
// then kills it and waits a second window before giving up.
func (p *Process) awaitExit(exited <-chan error) int {
	select {
	case err := <-exited:
		return exitCode(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
	if p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "error", err)
		}
	}

	select {
	case <-exited:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
	}
	return killedExitCode
}

// reportExit logs the subprocess exit and returns its code.
func (p *Process) reportExit(err error) int {
	code := exitCode(err)
	if err != nil && code == 1 {
		p.logger.Error("Process exited with error", "error", err)
	}
	p.logger.Info("Process exited", "exit_code", code)
	return code
}

// exitCode maps a Wait error to an exit code. Anything that is not an
// ExitError counts as failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// pumpOutput reads subprocess lines, hands them to the output handler,
// and logs them at the level the parser assigns.
func (p *Process) pumpOutput(r io.Reader, source string) {
	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}
		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// parseCommand splits a shell-like command string into argv, honoring
// single and double quotes and backslash escapes.
func parseCommand(command string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote rune

	flush := func() {
		if cur.Len() > 0 {
			args = append(args, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case r == ' ':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	return args, nil
}
