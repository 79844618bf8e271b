package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is the subset of *slog.Logger collaborators depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config controls the global level, the output format and per-module
// level overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex           sync.RWMutex
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	logBuffer       *RingBuffer
	logCallback     LogCallback
)

// Initialize configures the logging system. Loggers handed out before
// this call pick up their configured levels and gain the ring buffer
// handler.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true
	logBuffer = NewRingBuffer(defaultBufferSize)
	globalLevelVar.Set(levelOrDefault(config.Level, slog.LevelInfo))

	// Rebuild existing module loggers: pre-Initialize handlers have no
	// buffer handler and default levels.
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(config, module))
		moduleLoggers[module] = slog.New(buildHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(buildHandler(config.Format, globalLevelVar)))
}

// GetLogger returns the logger for a module, creating and caching it on
// first use. The module name becomes a structured attribute and a
// journalctl filter field.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, ok := moduleLoggers[module]; ok {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		levelVar.Set(moduleLevel(globalConfig, module))
		format = globalConfig.Format
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	logger := slog.New(buildHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// GetBuffer returns the log history buffer, nil before Initialize.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback registers a callback invoked for each buffered entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// moduleLevel resolves a module's level: explicit override, else the
// global level, else info.
func moduleLevel(config Config, module string) slog.Level {
	if override, ok := config.Modules[module]; ok {
		if parsed := parseLevel(override); parsed != nil {
			return *parsed
		}
	}
	return levelOrDefault(config.Level, slog.LevelInfo)
}

// buildHandler assembles the output fan-out: stdout when usable, the
// systemd journal when present, and the ring buffer once Initialize has
// allocated it. Caller holds mutex.
func buildHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var targets []slog.Handler
	if stdoutUsable() {
		targets = append(targets, stdout)
	}
	if IsJournalAvailable() {
		targets = append(targets, NewJournalHandler(level.Level()))
	}
	if logBuffer != nil {
		targets = append(targets, NewBufferHandler(logBuffer, level.Level(), func(entry LogEntry) {
			if logCallback != nil {
				logCallback(entry)
			}
		}))
	}

	switch len(targets) {
	case 0:
		return stdout
	case 1:
		return targets[0]
	default:
		return NewMultiHandler(targets...)
	}
}

// stdoutUsable reports whether stdout goes anywhere: terminal, pipe,
// socket or regular file.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(s string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(s); parsed != nil {
		return *parsed
	}
	return fallback
}

func parseLevel(s string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(s) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
