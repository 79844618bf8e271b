package encoder

import "strings"

// ParseLogLevel extracts the log level from encoder output.
// With -loglevel level+info the encoder emits lines like "[info] message"
// or "[component @ 0x...] [level] message" for component-specific logs.
// Returns the level and the message with the level tag stripped but the
// component prefix preserved.
func ParseLogLevel(line string) (level, msg string) {
	bracket, rest, ok := leadingBracket(line)
	if !ok {
		return "info", line
	}

	if isLogLevel(bracket) {
		return bracket, rest
	}

	// Component prefix: [component @ 0x...] [level] message.
	// Keep the component, strip only the [level].
	if next, nextRest, nextOK := leadingBracket(rest); nextOK && isLogLevel(next) {
		return next, "[" + bracket + "] " + nextRest
	}

	return "info", line
}

// leadingBracket splits "[x] rest" into ("x", "rest", true).
func leadingBracket(line string) (bracket, rest string, ok bool) {
	if len(line) < 3 || line[0] != '[' {
		return "", "", false
	}
	end := strings.Index(line, "] ")
	if end == -1 {
		return "", "", false
	}
	return line[1:end], line[end+2:], true
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
