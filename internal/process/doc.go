// Package process supervises encoder subprocesses.
//
// A Process wraps os/exec around a single command line. It streams the
// subprocess output through a pluggable parser, writes best-effort
// control lines to its stdin, and stops it with SIGINT before escalating
// to SIGKILL after a configurable grace window.
//
// The orchestrator drives the non-blocking Start/Wait/Shutdown surface,
// one Process per output pipeline. The standalone pipeline command drives
// the blocking Run/RunWithRestart surface under OS signal handling.
package process
