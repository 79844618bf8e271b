// Package logging provides structured logging with per-module levels.
//
// Built on log/slog, it routes records to every output that is usable:
// stdout when connected to a terminal, pipe or file; the systemd
// journal when journald is present; and an in-memory ring buffer that
// feeds the log streaming API endpoint.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"streams": "debug",
//			"scte35":  "debug",
//		},
//	})
//
// Module loggers are cached and safe to fetch from anywhere:
//
//	logger := logging.GetLogger("manifest").With("stream_id", name)
//	logger.Info("Playlist rewritten", "segments", n)
//
// Module levels can be raised or lowered independently of the global
// level; loggers created before Initialize pick up their configured
// level when it runs.
//
// Journal output carries structured fields, so attribute filtering
// works from journalctl:
//
//	journalctl -t cueplex -f
//	journalctl -t cueplex MODULE=streams STREAM_ID=channel1
package logging
