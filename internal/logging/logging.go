// Package logging builds the node's structured loggers and holds the
// attribute keys shared across packages so log lines stay greppable.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// levelNames maps configuration strings to slog levels. Unknown names
// fall back to info.
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// NewLogger creates a structured logger on stderr. Levels: debug, info,
// warn, error. Formats: text, json.
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a structured logger with a custom writer.
func NewLoggerWithWriter(level, format string, w io.Writer) *slog.Logger {
	return slog.New(newHandler(level, format, w))
}

func newHandler(level, format string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a configuration string to a slog.Level.
func parseLevel(level string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Common attribute keys for consistent logging.
const (
	KeyNodeID    = "node_id"
	KeyNeighbor  = "neighbor_id"
	KeySeqNo     = "seq_no"
	KeyMsgType   = "msg_type"
	KeyTTL       = "ttl"
	KeyHops      = "hops"
	KeyTask      = "task"
	KeyTransport = "transport"
	KeyLen       = "len"
	KeyError     = "error"
	KeyComponent = "component"
	KeyCount     = "count"
)
