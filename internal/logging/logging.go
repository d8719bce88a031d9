// Package logging configures the process-wide logger. Output always goes to
// stderr: stdout carries the MCP protocol stream and must stay clean.
package logging

import (
	"os"

	"github.com/phuslu/log"
)

// Setup configures the default logger. level is one of trace, debug, info,
// warn, error (default info); format is "json" for JSON lines or anything
// else for human-readable console output.
func Setup(level, format string) {
	log.DefaultLogger = log.Logger{
		Level:      parseLevel(level),
		TimeFormat: "15:04:05",
		Writer:     newWriter(format),
	}
}

func parseLevel(level string) log.Level {
	switch level {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func newWriter(format string) log.Writer {
	if format == "json" {
		return &log.IOWriter{Writer: os.Stderr}
	}
	return &log.ConsoleWriter{
		Writer:         os.Stderr,
		ColorOutput:    false,
		EndWithMessage: true,
	}
}
