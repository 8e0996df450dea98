// Package logging configures structured zerolog output for the collector.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Format selects the output encoding.
type Format string

const (
	// FormatAuto uses console output on a terminal and JSON otherwise.
	FormatAuto Format = "auto"

	// FormatJSON always writes one JSON object per line.
	FormatJSON Format = "json"

	// FormatConsole always writes human-readable lines.
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Format selects JSON or console output (default: auto).
	Format Format

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatAuto,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if usePretty(cfg.Format, output) {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// usePretty resolves FormatAuto by checking whether out is a terminal.
func usePretty(format Format, out io.Writer) bool {
	switch Format(strings.ToLower(string(format))) {
	case FormatConsole:
		return true
	case FormatJSON:
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithCredential tags l with the masked credential.
func WithCredential(l zerolog.Logger, cred riot.Credential) zerolog.Logger {
	return l.With().Str("credential", cred.Masked()).Logger()
}

// Log Level Guidelines:
//
// Debug: per-dispatch detail
//   - budget reservations, worker start/finish
//   - dedup duplicates
//
// Info: run lifecycle
//   - startup configuration, discovery totals
//   - periodic progress lines
//   - completion summary
//
// Warn: one line per dropped work item
//   - provider failures (status code, error class)
//   - players missing an id for their owning credential
//
// Error: conditions needing attention
//   - sink write failures (record dropped)
//   - budget or dedup backend errors
//
// Context Fields:
//   - component: scheduler, discovery, provider, sink
//   - credential: masked credential
//   - region, platform
//   - stage: seed or match
//   - match_id, summoner_id
//   - status_code, error_class
