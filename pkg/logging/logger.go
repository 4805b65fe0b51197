// Package logging configures the process-wide zerolog logger.
//
// Levels in use:
//
//	debug  cache hits and misses, per-route priming, index rebuilds
//	info   startup and shutdown, prime summaries, admin mutations, webhooks
//	warn   CDN purge failures and throttling, cache errors served uncached,
//	       rejected webhook signatures
//	error  requests answered with 5xx, database failures
//
// Common fields: component, route, slug, cache_key, surrogate_keys,
// status_code, duration, error_class, request_id.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is stamped on every event written by a logger from Setup.
const Service = "drinks"

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Setup installs a logger built from cfg as log.Logger and returns it.
// An unparsable level falls back to info; Config.Validate catches it first.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", Service).Logger()
	log.Logger = logger
	if err != nil {
		logger.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
	}
	return logger
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger derives a logger for one component from log.Logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
