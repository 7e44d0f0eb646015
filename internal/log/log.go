// Package log provides the structured logger used by mmapkv's swap and
// crash-recovery paths. It replaces the teacher's bare fmt.Println calls
// with zerolog while keeping the "one line per event" texture.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

func base() zerolog.Logger {
	once.Do(func() {
		var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		logger = zerolog.New(w).With().Timestamp().Str("component", "dnstrie").Logger()
	})
	return logger
}

// Event returns a new info-level event scoped to the given subsystem,
// e.g. Event("mmapkv.compact").Err(err).Msg("compaction failed").
func Event(subsystem string) *zerolog.Event {
	return base().Info().Str("subsystem", subsystem)
}

// Warn returns a new warn-level event scoped to the given subsystem.
func Warn(subsystem string) *zerolog.Event {
	return base().Warn().Str("subsystem", subsystem)
}

// Error returns a new error-level event scoped to the given subsystem.
func Error(subsystem string) *zerolog.Event {
	return base().Error().Str("subsystem", subsystem)
}
