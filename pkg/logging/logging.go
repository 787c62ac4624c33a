// Package logging wraps zerolog the way the rest of this codebase's
// lineage always has: one process-wide console logger, with a
// Named helper so the five concurrent supervisors (chassis, LIDAR,
// RTK, pose filter, robot facade) can be told apart in the stream.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

// Log is the process-wide logger.
var Log = logger.With().Caller().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// Named returns a child logger tagging every entry with component.
func Named(component string) zerolog.Logger {
	return Log.With().Str("component", component).Logger()
}

// SetJSON switches the process logger to newline-delimited JSON
// output, for production deployments where logs are shipped to a
// collector rather than read on a terminal.
func SetJSON() {
	Log = logger.With().Caller().Logger().Output(os.Stderr)
}
