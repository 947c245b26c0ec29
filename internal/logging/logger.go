// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. When pretty is true, output is
// rendered with zerolog's human-friendly console writer (local development);
// otherwise structured JSON is emitted (production).
func Init(pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
}
