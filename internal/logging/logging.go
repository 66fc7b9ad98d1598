// Package logging builds the structured zerolog.Logger each subsystem
// binary uses, binding a "component" field (and, where applicable, a "car"
// field) so the three subsystems' interleaved streams stay attributable.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console-formatted logger tagged with component, suitable
// for a subsystem's top-level main. Debug-level messages are always
// enabled; no flag or scenario setting changes the level.
func New(component string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(writer).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ForCar narrows a subsystem logger to one elevator car.
func ForCar(base zerolog.Logger, car int) zerolog.Logger {
	return base.With().Int("car", car).Logger()
}
