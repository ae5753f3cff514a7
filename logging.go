package streamrt

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger used throughout this package, scoped to
// a Runtime rather than a package-level global (mirroring the shape of
// eventloop.Logger / eventloop.SetStructuredLogger, but instance-scoped:
// a process may host exactly one Runtime in the original Argobots-style
// design, but tests here construct many Runtimes concurrently, so a
// package global would leak state across them).
type Logger = logiface.Logger[logiface.Event]

// newDefaultLogger builds the zero-configuration default: an
// informational-level logger writing newline-delimited JSON to stderr via
// stumpy, logiface's own reference backend.
func newDefaultLogger() *Logger {
	l := stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithLevel(logiface.LevelInformational),
	)
	return l.Logger()
}

// newNoOpLogger builds a disabled logger: every call short-circuits on
// Level() == LevelDisabled, costing a single branch.
func newNoOpLogger() *Logger {
	l := logiface.New[logiface.Event](logiface.WithLevel[logiface.Event](logiface.LevelDisabled))
	return l
}
