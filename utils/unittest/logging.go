package unittest

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var verbose = flag.Bool("vv", false, "print debugging logs")

// LogVerbose forces debug output regardless of the -vv flag.
func LogVerbose() {
	*verbose = true
}

// Logger returns a logger for tests: silent by default, debug output to
// stderr when the -vv flag is set. Timestamps are pinned to UTC so test
// output is stable across machines.
func Logger() zerolog.Logger {
	out := io.Discard
	if *verbose {
		out = os.Stderr
	}
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	return zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
