package core

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	// Stay quiet until a platform installs a writer.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(io.Discard)
}

// SetDebugWriter routes log output to w. Terminals get the human readable
// console format, everything else gets JSON lines.
func SetDebugWriter(w io.Writer) {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.TimeOnly}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// SetDebugEnabled toggles debug level output.
func SetDebugEnabled(enabled bool) {
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}
