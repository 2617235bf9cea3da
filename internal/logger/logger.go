package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var once sync.Once

// Init configures the process-global zerolog logger. It runs only once;
// later calls are no-ops. Level accepts zerolog level names ("debug",
// "info", ...); format is "json" (default) or "console".
func Init(level, format string) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339

		lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil || level == "" {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)

		if strings.EqualFold(format, "console") {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		} else {
			log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		}
	})
}
