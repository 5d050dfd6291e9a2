package utils

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "social-brand-analyzer"

// InitLogger configures the global logger. level is one of trace, debug,
// info, warn or error; anything else falls back to debug in development
// and info elsewhere.
func InitLogger(environment, level string) {
	zerolog.SetGlobalLevel(parseLevel(environment, level))
	zerolog.DurationFieldUnit = time.Millisecond

	if environment == "development" {
		// Pretty console output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}).With().Timestamp().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Str("service", serviceName).
			Logger()
	}

	log.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Str("environment", environment).
		Msg("logger initialized")
}

func parseLevel(environment, level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	if environment == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
