package validate

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidLogLevel reports a level the logger does not accept.
var ErrInvalidLogLevel = errors.New("invalid log level (must be: trace, debug, info, warn, error)")

// ParseLogLevel maps a configured level name onto the logger's level.
// Levels that silence errors (fatal, panic, disabled) are rejected.
func ParseLogLevel(s string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.NoLevel, ErrInvalidLogLevel
	}
	if lvl < zerolog.TraceLevel || lvl > zerolog.ErrorLevel {
		return zerolog.NoLevel, ErrInvalidLogLevel
	}
	return lvl, nil
}
