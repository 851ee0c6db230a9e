package config

import (
	"log/slog"
	"strings"

	"github.com/legout/flowerpower/internal/domain"
)

// LogLevel is RunConfig's log_level field (spec §3.1): one of DEBUG, INFO,
// WARNING, ERROR.
type LogLevel string

const (
	LogDebug   LogLevel = "DEBUG"
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

func (l LogLevel) valid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarning, LogError:
		return true
	}
	return false
}

// Validate rejects any value outside the four documented levels.
func (l LogLevel) Validate() error {
	if !l.valid() {
		return domain.NewConfigValidationError("log_level", "must be one of DEBUG, INFO, WARNING, ERROR")
	}
	return nil
}

// Slog converts to the equivalent log/slog level, defaulting to Info.
func (l LogLevel) Slog() slog.Level {
	switch LogLevel(strings.ToUpper(string(l))) {
	case LogDebug:
		return slog.LevelDebug
	case LogWarning:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
