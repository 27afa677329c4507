// Package logging builds the zap logger used for diagnostics. User-facing
// progress goes through the display package; the logger writes to stderr.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel keeps diagnostics quiet unless something needs attention.
const DefaultLevel = "warn"

// ParseLevel maps a level name to a zap level. Empty means DefaultLevel.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultLevel
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.WarnLevel, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", name)
	}
	return lvl, nil
}

// New returns a console logger writing to w at the given level.
func New(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core), nil
}

// Resolve picks the effective level: verbose forces debug, otherwise the
// first non-empty of the configured values wins.
func Resolve(verbose bool, levels ...string) string {
	if verbose {
		return "debug"
	}
	for _, l := range levels {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return DefaultLevel
}
