package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. format is "json" or "console"; when
// filePath is set, output goes there in addition to stderr.
func NewLogger(level, format, filePath string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	// An empty level parses as info.
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	if filePath != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, filePath)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, filePath)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}
