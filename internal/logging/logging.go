// Package logging builds the process logger: a console core on the given
// writer tee'd with a JSON core written to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the logger outputs.
type Options struct {
	Level     string // debug, info, warn, error
	File      string // empty disables the file core
	MaxSizeMB int
	MaxFiles  int
	Console   io.Writer // nil means stderr
}

// ParseLevel maps a level name to a zap level. The empty name is info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
}

// New creates a logger for opts. The returned close func flushes the logger
// and releases the log file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(console), level),
	}

	var rotator *lumberjack.Logger
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxFiles,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	closeFn := func() error {
		_ = logger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}
