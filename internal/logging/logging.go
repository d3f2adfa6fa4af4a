// Package logging builds the zap logger shared by the service and CLI.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string
	// File enables rotated file output in addition to stderr.
	File string
	// MaxSizeMB is the size in megabytes a log file reaches before rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// Console switches to the human-readable encoder.
	Console bool
}

// FileSyncer returns a write syncer rotating through lumberjack.
func FileSyncer(opts Options) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	})
}

// New builds a logger writing JSON to stderr and, when File is set, to a
// rotated log file.
func New(opts Options) (*zap.Logger, error) {
	return newWithWriter(opts, os.Stderr)
}

func newWithWriter(opts Options, w io.Writer) (*zap.Logger, error) {
	level := zap.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.Console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sink := zapcore.AddSync(w)
	if opts.File != "" {
		sink = zapcore.NewMultiWriteSyncer(sink, FileSyncer(opts))
	}

	core := zapcore.NewCore(enc, zapcore.Lock(sink), level)
	return zap.New(core, zap.AddCaller()), nil
}
