// Package logging holds the process-wide zap logger shared by the engines,
// the causal layer and the CLI. Engines report through it instead of
// returning errors: non-convergence, ignored interventions and failed
// restores are all warnings or errors here.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"beliefgraph/internal/errors"
)

// Logger is the process-wide logger. Tests swap it with Replace.
var Logger = zap.NewNop()

// Config contains logging configuration
type Config struct {
	// Level is the minimum log level
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is json or console
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=json console"`

	// Output is stdout, stderr or a file path
	Output string `json:"output" yaml:"output"`

	// Development adds caller stacks to errors and uses zap's development encoder
	Development bool `json:"development" yaml:"development"`
}

// DefaultConfig logs info and above to stderr
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// New builds a logger from cfg without touching the global one. An unknown
// level falls back to info.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	sink, terminal, err := openSink(cfg.Output)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		// color codes only make sense on a terminal stream
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if terminal {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(encoder, sink, level), opts...), nil
}

func openSink(output string) (zapcore.WriteSyncer, bool, error) {
	switch output {
	case "stdout":
		return zapcore.Lock(os.Stdout), true, nil
	case "stderr", "":
		return zapcore.Lock(os.Stderr), true, nil
	}
	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, errors.Config("failed to open log output", err).WithContext("output", output)
	}
	return zapcore.AddSync(file), false, nil
}

// Initialize replaces the global logger with one built from cfg. On error
// the previous logger stays in place.
func Initialize(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// Replace swaps the global logger and returns a function restoring the previous one.
func Replace(l *zap.Logger) func() {
	prev := Logger
	Logger = l
	return func() {
		Logger = prev
	}
}

// Sync flushes the logger
func Sync() {
	_ = Logger.Sync()
}

// With returns a child of the global logger carrying fields, e.g. the graph
// a command is working on.
func With(fields ...zap.Field) *zap.Logger {
	return Logger.With(fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Logger.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Logger.Error(msg, fields...)
}

func init() {
	if l, err := New(DefaultConfig()); err == nil {
		Logger = l
	}
}
