package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
)

type Logger struct {
	*zap.Logger
}

// NewLogger builds a zap logger from the logging configuration.
// "stdout" and "stderr" write to the process streams; any other output is a
// file path rotated by lumberjack.
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	var encoderConfig zapcore.EncoderConfig
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Set log level
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// Set output format
	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	sink, err := newSink(cfg)
	if err != nil {
		return nil, err
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	return &Logger{zap.New(core, opts...)}, nil
}

func newSink(cfg config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "", "stdout":
		return zapcore.Lock(zapcore.AddSync(os.Stdout)), nil
	case "stderr":
		return zapcore.Lock(zapcore.AddSync(os.Stderr)), nil
	}

	if strings.HasSuffix(cfg.Output, "/") {
		return nil, fmt.Errorf("log output %q is a directory", cfg.Output)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
		Compress:   cfg.Compress,
	}), nil
}

func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// NewNopLogger returns a logger that discards everything, for tests and tools.
func NewNopLogger() *Logger {
	return &Logger{zap.NewNop()}
}
