package log

import (
	"io"
	L "log"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger handles logging.
type Logger interface {
	Debugf(tmpl string, args ...interface{})
	Errorf(tmpl string, args ...interface{})
	Infof(tmpl string, args ...interface{})
	Warnf(tmpl string, args ...interface{})
}

// Config contains logging details.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string
	// Path is the logfile destination. Empty disables file logging.
	Path string
	// Verbose additionally sends log output to stderr.
	Verbose bool
}

// New returns a zap backed Logger using the given Config.
func New(cfg Config) Logger {
	var cores []zapcore.Core
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	level := parseLevel(cfg.Level)
	if cfg.Path != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     30,
		})
		cores = append(cores, zapcore.NewCore(enc, w, level))
	}
	if cfg.Verbose || cfg.Path == "" {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), level))
	}
	z := zap.New(zapcore.NewTee(cores...))
	return z.Sugar()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case `debug`:
		return zapcore.DebugLevel
	case `warn`, `warning`:
		return zapcore.WarnLevel
	case `error`:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewNoop returns a NoopLogger.
func NewNoop() Logger {
	return &noopLogger{
		l: L.New(io.Discard, "[PIPE] ", 0),
	}
}

type noopLogger struct {
	l *L.Logger
}

func (n *noopLogger) Debugf(tmpl string, args ...interface{}) {
	n.l.Print(args...)
}

func (n *noopLogger) Errorf(tmpl string, args ...interface{}) {
	n.l.Print(args...)
}

func (n *noopLogger) Infof(tmpl string, args ...interface{}) {
	n.l.Print(args...)
}

func (n *noopLogger) Warnf(tmpl string, args ...interface{}) {
	n.l.Print(args...)
}
