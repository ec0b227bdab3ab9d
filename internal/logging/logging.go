// Package logging configures the two-sink zap loggers used by the tasarch tools.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Separator joins the timestamp, level, logger name and message of a record.
const Separator = " - "

// Config describes the sinks of a logger.
type Config struct {
	// Name is the logger name printed on every record.
	Name string

	// FilePath is the append-only log file. Empty disables the file sink.
	FilePath string
	// FileLevel is the minimum level written to FilePath.
	FileLevel zapcore.Level

	// Console receives records at ConsoleLevel and above. Nil disables it.
	Console io.Writer
	// ConsoleLevel is the minimum level written to Console.
	ConsoleLevel zapcore.Level

	// Color forces level colors on the console sink. When nil, colors are
	// enabled only if Console is a terminal and NO_COLOR is unset.
	Color *bool
}

// Initialize builds a logger from cfg. The returned close func flushes both
// sinks and closes the log file; callers should defer it.
func Initialize(cfg Config) (*zap.Logger, func() error, error) {
	var (
		cores   []zapcore.Core
		closers []func() error
	)

	if cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		ws := zapcore.Lock(zapcore.AddSync(file))
		cores = append(cores, zapcore.NewCore(NewEncoder(false), ws, cfg.FileLevel))
		closers = append(closers, ws.Sync, file.Close)
	}

	if cfg.Console != nil {
		color := shouldUseColor(cfg.Console)
		if cfg.Color != nil {
			color = *cfg.Color
		}
		ws := zapcore.Lock(zapcore.AddSync(cfg.Console))
		cores = append(cores, zapcore.NewCore(NewEncoder(color), ws, cfg.ConsoleLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if cfg.Name != "" {
		logger = logger.Named(cfg.Name)
	}

	closeFn := func() error {
		// Sync on a console fd returns EINVAL on some platforms; only the
		// file sink errors are reported.
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return logger, closeFn, nil
}

// NewEncoder returns the line encoder shared by every sink:
// "<timestamp> - <LEVEL> - <name> - <message>".
func NewEncoder(color bool) zapcore.Encoder {
	level := zapcore.CapitalLevelEncoder
	if color {
		level = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeLevel:      level,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: Separator,
	})
}

// ParseLevel is zapcore.ParseLevel with a wrapped error.
func ParseLevel(text string) (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(text)
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", text, err)
	}
	return level, nil
}

func shouldUseColor(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
