package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var log *slog.Logger

func Init() {
	log = New(NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func New(h slog.Handler) *slog.Logger {
	return slog.New(h)
}

func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func Info(msg string, args ...interface{}) {
	ensure()
	log.Info(msg, args...)
}

func Infof(format string, v ...interface{}) {
	ensure()
	log.Info(fmt.Sprintf(format, v...))
}

func Error(msg string, args ...interface{}) {
	ensure()
	log.Error(msg, args...)
}

func Errorf(format string, v ...interface{}) {
	ensure()
	log.Error(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...interface{}) {
	ensure()
	log.Debug(msg, args...)
}

func Debugf(format string, v ...interface{}) {
	ensure()
	log.Debug(fmt.Sprintf(format, v...))
}

func Fatal(msg string) {
	ensure()
	log.Error(msg)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	ensure()
	log.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func WithError(err error) *slog.Logger {
	ensure()
	return log.With("error", err)
}

func WithFields(fields map[string]interface{}) *slog.Logger {
	ensure()
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return log.With(args...)
}

// ensure keeps package-level helpers usable before Init, e.g. in tests.
func ensure() {
	if log == nil {
		Init()
	}
}
