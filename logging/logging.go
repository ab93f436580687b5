package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the process-wide log level. SetLevel changes it without
// rebuilding the handler.
var Level = new(slog.LevelVar)

// ParseLevel maps debug|info|warn|error to a slog level. Anything else is
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func SetLevel(s string) {
	Level.Set(ParseLevel(s))
}

// Setup installs the default logger. Output goes to stdout and, when file is
// set, to a rotated log file as well. The returned closer releases the file.
func Setup(level, file string) (io.Closer, error) {
	SetLevel(level)

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, err
		}
		logWriter := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, logWriter)
		closer = logWriter
	}

	slog.SetDefault(slog.New(NewHandler(out)))
	return closer, nil
}

// NewHandler returns the text handler used by Setup, bound to Level.
func NewHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
