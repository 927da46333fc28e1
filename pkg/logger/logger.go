// pkg/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger instance
	Log zerolog.Logger
)

// Options configures the log sinks.
type Options struct {
	Level string
	// File enables a rotating file sink next to the console when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	Log = zerolog.New(consoleWriter(os.Stdout)).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = Log
}

func consoleWriter(out *os.File) zerolog.ConsoleWriter {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    !tty,
	}
}

// Setup rebuilds the global logger from opts. The returned closer releases the
// log file and is a no-op when no file sink is configured.
func Setup(opts Options) (io.Closer, error) {
	var (
		out    io.Writer = consoleWriter(os.Stdout)
		closer io.Closer = nopCloser{}
	)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	Log = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = Log
	SetLevel(opts.Level)
	return closer, nil
}

// SetLevel sets the log level
func SetLevel(levelStr string) {
	level := zerolog.InfoLevel
	if levelStr != "" {
		parsed, err := zerolog.ParseLevel(levelStr)
		if err != nil {
			Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		} else {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	Log = Log.Level(level)
	log.Logger = Log
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
