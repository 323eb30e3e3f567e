package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	File       string // log file path; empty disables file output
	Console    bool   // enable console output
	Pretty     bool   // human-readable console format
	Redaction  bool   // scrub credentials from output
	MaxSizeMB  int    // rotate the file past this size
	MaxAgeDays int    // drop rotated files older than this
	Compress   bool   // gzip rotated files
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Console:    true,
		Pretty:     true,
		Redaction:  true,
		MaxSizeMB:  100,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

// Logger owns the configured zerolog instance and any open log file.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// New builds a logger from cfg and installs it as the global zerolog logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Console {
		var console io.Writer = os.Stderr
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, console)
	}

	var file io.Closer
	if cfg.File != "" {
		rw, err := NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxAgeDays, cfg.Compress)
		if err != nil {
			return nil, err
		}
		writers = append(writers, rw)
		file = rw
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stderr
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		writer = redactor.Wrap(writer)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		file:     file,
		redactor: redactor,
	}, nil
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// With creates a child logger context.
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
