// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	Level  string `mapstructure:"log-level" yaml:"log-level"`
	Format string `mapstructure:"log-format" yaml:"log-format"`
	File   string `mapstructure:"log-file" yaml:"log-file"`
}

// Init installs the global logger and returns a closer for the log file,
// if one was opened.
func Init(s Settings) (io.Closer, error) {
	level := zerolog.InfoLevel
	if s.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s.Level))
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", s.Level)
		}
		level = l
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
		tty              = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	)
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", s.File)
		}
		out, closer, tty = f, f, false
	}

	w, err := writerFor(s.Format, out, tty)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return closer, nil
}

func writerFor(format string, out io.Writer, tty bool) (io.Writer, error) {
	switch strings.ToLower(format) {
	case "", "auto":
		if tty {
			return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}, nil
		}
		return out, nil
	case "console", "text":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: !tty}, nil
	case "json":
		return out, nil
	}
	return nil, errors.Errorf("unknown log format %q", format)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
