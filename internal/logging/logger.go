package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"reqflow/internal/config"
)

// LogFileName is the file written under paths.log_dir.
const LogFileName = "reqflow.log"

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
	// Color enables ANSI level colours on console output when stdout is a terminal.
	Color bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errorOutputs := opts.ErrorOutputPaths
	if len(errorOutputs) == 0 {
		errorOutputs = []string{"stderr"}
	}

	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	build := func(w io.Writer) (slog.Handler, error) {
		switch format {
		case "json":
			return newJSONHandler(w, levelVar, addSource), nil
		case "console", "":
			return newConsoleHandler(w, levelVar, addSource, opts.Color && stdoutIsTerminal()), nil
		default:
			return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
		}
	}

	w, err := openWriters(outputs, nil)
	if err != nil {
		return nil, err
	}
	handler, err := build(w)
	if err != nil {
		return nil, err
	}
	// Error outputs already covered by the main outputs are skipped.
	if ew, err := openWriters(errorOutputs, outputs); err != nil {
		return nil, err
	} else if ew != nil {
		errHandler, err := build(ew)
		if err != nil {
			return nil, err
		}
		handler = &errorTee{main: handler, errors: errHandler}
	}
	return slog.New(handler), nil
}

// errorTee copies error-level records to a second handler.
type errorTee struct {
	main   slog.Handler
	errors slog.Handler
}

func (t *errorTee) Enabled(ctx context.Context, level slog.Level) bool {
	return t.main.Enabled(ctx, level)
}

func (t *errorTee) Handle(ctx context.Context, r slog.Record) error {
	err := t.main.Handle(ctx, r)
	if r.Level >= slog.LevelError {
		err = errors.Join(err, t.errors.Handle(ctx, r.Clone()))
	}
	return err
}

func (t *errorTee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &errorTee{main: t.main.WithAttrs(attrs), errors: t.errors.WithAttrs(attrs)}
}

func (t *errorTee) WithGroup(name string) slog.Handler {
	return &errorTee{main: t.main.WithGroup(name), errors: t.errors.WithGroup(name)}
}

// NewFromConfig writes to stdout and, when a log directory is configured,
// to LogFileName inside it.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Color: true})
	}

	outputs := []string{"stdout"}
	if dir := cfg.Paths.LogDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		outputs = append(outputs, filepath.Join(dir, LogFileName))
	}

	return New(Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		// Colour codes would end up in the log file too.
		Color: len(outputs) == 1,
	})
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWriters fans out to every distinct destination not listed in skip.
// "stdout" and "stderr" name the standard streams; anything else is a file
// path. It returns nil when nothing is left to open.
func openWriters(paths, skip []string) (io.Writer, error) {
	seen := make(map[string]bool, len(paths)+len(skip))
	for _, p := range skip {
		seen[strings.TrimSpace(p)] = true
	}
	var writers []io.Writer
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true

		switch p {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if dir := filepath.Dir(p); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create log directory %s: %w", dir, err)
				}
			}
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", p, err)
			}
			writers = append(writers, f)
		}
	}

	switch len(writers) {
	case 0:
		if len(skip) == 0 {
			return os.Stdout, nil
		}
		return nil, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
