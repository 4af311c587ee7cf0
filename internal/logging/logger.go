package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skolar/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger from the logging section.
// Empty fields mean JSON at info level on stdout. The returned closer is
// non-nil only when a log file was opened.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if lvl := strings.ToLower(strings.TrimSpace(cfg.Level)); lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}

	output, closer, err := openOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("app", app.Name).
		Str("env", app.Environment).
		Str("version", app.Version).
		Logger()

	return &base, closer, nil
}

// openOutput resolves logging.output: stdout, stderr, file, or both
// (stdout and file).
func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		f, err := openFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	case "both":
		f, err := openFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return zerolog.MultiLevelWriter(os.Stdout, f), f, nil
	default:
		return nil, nil, fmt.Errorf("unknown logging.output %q", cfg.Output)
	}
}

func openFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("logging.file_path is required for file output")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Component returns a child logger tagged with the component name.
// A nil parent yields a no-op logger.
func Component(parent *zerolog.Logger, name string) *zerolog.Logger {
	if parent == nil {
		nop := zerolog.Nop()
		return &nop
	}
	l := parent.With().Str("component", name).Logger()
	return &l
}
