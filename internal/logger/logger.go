package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for captured service output.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where a supervised service's stdout/stderr go.
// If StdoutPath/StderrPath are empty and Dir is set, files will be
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	StdoutPath string `toml:"stdout" mapstructure:"stdout"`
	StderrPath string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Writers returns io.WriteClosers for stdout and stderr of the named service.
// Either writer may be nil when no destination is configured.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = c.rotatingWriter(stdout)
	}
	if stderr != "" {
		errW = c.rotatingWriter(stderr)
	}
	return outW, errW, nil
}

func (c Config) rotatingWriter(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Setup installs the process-wide slog default with the given level
// ("debug", "info", "warn", "error"). Output is colorized text on stderr.
func Setup(level string, noColor bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if noColor {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = NewColorTextHandler(os.Stderr, opts)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
