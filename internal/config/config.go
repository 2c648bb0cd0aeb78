package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/stagehand/internal/journal"
	"github.com/loykin/stagehand/internal/logger"
	"github.com/loykin/stagehand/internal/probe"
	"github.com/loykin/stagehand/internal/service"
)

// ErrInvalid marks configuration validation failures. They are fatal to the
// whole run and surface before any service starts.
var ErrInvalid = errors.New("invalid config")

// DefaultWaitTimeout applies to port/http probes that omit wait.timeout.
const DefaultWaitTimeout = 30 * time.Second

// FileConfig is the top-level TOML structure.
type FileConfig struct {
	StartIntervalSeconds int             `toml:"start_interval_seconds" mapstructure:"start_interval_seconds"`
	LogLevel             string          `toml:"log_level" mapstructure:"log_level"`
	Log                  *logger.Config  `toml:"log" mapstructure:"log"`
	API                  *APIConfig      `toml:"api" mapstructure:"api"`
	Journal              *journal.Config `toml:"journal" mapstructure:"journal"`
	Services             []ServiceConfig `toml:"services" mapstructure:"services"`
}

// APIConfig configures the local HTTP status/control API.
type APIConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"` // e.g. "127.0.0.1:8420"; empty disables
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// ServiceConfig is one [[services]] entry.
type ServiceConfig struct {
	Name                 string         `toml:"name" mapstructure:"name"`
	Cmd                  []string       `toml:"cmd" mapstructure:"cmd"`
	Cwd                  string         `toml:"cwd" mapstructure:"cwd"`
	Wait                 WaitConfig     `toml:"wait" mapstructure:"wait"`
	AutoRestart          bool           `toml:"auto_restart" mapstructure:"auto_restart"`
	MaxRestarts          int            `toml:"max_restarts" mapstructure:"max_restarts"`
	RestartBackoff       float64        `toml:"restart_backoff" mapstructure:"restart_backoff"`               // seconds
	RestartBackoffFactor float64        `toml:"restart_backoff_factor" mapstructure:"restart_backoff_factor"` // >= 1
	RequiredFiles        []string       `toml:"required_files" mapstructure:"required_files"`
	Env                  []string       `toml:"env" mapstructure:"env"`
	Log                  *logger.Config `toml:"log" mapstructure:"log"`
}

// WaitConfig is the readiness section of a service entry.
type WaitConfig struct {
	Type    string  `toml:"type" mapstructure:"type"`
	Value   int     `toml:"value" mapstructure:"value"`     // port number
	Path    string  `toml:"path" mapstructure:"path"`       // http probes only
	Timeout float64 `toml:"timeout" mapstructure:"timeout"` // seconds
}

// Config is the validated, in-memory result of a load.
type Config struct {
	StartInterval time.Duration
	LogLevel      string
	API           APIConfig
	Journal       journal.Config
	Specs         []service.Spec
}

// Load reads and validates the TOML config at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return fc.Build()
}

// Build validates fc and converts it into runtime specs.
func (fc *FileConfig) Build() (*Config, error) {
	if fc.StartIntervalSeconds < 0 {
		return nil, fmt.Errorf("%w: start_interval_seconds must be >= 0", ErrInvalid)
	}
	if len(fc.Services) == 0 {
		return nil, fmt.Errorf("%w: no services defined", ErrInvalid)
	}

	cfg := &Config{
		StartInterval: time.Duration(fc.StartIntervalSeconds) * time.Second,
		LogLevel:      fc.LogLevel,
	}
	if fc.API != nil {
		cfg.API = *fc.API
	}
	if fc.Journal != nil {
		cfg.Journal = *fc.Journal
	}

	baseLog := logger.Config{}
	if fc.Log != nil {
		baseLog = *fc.Log
	}

	seen := make(map[string]struct{}, len(fc.Services))
	for i, sc := range fc.Services {
		spec, err := sc.build(baseLog)
		if err != nil {
			return nil, fmt.Errorf("%w: services[%d]: %v", ErrInvalid, i, err)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate service name %q", ErrInvalid, spec.Name)
		}
		seen[spec.Name] = struct{}{}
		cfg.Specs = append(cfg.Specs, spec)
	}
	return cfg, nil
}

func (sc *ServiceConfig) build(baseLog logger.Config) (service.Spec, error) {
	var zero service.Spec
	if sc.Name == "" {
		return zero, errors.New("name is required")
	}
	if len(sc.Cmd) == 0 {
		return zero, fmt.Errorf("service %q: cmd must be a nonempty list", sc.Name)
	}
	if sc.Cwd != "" {
		if fi, err := os.Stat(sc.Cwd); err != nil || !fi.IsDir() {
			return zero, fmt.Errorf("service %q: cwd %q is not an existing directory", sc.Name, sc.Cwd)
		}
	}
	waitKind := sc.Wait.Type
	if waitKind == "" {
		waitKind = probe.KindNone
	}
	if !probe.KnownKind(waitKind) {
		return zero, fmt.Errorf("service %q: unknown wait.type %q", sc.Name, sc.Wait.Type)
	}
	if sc.Wait.Timeout < 0 {
		return zero, fmt.Errorf("service %q: wait.timeout must be >= 0", sc.Name)
	}
	if sc.MaxRestarts < 0 {
		return zero, fmt.Errorf("service %q: max_restarts must be >= 0", sc.Name)
	}
	if sc.RestartBackoff < 0 {
		return zero, fmt.Errorf("service %q: restart_backoff must be >= 0", sc.Name)
	}
	factor := sc.RestartBackoffFactor
	if factor == 0 {
		factor = 1
	}
	if factor < 1 {
		return zero, fmt.Errorf("service %q: restart_backoff_factor must be >= 1", sc.Name)
	}

	logCfg := baseLog
	if sc.Log != nil {
		logCfg = *sc.Log
	}

	waitTimeout := secondsToDuration(sc.Wait.Timeout)
	if waitTimeout == 0 && waitKind != probe.KindNone {
		waitTimeout = DefaultWaitTimeout
	}
	pspec := probe.Spec{
		Kind:    waitKind,
		Port:    sc.Wait.Value,
		Path:    sc.Wait.Path,
		Timeout: waitTimeout,
	}
	if _, err := probe.New(pspec); err != nil {
		return zero, fmt.Errorf("service %q: %v", sc.Name, err)
	}

	return service.Spec{
		Name:           sc.Name,
		Command:        append([]string(nil), sc.Cmd...),
		WorkDir:        sc.Cwd,
		Wait:           pspec,
		AutoRestart:    sc.AutoRestart,
		MaxRestarts:    sc.MaxRestarts,
		RestartBackoff: secondsToDuration(sc.RestartBackoff),
		BackoffFactor:  factor,
		RequiredFiles:  append([]string(nil), sc.RequiredFiles...),
		Env:            append([]string(nil), sc.Env...),
		Log:            logCfg,
	}, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
