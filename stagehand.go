// Package stagehand is an embeddable, single-host multi-service supervisor:
// it starts an ordered list of executables, waits for each to become ready
// before starting the next, restarts crashed services with geometric
// backoff, and stops everything in reverse order on shutdown.
package stagehand

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/stagehand/internal/config"
	"github.com/loykin/stagehand/internal/journal"
	jfactory "github.com/loykin/stagehand/internal/journal/factory"
	"github.com/loykin/stagehand/internal/logger"
	"github.com/loykin/stagehand/internal/metrics"
	"github.com/loykin/stagehand/internal/probe"
	"github.com/loykin/stagehand/internal/server"
	"github.com/loykin/stagehand/internal/service"
	"github.com/loykin/stagehand/internal/supervisor"
)

// Re-exported core types for embedders. The internal packages are not
// importable from outside the module, so everything needed to build specs
// and options programmatically is aliased here.
type (
	Config          = cfg.Config
	Spec            = service.Spec
	State           = service.State
	Runtime         = service.Runtime
	Event           = service.Event
	Options         = supervisor.Options
	Phase           = supervisor.Phase
	Status          = supervisor.Status
	Supervisor      = supervisor.Supervisor
	Journal         = journal.Journal
	JournalConfig   = journal.Config
	ProbeSpec       = probe.Spec
	LogConfig       = logger.Config
	ResourceSampler = metrics.ResourceSampler
)

// Readiness probe kinds accepted in ProbeSpec.Kind.
const (
	ProbePort = probe.KindPort
	ProbeHTTP = probe.KindHTTP
	ProbeNone = probe.KindNone
)

// LoadConfig reads and validates the TOML config at path.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// New builds a supervisor from validated config, wiring the configured
// journal backend.
func New(c *Config, log *slog.Logger) (*Supervisor, error) {
	j, err := jfactory.New(c.Journal)
	if err != nil {
		return nil, err
	}
	return supervisor.New(c.Specs, supervisor.Options{
		StartInterval: c.StartInterval,
		Journal:       j,
		Logger:        log,
	})
}

// NewSupervisor builds a supervisor directly from specs and options.
func NewSupervisor(specs []Spec, opts Options) (*Supervisor, error) {
	return supervisor.New(specs, opts)
}

// NewJournal builds a journal backend from config.
func NewJournal(c JournalConfig) (Journal, error) { return jfactory.New(c) }

// NewHTTPServer starts the status/control API on addr.
func NewHTTPServer(addr, basePath string, sup *Supervisor) (*http.Server, error) {
	return server.NewServer(addr, basePath, sup)
}

// NewAPIHandler returns the API as an http.Handler for mounting in an
// existing server (gin, echo, net/http).
func NewAPIHandler(basePath string, sup *Supervisor) http.Handler {
	return server.NewRouter(sup, basePath).Handler()
}

// SetupLogging installs the process-wide slog default.
func SetupLogging(level string, noColor bool) *slog.Logger {
	return logger.Setup(level, noColor)
}

// NewResourceSampler builds a sampler feeding the per-service CPU/RSS gauges
// from the supervisor's running PIDs. Run it in its own goroutine.
func NewResourceSampler(sup *Supervisor, log *slog.Logger) *ResourceSampler {
	return &ResourceSampler{PIDs: sup.PIDs, Log: log}
}

// RegisterMetrics registers the prometheus collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers with the default prometheus registry.
func RegisterMetricsDefault() error { return metrics.RegisterDefault() }
