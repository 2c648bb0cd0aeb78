// Package probe implements readiness detection for supervised services.
// A probe answers one question: has this service reached a usable state yet.
// The set of probe kinds is closed and validated at config load time.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	KindPort = "port"
	KindHTTP = "http"
	KindNone = "none"
)

// Spec is the readiness section of a service definition.
type Spec struct {
	Kind    string        // one of KindPort, KindHTTP, KindNone
	Port    int           // target port on localhost (port, http)
	Path    string        // URL path for http probes, default "/"
	Timeout time.Duration // overall readiness deadline
}

// Probe is a strategy that checks whether a service is ready.
// Implementations must be safe for concurrent use.
type Probe interface {
	// Check returns nil when the service is ready.
	Check(ctx context.Context) error
	// Describe returns a human-readable description of the check.
	Describe() string
}

// KnownKind reports whether kind names a supported probe.
func KnownKind(kind string) bool {
	switch kind {
	case KindPort, KindHTTP, KindNone:
		return true
	}
	return false
}

// New builds a Probe from spec. Unknown kinds are a config-time error and
// must be rejected before any service starts.
func New(spec Spec) (Probe, error) {
	switch spec.Kind {
	case KindPort:
		if spec.Port <= 0 || spec.Port > 65535 {
			return nil, fmt.Errorf("port probe: invalid port %d", spec.Port)
		}
		return PortProbe{Host: "127.0.0.1", Port: spec.Port}, nil
	case KindHTTP:
		if spec.Port <= 0 || spec.Port > 65535 {
			return nil, fmt.Errorf("http probe: invalid port %d", spec.Port)
		}
		path := spec.Path
		if path == "" {
			path = "/"
		}
		return HTTPProbe{URL: "http://127.0.0.1:" + strconv.Itoa(spec.Port) + path}, nil
	case KindNone, "":
		return NoneProbe{}, nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q", spec.Kind)
	}
}

// PortProbe succeeds when a TCP connection to Host:Port can be established.
type PortProbe struct {
	Host string
	Port int
}

func (p PortProbe) Check(ctx context.Context) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func (p PortProbe) Describe() string {
	return fmt.Sprintf("tcp connect %s:%d", p.Host, p.Port)
}

// HTTPProbe succeeds when a GET to URL returns any status below 500.
type HTTPProbe struct {
	URL string
}

func (p HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("http probe: status %d", resp.StatusCode)
	}
	return nil
}

func (p HTTPProbe) Describe() string { return "http get " + p.URL }

// NoneProbe treats the service as ready as soon as it has spawned.
type NoneProbe struct{}

func (NoneProbe) Check(_ context.Context) error { return nil }
func (NoneProbe) Describe() string              { return "none" }
