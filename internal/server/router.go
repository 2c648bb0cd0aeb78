package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/stagehand/internal/metrics"
	"github.com/loykin/stagehand/internal/supervisor"
)

// Router exposes the supervisor's status/control surface over HTTP.
// Endpoints:
//
//	GET  {basePath}/status            aggregate snapshot
//	GET  {basePath}/status?name=X     single service runtime
//	GET  {basePath}/healthz           200 running / 503 otherwise
//	POST {basePath}/shutdown          request full shutdown
//	GET  /metrics                     prometheus
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.POST("/shutdown", r.handleShutdown)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusOK, r.sup.Status())
		return
	}
	rt, ok := r.sup.ServiceStatus(name)
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: "unknown service: " + name})
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (r *Router) handleHealthz(c *gin.Context) {
	st := r.sup.Status()
	if st.Phase == supervisor.PhaseRunning && !st.Degraded {
		c.JSON(http.StatusOK, okResp{OK: true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"ok":       false,
		"phase":    st.Phase,
		"degraded": st.Degraded,
	})
}

func (r *Router) handleShutdown(c *gin.Context) {
	r.sup.Shutdown()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
