package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rodmena-limited/supervice/internal/metrics"
	"github.com/rodmena-limited/supervice/internal/process"
)

// StatusProvider is the read-only view the API exposes; the Supervisor
// implements it.
type StatusProvider interface {
	Status() []process.Status
}

// Router serves the read-only observability endpoints:
//
//	GET /status   — the same payload as the RPC status command
//	GET /metrics  — Prometheus metrics
type Router struct {
	sp StatusProvider
}

func NewRouter(sp StatusProvider) *Router { return &Router{sp: sp} }

// Handler returns a gin-powered http.Handler that can be mounted anywhere.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/status", r.handleStatus)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "processes": r.sp.Status()})
}

// NewServer builds an HTTP server for the router with conservative
// timeouts. The caller runs ListenAndServe and Shutdown.
func NewServer(addr string, sp StatusProvider) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(sp).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
