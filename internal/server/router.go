package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/keepbusy/internal/metrics"
	"github.com/loykin/keepbusy/internal/state"
	"github.com/loykin/keepbusy/internal/supervisor"
	"github.com/loykin/keepbusy/internal/usage"
)

// Router provides the embeddable read-only status API.
// Endpoints:
//
//	GET {basePath}/healthz      liveness probe
//	GET {basePath}/api/status   live process statuses from the control plane
//	GET {basePath}/api/state    persisted plan and enabled flag
//	GET {basePath}/metrics      Prometheus metrics
//
// There are no mutating endpoints: control stays with the CLI under the
// instance lock. basePath may be empty or start with '/'; no trailing
// slash.
type Router struct {
	gw       supervisor.Gateway
	store    *state.Store
	basePath string
}

func NewRouter(gw supervisor.Gateway, store *state.Store, basePath string) *Router {
	return &Router{gw: gw, store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/api/status", r.handleStatus)
	group.GET("/api/state", r.handleState)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, gw supervisor.Gateway, store *state.Store) (*http.Server, error) {
	r := NewRouter(gw, store, basePath)
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

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Processes []supervisor.ProcessStatus `json:"processes"`
	Usage     map[string]usage.Sample    `json:"usage,omitempty"`
}

type stateResp struct {
	Enabled        bool      `json:"enabled"`
	CPUCores       int       `json:"cpu_cores"`
	CPULoadPercent int       `json:"cpu_load_percent"`
	MemoryPercent  int       `json:"memory_percent"`
	Modified       time.Time `json:"modified,omitempty"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	sts, err := r.gw.QueryStatus(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	resp := statusResp{Processes: sts}
	pids := make(map[string]int32)
	for _, st := range sts {
		if st.Running() && st.PID > 0 {
			pids[st.Name] = int32(st.PID)
		}
	}
	if len(pids) > 0 {
		resp.Usage = usage.Collect(pids)
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleState(c *gin.Context) {
	snap := r.store.Snapshot()
	writeJSON(c, http.StatusOK, stateResp{
		Enabled:        snap.Enabled,
		CPUCores:       snap.Plan.CPUCores,
		CPULoadPercent: snap.Plan.CPULoadPercent,
		MemoryPercent:  snap.Plan.MemoryPercent,
		Modified:       snap.Modified,
	})
}
