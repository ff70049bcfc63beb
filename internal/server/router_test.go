package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/loykin/keepbusy/internal/plan"
	"github.com/loykin/keepbusy/internal/state"
	"github.com/loykin/keepbusy/internal/supervisor"
	"github.com/stretchr/testify/require"
)

// readGateway serves canned statuses; mutating operations must never be
// reachable through the router.
type readGateway struct {
	statuses []supervisor.ProcessStatus
	err      error
	mutated  bool
}

func (g *readGateway) ApplyDescriptor(context.Context, []byte) error   { g.mutated = true; return nil }
func (g *readGateway) RestoreDescriptor(context.Context, []byte) error { g.mutated = true; return nil }
func (g *readGateway) StartGroup(context.Context) error                { g.mutated = true; return nil }
func (g *readGateway) StopGroup(context.Context) error                 { g.mutated = true; return nil }
func (g *readGateway) RestartGroup(context.Context) error              { g.mutated = true; return nil }
func (g *readGateway) SignalGroup(context.Context, string) error       { g.mutated = true; return nil }
func (g *readGateway) Reachable(context.Context) error                 { return nil }
func (g *readGateway) DescriptorPath() string                          { return "" }

func (g *readGateway) QueryStatus(context.Context) ([]supervisor.ProcessStatus, error) {
	return g.statuses, g.err
}

func newTestRouter(t *testing.T, gw supervisor.Gateway) *httptest.Server {
	t.Helper()
	st := state.New(filepath.Join(t.TempDir(), "state"), 2)
	require.NoError(t, st.Save(plan.Plan{CPUCores: 2, CPULoadPercent: 30, MemoryPercent: 40}, true))
	srv := httptest.NewServer(NewRouter(gw, st, "").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestRouter(t, &readGateway{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body okResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.OK)
}

func TestStatusEndpoint(t *testing.T) {
	gw := &readGateway{statuses: []supervisor.ProcessStatus{
		{Name: "cpu-stress", Group: "keepbusy", State: "RUNNING", PID: 4242},
		{Name: "memory-stress", Group: "keepbusy", State: "STOPPED"},
	}}
	srv := newTestRouter(t, gw)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statusResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Processes, 2)
	require.Equal(t, "cpu-stress", body.Processes[0].Name)
	require.False(t, gw.mutated)
}

func TestStateEndpoint(t *testing.T) {
	srv := newTestRouter(t, &readGateway{})

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body stateResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Enabled)
	require.Equal(t, 2, body.CPUCores)
	require.Equal(t, 30, body.CPULoadPercent)
	require.Equal(t, 40, body.MemoryPercent)
	require.False(t, body.Modified.IsZero())
}

func TestStatusEndpointUnavailablePlane(t *testing.T) {
	gw := &readGateway{err: &supervisor.ControlPlaneError{Kind: supervisor.Timeout, Op: "status"}}
	srv := newTestRouter(t, gw)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body errorResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body.Error, "status")
}

func TestNoMutatingRoutes(t *testing.T) {
	gw := &readGateway{}
	srv := newTestRouter(t, gw)

	for _, path := range []string{"/api/start", "/api/stop", "/api/apply", "/start", "/stop"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	require.False(t, gw.mutated)
}

func TestBasePathMount(t *testing.T) {
	gw := &readGateway{}
	st := state.New(filepath.Join(t.TempDir(), "state"), 2)
	srv := httptest.NewServer(NewRouter(gw, st, "kb").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/kb/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
