package http

import (
	"net/http"
	"time"

	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
)

// HandleLivez reports process liveness. It never touches dependencies.
func (rt *Router) HandleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(rt.StartedAt).Round(time.Second).String(),
		Version: rt.Version,
	})
}

// HandleReadyz reports readiness to serve: the database answers pings and
// at least one signing key is loaded.
func (rt *Router) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := &authsdk.HealthChecks{Database: "ok", Signer: "ok"}
	status := "ok"
	code := http.StatusOK

	if err := rt.Store.Ping(r.Context()); err != nil {
		checks.Database = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if !rt.Keys.IsReady() {
		checks.Signer = "no signing keys"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, authsdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(rt.StartedAt).Round(time.Second).String(),
		Version: rt.Version,
		Checks:  checks,
	})
}
