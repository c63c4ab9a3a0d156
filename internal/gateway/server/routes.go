package server

import (
	"net/http"

	"urbansim/internal/gateway/handler"
	"urbansim/internal/gateway/middleware"
	"urbansim/internal/stream"
)

// NewMux mounts the REST surface, the websocket session endpoint, and the
// health probe behind the shared middleware.
func NewMux(svc *handler.Service, sessions *stream.SessionHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/ws", sessions.HandleWS)

	mux.HandleFunc("POST /api/projects", svc.CreateProject)
	mux.HandleFunc("GET /api/projects", svc.ListProjects)
	mux.HandleFunc("GET /api/projects/{id}", svc.GetProject)

	mux.HandleFunc("POST /api/simulations", svc.CreateSimulation)
	mux.HandleFunc("GET /api/simulations", svc.ListSimulations)
	mux.HandleFunc("GET /api/simulations/{id}", svc.GetSimulation)
	mux.HandleFunc("GET /api/simulations/{id}/metrics", svc.GetSimulationMetrics)
	mux.HandleFunc("GET /api/simulations/{id}/stream", svc.StreamSimulation)
	mux.HandleFunc("POST /api/simulations/{id}/cancel", svc.CancelSimulation)

	mux.HandleFunc("POST /api/debates", svc.CreateDebate)
	mux.HandleFunc("GET /api/debates", svc.ListDebates)
	mux.HandleFunc("GET /api/debates/{id}", svc.GetDebate)
	mux.HandleFunc("POST /api/debates/{id}/cancel", svc.CancelDebate)

	mux.HandleFunc("POST /api/reports", svc.CreateReport)
	mux.HandleFunc("GET /api/reports", svc.ListReports)
	mux.HandleFunc("GET /api/reports/{id}", svc.GetReport)
	mux.HandleFunc("GET /api/reports/{id}/stream", svc.StreamReport)
	mux.HandleFunc("GET /api/reports/{id}/artifacts", svc.ListReportArtifacts)
	mux.HandleFunc("GET /api/reports/{id}/artifacts/{path}", svc.GetReportArtifact)
	mux.HandleFunc("POST /api/reports/{id}/cancel", svc.CancelReport)

	mux.HandleFunc("GET /api/channels/{channel}/events", svc.GetChannelEvents)

	return middleware.CORS(mux)
}
