package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	GoVersion string         `json:"go_version"`
	Uptime    string         `json:"uptime"`
	Backend   string         `json:"backend"`
	Available bool           `json:"backend_available"`
	Jobs      map[string]int `json:"jobs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	jobs := map[string]int{}
	if summary, err := s.manager.Summary(r.Context()); err == nil {
		for state, n := range summary {
			jobs[string(state)] = n
		}
	}

	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Backend:   s.backend.Name(),
		Available: s.backend.IsAvailable(r.Context()),
		Jobs:      jobs,
	})
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, map[string]any{
		"name":    "flowsched",
		"version": "0.1.0",
		"endpoints": []string{
			"GET /api/v1/health",
			"GET /api/v1/jobs",
			"POST /api/v1/jobs",
			"GET /api/v1/jobs/{id}",
			"PUT /api/v1/jobs/{id}/cancel",
			"GET /api/v1/jobs/{id}/wait",
			"DELETE /api/v1/jobs/{id}",
		},
	})
}
