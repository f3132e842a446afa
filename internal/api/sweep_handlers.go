package api

import (
	"encoding/json"
	"net/http"
)

// @Summary      Trigger an expiry sweep
// @Description  Runs one sweep pass immediately and returns its counts. Safe to call while the scheduled sweep is running.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sweep.Result
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Sweep failed"
// @Router       /admin/sweep [post]
func (s *Server) TriggerSweepHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.sweeper.Run(r.Context())
	if err != nil {
		http.Error(w, "Sweep failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// @Summary      Health check
// @Tags         health
// @Success      200  {string}  string "ok"
// @Router       /health [get]
func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.GetPool().Ping(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
