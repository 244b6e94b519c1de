package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/bytemarkov/pkg/store"
)

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store  *store.Store
	logger *slog.Logger
}

func NewStatsAPI(st *store.Store, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:  st,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for the /api/stats endpoint.
func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats", s.handleGetStats)
}

// handleGetStats returns per-model statistics for the whole database. They
// are computed in SQL, so no model is loaded to answer.
func (s *StatsAPI) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("Failed to get database stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
