package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"collegehub-backend/internal/services"
)

type MetricsHistoryResponse struct {
	Items []services.MetricSample `json:"items"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	RateLimit string `json:"rateLimit"`
}

func (s *Server) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 120)
	if limit > 500 {
		limit = 500
	}
	WriteJSON(w, http.StatusOK, MetricsHistoryResponse{Items: s.History.Latest(limit)})
}

// MetricsSocket streams host samples to coordinators. Browsers cannot set
// headers on a websocket handshake, so the token comes in the query.
func (s *Server) MetricsSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	student, err := s.Students.Authenticate(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !services.Can(student.Role, services.CapViewMetrics) {
		WriteError(w, http.StatusForbidden, "Not allowed")
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.MetricsHub.Add(conn)
	defer func() {
		s.MetricsHub.Remove(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Health reports 503 when the store is unreachable. A degraded rate
// limiter is reported but does not fail the check.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := HealthResponse{Status: "ok", Store: "ok", RateLimit: "ok"}
	status := http.StatusOK
	if err := s.Repo.Ping(ctx); err != nil {
		log.Printf("health: store ping failed: %v", err)
		resp.Status = "unavailable"
		resp.Store = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if s.Limiter != nil && !s.Limiter.Healthy(ctx) {
		resp.RateLimit = "degraded"
	}
	WriteJSON(w, status, resp)
}
