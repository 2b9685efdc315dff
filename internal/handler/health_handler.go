package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger проверяет доступность базы данных.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "up"}
	if err := h.db.PingContext(ctx); err != nil {
		status["status"], status["database"] = "error", "down"
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "Database is unavailable", Data: status})
		return
	}
	respond(w, http.StatusOK, "Service is healthy", status)
}
