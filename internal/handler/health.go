package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness plus database connectivity. It always
// answers 200 so a load balancer keeps the process around while the
// database recovers; the "database" field says whether it has.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
	now    func() time.Time
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger, now: time.Now}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleHealth answers GET /api/health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	database := "Connected"
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check: database unreachable", slog.String("error", err.Error()))
		database = "Disconnected"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Database:  database,
		Timestamp: h.now().UTC(),
	})
}
