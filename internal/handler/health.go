package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cobra-poc/messaging-bridge/internal/config"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/worker"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type QueueStats interface {
	Stats() worker.Stats
}

type DeliveryCounter interface {
	CountByStatus(ctx context.Context, status model.DeliveryStatus) (int, error)
}

type HealthHandler struct {
	db         Pinger
	queue      QueueStats
	deliveries DeliveryCounter
}

func NewHealthHandler(db Pinger, queue QueueStats, deliveries DeliveryCounter) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, deliveries: deliveries}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.queue != nil {
		body["outbound"] = h.queue.Stats()
	}
	if h.deliveries != nil && status == http.StatusOK {
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()
		if failed, err := h.deliveries.CountByStatus(ctx, model.DeliveryStatusFailed); err == nil {
			body["failedDeliveries"] = failed
		}
	}

	writeJSON(w, status, body)
}
