package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/store"
)

// healthCheckTimeout bounds the backend pings behind one health request.
const healthCheckTimeout = 3 * time.Second

// Pinger is the minimal liveness surface of an optional backend. The Redis
// queue client is adapted to it in cmd/mango.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	store store.Store
	queue Pinger
}

// NewHealthHandler creates a health handler. queue may be nil when no
// notification queue is configured; it is then left out of the report.
func NewHealthHandler(st store.Store, queue Pinger) *HealthHandler {
	return &HealthHandler{store: st, queue: queue}
}

// Health handles GET /v1/health. It pings the store and, when configured,
// the notification queue, returning component status.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c, healthCheckTimeout)
	defer cancel()

	storeStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		storeStatus = "unavailable"
	}

	report := fiber.Map{"status": "ok", "store": storeStatus}
	status := fiber.StatusOK
	if storeStatus != "ok" {
		report["status"] = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	if h.queue != nil {
		queueStatus := "ok"
		if err := h.queue.Ping(ctx); err != nil {
			queueStatus = "unavailable"
			report["status"] = "degraded"
			status = fiber.StatusServiceUnavailable
		}
		report["queue"] = queueStatus
	}

	return c.Status(status).JSON(report)
}
