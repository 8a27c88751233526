package handler

import (
	"context"
	"time"

	"jobfeed/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

// Pinger reports liveness of one dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	cache Pinger
}

func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Health)
}

func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok", "cache": "ok"}
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status["database"] = err.Error()
			healthy = false
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			// The cache is best-effort; report but stay healthy.
			status["cache"] = err.Error()
		}
	}

	if !healthy {
		return response.Error(c, fiber.StatusServiceUnavailable, "unhealthy", status)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, status)
}
