package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/opsdeck/opsdeck/internal/metrics"
)

type MetricsHandler struct {
	source *metrics.Source
}

func NewMetricsHandler(source *metrics.Source) *MetricsHandler {
	return &MetricsHandler{source: source}
}

// Latest returns the most recent snapshot, sampling on demand when the
// hub has not ticked yet.
func (h *MetricsHandler) Latest(c *fiber.Ctx) error {
	return c.JSON(h.source.Latest(c.UserContext()))
}

// History returns the ring of recent snapshots, oldest first.
func (h *MetricsHandler) History(c *fiber.Ctx) error {
	return c.JSON(h.source.History())
}
