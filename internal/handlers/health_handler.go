package handlers

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opsdeck/opsdeck/internal/database"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/shirou/gopsutil/v4/host"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Check reports liveness plus a DB ping and basic host facts. A dead
// database degrades the whole response to 503 so load balancers stop
// routing here.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := fiber.StatusOK
	dbStatus := "ok"
	if err := database.Ping(); err != nil {
		status = fiber.StatusServiceUnavailable
		dbStatus = "unhealthy: " + err.Error()
	}

	hostname, _ := os.Hostname()
	var uptime uint64
	if info, err := host.InfoWithContext(c.UserContext()); err == nil {
		uptime = info.Uptime
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}

	return c.Status(status).JSON(dto.HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Hostname:  hostname,
		UptimeSec: uptime,
	})
}
