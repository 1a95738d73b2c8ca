package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/monitor"
)

// Handler serves the read-only status API over the control loop
type Handler struct {
	loop   *monitor.ControlLoop
	logger *logging.Logger
}

// NewHandler creates a status API handler
func NewHandler(loop *monitor.ControlLoop, logger *logging.Logger) *Handler {
	return &Handler{loop: loop, logger: logger}
}

// RegisterRoutes mounts the status API on the app
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")
	api.Get("/status", h.SystemStatus)
	api.Get("/shards", h.ShardStatistics)
	api.Get("/decisions", h.RecentDecisions)
}

// Health reports liveness
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// SystemStatus returns the aggregated system metrics, strategy, and recent
// decisions
func (h *Handler) SystemStatus(c *fiber.Ctx) error {
	return c.JSON(h.loop.GetSystemStatus())
}

// ShardStatistics returns the shard map load view
func (h *Handler) ShardStatistics(c *fiber.Ctx) error {
	return c.JSON(h.loop.GetShardStatistics())
}

// RecentDecisions returns up to ?limit= audit-log entries, newest first
func (h *Handler) RecentDecisions(c *fiber.Ctx) error {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	return c.JSON(fiber.Map{
		"decisions": h.loop.RecentDecisions(limit),
	})
}
