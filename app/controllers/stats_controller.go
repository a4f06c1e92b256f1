package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbusbilling/subrelay/app/repository"
	"github.com/nimbusbilling/subrelay/internal/pkg/metrics/counter"
)

// StatsController reports dispatch and delivery tallies: the live counters
// from Redis plus the flushed totals from the database.
type StatsController struct {
	counters *counter.Counters
	stats    repository.DeliveryStatRepository
	events   repository.WebhookEventRepository
}

func NewStatsController(counters *counter.Counters, stats repository.DeliveryStatRepository, events repository.WebhookEventRepository) *StatsController {
	return &StatsController{counters: counters, stats: stats, events: events}
}

func (sc *StatsController) HandleGetStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	delivered, failed, dispatched, err := sc.counters.Snapshot(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read counters"})
	}

	persisted, err := sc.stats.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load delivery stats"})
	}

	totalEvents, err := sc.events.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count events"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"events_total": totalEvents,
		"dispatched":   dispatched,
		"pending": fiber.Map{
			"delivered": delivered,
			"failed":    failed,
		},
		"routes": persisted,
	})
}
