package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Firdavs28033/tg-monitoring-back/internal/analytics"
	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type handler struct {
	reader MessageReader
	pinger Pinger
	stats  StatsSource
	top    int
}

func (h *handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		logger.L().Warnf("Readiness check failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "error": "database unreachable"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// ListMessages GET /api/v1/messages?chat_id=&limit=&offset=
// 总数通过 X-Total-Count 返回
func (h *handler) ListMessages(c *fiber.Ctx) error {
	chatID, err := queryInt(c, "chat_id", 0)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat_id")
	}
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil || limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid limit")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid offset")
	}

	ctx := c.UserContext()
	messages, err := h.reader.ListMessages(ctx, chatID, limit, offset)
	if err != nil {
		logger.L().Errorf("Failed to list messages: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list messages")
	}
	total, err := h.reader.CountMessages(ctx, chatID)
	if err != nil {
		logger.L().Errorf("Failed to count messages: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to count messages")
	}

	if messages == nil {
		messages = []*models.MessageRecord{}
	}
	c.Set("X-Total-Count", strconv.FormatInt(total, 10))
	return c.JSON(messages)
}

// Stats GET /api/v1/stats
func (h *handler) Stats(c *fiber.Ctx) error {
	if h.stats == nil {
		return c.JSON(fiber.Map{"processed": 0, "top_words": []analytics.WordCount{}})
	}
	top := h.stats.Top(h.top)
	if top == nil {
		top = []analytics.WordCount{}
	}
	return c.JSON(fiber.Map{"processed": h.stats.Processed(), "top_words": top})
}

func queryInt(c *fiber.Ctx, key string, def int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
