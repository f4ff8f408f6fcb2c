package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type CheckHandler struct {
	store Pinger
}

func NewCheckHandler(store Pinger) *CheckHandler {
	return &CheckHandler{store: store}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleReady checks the store as well as the process.
func (h CheckHandler) HandleReady(c *fiber.Ctx) error {
	if h.store != nil {
		if err := h.store.Ping(c.UserContext()); err != nil {
			return NewError(fiber.StatusServiceUnavailable, "store unavailable: "+err.Error())
		}
	}
	return c.JSON(fiber.Map{"result": "ready"})
}
