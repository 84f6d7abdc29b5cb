package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
)

func (s *APIServer) handleGetUser(c *fiber.Ctx) error {
	address, ok := ledger.NormalizeAddress(c.Params("address"))
	if !ok {
		return badRequest(c, "invalid address")
	}
	user, err := s.mirror.GetUser(c.UserContext(), address)
	if err != nil {
		return s.respondError(c, err)
	}
	balance, err := s.pools.Balance(c.UserContext(), address)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": user, "balance": balance})
}

func (s *APIServer) handleGetUserHistory(c *fiber.Ctx) error {
	address, ok := ledger.NormalizeAddress(c.Params("address"))
	if !ok {
		return badRequest(c, "invalid address")
	}
	history, err := s.mirror.GetHistory(c.UserContext(), address)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"address": address, "history": history})
}
