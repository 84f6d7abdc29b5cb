package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
)

// PoolResponse is a ledger pool with its mirrored display fields, when mirrored.
type PoolResponse struct {
	Pool   any                `json:"pool"`
	Mirror *models.PoolCreate `json:"mirror,omitempty"`
}

func (s *APIServer) handleListPools(c *fiber.Ctx) error {
	if status := c.Query("status"); status != "" {
		// listing by status reads the mirror
		pools, err := s.mirror.ListPools(c.UserContext(), models.PoolStatus(status))
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(fiber.Map{"pools": pools})
	}

	pools, err := s.pools.ListPools(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"pools": pools})
}

func (s *APIServer) handleGetPool(c *fiber.Ctx) error {
	address := c.Params("address")
	info, err := s.pools.GetPool(c.UserContext(), address)
	if err != nil {
		return s.respondError(c, err)
	}
	response := PoolResponse{Pool: info}
	if mirrored, err := s.mirror.GetPool(c.UserContext(), info.Address); err == nil {
		response.Mirror = mirrored
	}
	return c.JSON(response)
}

func (s *APIServer) handleGetParticipant(c *fiber.Ctx) error {
	account, ok := ledger.NormalizeAddress(c.Params("account"))
	if !ok {
		return badRequest(c, "invalid account address")
	}
	participant, err := s.pools.GetParticipant(c.UserContext(), c.Params("address"), account)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(participant)
}

func (s *APIServer) handleGetStakingPosition(c *fiber.Ctx) error {
	position, err := s.staking.GetPosition(c.UserContext(), c.Params("address"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(position)
}

func (s *APIServer) handleGetChart(c *fiber.Ctx) error {
	pool, ok := poolParam(c)
	if !ok {
		return badRequest(c, "invalid pool address")
	}
	points, err := s.mirror.GetChart(c.UserContext(), pool, c.QueryInt("limit", 100))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"pool": pool, "points": points})
}

func (s *APIServer) handleGetTopHolders(c *fiber.Ctx) error {
	pool, ok := poolParam(c)
	if !ok {
		return badRequest(c, "invalid pool address")
	}
	holders, err := s.mirror.GetTopHolders(c.UserContext(), pool, c.QueryInt("limit", 10))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"pool": pool, "holders": holders})
}

func (s *APIServer) handleListProtocols(c *fiber.Ctx) error {
	protocols, err := s.staking.ListProtocols(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	totals, err := s.staking.Totals(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"protocols": protocols, "totals": totals})
}

func (s *APIServer) handleListTokens(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tokens":     models.Tokens(),
		"pool_token": s.pools.Token(),
	})
}

func poolParam(c *fiber.Ctx) (string, bool) {
	address := c.Params("address")
	if !ledger.IsPoolAddress(address) {
		return "", false
	}
	normalized, ok := ledger.NormalizeAddress(address)
	return normalized, ok
}
