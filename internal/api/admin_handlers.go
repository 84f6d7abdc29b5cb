package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/safebet-mcp/internal/api/middleware"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/scheduler"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"go.uber.org/zap"
)

type ResolveRequest struct {
	Outcome string `json:"outcome" validate:"required"`
}

type UpdateRateRequest struct {
	RateBps *uint64 `json:"rate_bps" validate:"required,lte=100000"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type SetDefaultRequest struct {
	Protocol string `json:"protocol" validate:"required"`
}

// StakeRequest names the target protocol. Empty or "default" stakes to the
// registry default, "best" to the highest active rate.
type StakeRequest struct {
	Protocol string `json:"protocol"`
}

// bindBody parses and validates the request body into out.
func bindBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("Invalid request body: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return fmt.Errorf("Invalid arguments: %w", err)
	}
	return nil
}

func (s *APIServer) auditAdmin(c *fiber.Ctx, action string, fields ...zap.Field) {
	user := middleware.GetAuthenticatedUser(c)
	if user == nil {
		return
	}
	s.logger.Info("admin action", append([]zap.Field{
		zap.String("action", action),
		zap.String("subject", user.Sub),
	}, fields...)...)
}

func (s *APIServer) handleLockAndStake(c *fiber.Ctx) error {
	s.auditAdmin(c, "lock_and_stake", zap.String("pool", c.Params("address")))
	outcome, err := s.draws.LockAndStake(c.UserContext(), c.Params("address"))
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleRetryStake(c *fiber.Ctx) error {
	s.auditAdmin(c, "retry_stake", zap.String("pool", c.Params("address")))
	outcome, err := s.draws.RetryStake(c.UserContext(), c.Params("address"))
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleAutoResolve(c *fiber.Ctx) error {
	s.auditAdmin(c, "auto_resolve", zap.String("pool", c.Params("address")))
	outcome, err := s.draws.AutoResolve(c.UserContext(), c.Params("address"))
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleResolve(c *fiber.Ctx) error {
	var body ResolveRequest
	if err := bindBody(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	s.auditAdmin(c, "resolve_and_distribute",
		zap.String("pool", c.Params("address")),
		zap.String("outcome", body.Outcome),
	)
	outcome, err := s.draws.ResolveAndDistribute(c.UserContext(), c.Params("address"), body.Outcome)
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleUpdateProtocolRate(c *fiber.Ctx) error {
	id, err := ledger.ParseProtocol(c.Params("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var body UpdateRateRequest
	if err := bindBody(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	s.auditAdmin(c, "update_rate", zap.Stringer("protocol", id), zap.Uint64("rate_bps", *body.RateBps))
	outcome, err := s.staking.UpdateRate(c.UserContext(), id, *body.RateBps)
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleSetProtocolActive(c *fiber.Ctx) error {
	id, err := ledger.ParseProtocol(c.Params("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var body SetActiveRequest
	if err := bindBody(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	s.auditAdmin(c, "set_active", zap.Stringer("protocol", id), zap.Bool("active", *body.Active))
	outcome, err := s.staking.SetActive(c.UserContext(), id, *body.Active)
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleSetDefaultProtocol(c *fiber.Ctx) error {
	var body SetDefaultRequest
	if err := bindBody(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	id, err := ledger.ParseProtocol(body.Protocol)
	if err != nil {
		return badRequest(c, err.Error())
	}
	s.auditAdmin(c, "set_default", zap.Stringer("protocol", id))
	outcome, err := s.staking.SetDefault(c.UserContext(), id)
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleStakePool(c *fiber.Ctx) error {
	var body StakeRequest
	if len(c.Body()) > 0 {
		if err := bindBody(c, &body); err != nil {
			return badRequest(c, err.Error())
		}
	}
	pool := c.Params("address")
	target := strings.ToLower(strings.TrimSpace(body.Protocol))
	s.auditAdmin(c, "stake", zap.String("pool", pool), zap.String("protocol", target))

	var (
		outcome *services.Outcome
		err     error
	)
	switch target {
	case "", "default":
		outcome, err = s.staking.StakeToDefault(c.UserContext(), pool)
	case "best":
		outcome, err = s.staking.StakeToBest(c.UserContext(), pool)
	default:
		id, parseErr := ledger.ParseProtocol(target)
		if parseErr != nil {
			return badRequest(c, parseErr.Error())
		}
		outcome, err = s.staking.StakeToProtocol(c.UserContext(), pool, id)
	}
	return s.respondOutcome(c, outcome, err)
}

func (s *APIServer) handleUnstakePool(c *fiber.Ctx) error {
	s.auditAdmin(c, "unstake", zap.String("pool", c.Params("address")))
	outcome, err := s.staking.Unstake(c.UserContext(), c.Params("address"))
	return s.respondOutcome(c, outcome, err)
}

// handleReconcile runs the mirror reconcile now. It shares the cron job's lock,
// so it fails with 409 while a scheduled run is in progress.
func (s *APIServer) handleReconcile(c *fiber.Ctx) error {
	s.auditAdmin(c, "mirror_reconcile")
	var report *services.ReconcileReport
	err := s.scheduler.Locked(c.UserContext(), scheduler.JobMirrorReconcile, func(ctx context.Context) error {
		var err error
		report, err = s.mirrorSync.Reconcile(ctx)
		return err
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(report)
}
