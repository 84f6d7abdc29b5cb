package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/safebet-mcp/internal/cache"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"go.uber.org/zap"
)

var kindStatus = map[services.ErrorKind]int{
	services.ErrorKindValidation:     fiber.StatusBadRequest,
	services.ErrorKindPrecondition:   fiber.StatusConflict,
	services.ErrorKindAuthorization:  fiber.StatusForbidden,
	services.ErrorKindInvariant:      fiber.StatusUnprocessableEntity,
	services.ErrorKindTransport:      fiber.StatusBadGateway,
	services.ErrorKindPartialFailure: fiber.StatusOK,
}

// outcomeStatus picks the HTTP status for a fund-moving call's outcome.
func outcomeStatus(o *services.Outcome) int {
	switch o.Status {
	case services.OutcomeSuccess:
		return fiber.StatusOK
	case services.OutcomeUnknownPending:
		return fiber.StatusAccepted
	}
	if status, ok := kindStatus[o.Kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func (s *APIServer) respondOutcome(c *fiber.Ctx, outcome *services.Outcome, err error) error {
	if err != nil {
		return s.respondError(c, err)
	}
	if !outcome.Succeeded() || outcome.Degraded {
		s.logger.Warn("operation did not fully succeed",
			zap.String("path", c.Path()),
			zap.String("status", string(outcome.Status)),
			zap.String("kind", string(outcome.Kind)),
			zap.String("message", outcome.Message),
		)
	}
	return c.Status(outcomeStatus(outcome)).JSON(outcome)
}

// respondError writes a read-path error.
func (s *APIServer) respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrPoolNotFound),
		errors.Is(err, services.ErrMirrorNotFound),
		errors.Is(err, services.ErrRecordNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, cache.ErrLockHeld):
		status = fiber.StatusConflict
	case services.KindOf(err) == services.ErrorKindValidation:
		status = fiber.StatusBadRequest
	case services.KindOf(err) == services.ErrorKindTransport:
		status = fiber.StatusBadGateway
	}
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  services.KindOf(err),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"kind":  services.ErrorKindValidation,
	})
}
