package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
)

// RelayTransactionRequest carries a transaction signed by the user's wallet.
type RelayTransactionRequest struct {
	Transaction ledger.SignedTransaction     `json:"transaction"`
	Metadata    []models.TransactionMetadata `json:"metadata" validate:"dive"`
}

type relayedPayload struct {
	Sender    string `validate:"required"`
	Function  string `validate:"required"`
	Signature string `validate:"required,startswith=0x"`
}

// TransactionResponse is a stored record plus the ledger's current view of it.
type TransactionResponse struct {
	Record  *models.TransactionRecord `json:"record,omitempty"`
	Outcome *services.Outcome         `json:"outcome"`
}

func (s *APIServer) handleRelayTransaction(c *fiber.Ctx) error {
	var body RelayTransactionRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, fmt.Sprintf("Invalid request body: %v", err))
	}
	tx := body.Transaction
	if err := validator.New().Struct(relayedPayload{
		Sender:    tx.Payload.Sender,
		Function:  tx.Payload.Function,
		Signature: tx.Signature,
	}); err != nil {
		return badRequest(c, fmt.Sprintf("Invalid transaction: %v", err))
	}
	if err := validator.New().Struct(body); err != nil {
		return badRequest(c, fmt.Sprintf("Invalid metadata: %v", err))
	}

	outcome, err := s.executor.Relay(c.UserContext(), tx, body.Metadata)
	return s.respondOutcome(c, outcome, err)
}

// handleGetTransaction re-reads the ledger for hash and settles a record whose
// outcome was unknown.
func (s *APIServer) handleGetTransaction(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if !ledger.IsPoolAddress(hash) {
		// hashes share the 32-byte hex shape of pool addresses
		return badRequest(c, "invalid transaction hash")
	}

	outcome, err := s.executor.Verify(c.UserContext(), hash)
	if err != nil {
		return s.respondError(c, err)
	}
	record, err := s.txService.GetTransactionRecordByHash(c.UserContext(), hash)
	if err != nil && !errors.Is(err, services.ErrRecordNotFound) {
		return s.respondError(c, err)
	}
	if record == nil && outcome.Status == services.OutcomeUnknownPending {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "transaction not found",
			"hash":  hash,
		})
	}
	return c.JSON(TransactionResponse{Record: record, Outcome: outcome})
}
