package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/service"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// Callback headers set by the payments service
const (
	HeaderTimestamp = "X-Payments-Timestamp"
	HeaderSignature = "X-Payments-Signature"
)

const maxBodySize = 1 << 20

// Handler receives pay-in status callbacks
type Handler struct {
	verifier       *Verifier
	reconciliation service.ReconciliationService
	logger         *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(verifier *Verifier, reconciliation service.ReconciliationService, logger *zap.Logger) *Handler {
	return &Handler{
		verifier:       verifier,
		reconciliation: reconciliation,
		logger:         logger,
	}
}

// PayInEvent is the callback body. The id may be sent as a number or a string.
type PayInEvent struct {
	PayInID json.RawMessage `json:"payin_id"`
	Status  string          `json:"payin_status"`
}

func (e PayInEvent) id() string {
	raw := strings.TrimSpace(string(e.PayInID))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.PayInID, &s); err == nil {
		return s
	}
	return raw
}

// Handle processes a pay-in callback synchronously so the sender retries on failure
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if err := h.verifier.VerifySignature(c.GetHeader(HeaderTimestamp), c.GetHeader(HeaderSignature), body); err != nil {
		h.logger.Warn("Rejected pay-in callback",
			zap.String("timestamp", c.GetHeader(HeaderTimestamp)),
			zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var evt PayInEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Warn("Failed to parse pay-in callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse event"})
		return
	}
	payInID := evt.id()
	if payInID == "" || evt.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payin_id and payin_status are required"})
		return
	}

	h.logger.Info("Received pay-in callback",
		zap.String("payin_id", payInID),
		zap.String("payin_status", evt.Status))

	result, err := h.reconciliation.Apply(c.Request.Context(), payInID, evt.Status)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, service.ErrUnknownPayInStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCashCallNotFound):
		// Unknown pay-ins belong to other products; acknowledge so the sender stops retrying.
		h.logger.Info("Ignoring callback for unknown pay-in", zap.String("payin_id", payInID))
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
	case errors.Is(err, workflow.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to apply pay-in callback",
			zap.String("payin_id", payInID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply pay-in status"})
	}
}
