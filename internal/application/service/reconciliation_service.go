package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// Pay-in statuses reported by the payment processor
const (
	PayInStatusCreated   = "CREATED"
	PayInStatusSucceeded = "SUCCEEDED"
	PayInStatusFailed    = "FAILED"
)

// payInStates maps processor statuses to cash call states
var payInStates = map[string]workflow.State{
	PayInStatusCreated:   workflow.StatePending,
	PayInStatusSucceeded: workflow.StatePaid,
	PayInStatusFailed:    workflow.StateFailed,
}

// MapPayInStatus returns the cash call state of a processor status
func MapPayInStatus(status string) (workflow.State, error) {
	state, ok := payInStates[strings.ToUpper(strings.TrimSpace(status))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPayInStatus, status)
	}
	return state, nil
}

// ReconciliationResult describes what applying a processor status did
type ReconciliationResult struct {
	CashCallID int64          `json:"cashcall_id"`
	PayInID    string         `json:"payin_id"`
	From       workflow.State `json:"from"`
	To         workflow.State `json:"to"`
	Changed    bool           `json:"changed"`
}

// PollReport summarizes one reconciliation sweep
type PollReport struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Errors  int `json:"errors"`
}

// ReconciliationService applies payment processor outcomes to cash calls
type ReconciliationService interface {
	// Apply moves the cash call of payInID to the state matching status.
	// Applying a status the cash call already reflects is a no-op.
	Apply(ctx context.Context, payInID, status string) (*ReconciliationResult, error)

	// Poll asks the processor about cash calls awaiting payment and applies the answers
	Poll(ctx context.Context, limit int) (*PollReport, error)
}

type reconciliationService struct {
	repos     Repositories
	cashCalls CashCallService
	gateway   port.PaymentGateway
	logger    *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	repos Repositories,
	cashCalls CashCallService,
	gateway port.PaymentGateway,
	logger *zap.Logger,
) ReconciliationService {
	return &reconciliationService{
		repos:     repos,
		cashCalls: cashCalls,
		gateway:   gateway,
		logger:    logger,
	}
}

// Apply reconciles one pay-in status
func (s *reconciliationService) Apply(ctx context.Context, payInID, status string) (*ReconciliationResult, error) {
	target, err := MapPayInStatus(status)
	if err != nil {
		return nil, err
	}

	cc, err := s.repos.CashCalls.GetByPayInID(ctx, payInID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cash call of pay-in %s: %w", payInID, err)
	}
	if cc == nil {
		return nil, fmt.Errorf("%w: pay-in %s", ErrCashCallNotFound, payInID)
	}

	result := &ReconciliationResult{CashCallID: cc.ID, PayInID: payInID, From: cc.Status, To: target}
	if cc.Status == target {
		s.logger.Debug("Pay-in status already applied",
			zap.Int64("cashcall_id", cc.ID),
			zap.String("payin_id", payInID),
			zap.String("status", target.String()))
		return result, nil
	}

	if err := s.transition(ctx, cc, target); err != nil {
		return nil, err
	}
	result.Changed = true

	s.logger.Info("Pay-in reconciled",
		zap.Int64("cashcall_id", cc.ID),
		zap.String("payin_id", payInID),
		zap.String("from", result.From.String()),
		zap.String("to", result.To.String()))
	return result, nil
}

func (s *reconciliationService) transition(ctx context.Context, cc *entity.CashCall, target workflow.State) error {
	switch target {
	case workflow.StatePending:
		return s.cashCalls.SetPending(ctx, cc)
	case workflow.StatePaid:
		return s.cashCalls.SetSucceed(ctx, cc)
	case workflow.StateFailed:
		return s.cashCalls.SetFailed(ctx, cc)
	}
	return fmt.Errorf("%w: %s", workflow.ErrInvalidState, target)
}

// Poll reconciles cash calls still waiting for their pay-in
func (s *reconciliationService) Poll(ctx context.Context, limit int) (*PollReport, error) {
	calls, err := s.repos.CashCalls.ListAwaitingPayment(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash calls awaiting payment: %w", err)
	}

	report := &PollReport{}
	for _, cc := range calls {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		payin, err := s.gateway.GetPayIn(ctx, cc.PayInID)
		if err != nil || payin == nil {
			report.Errors++
			s.logger.Warn("Failed to fetch pay-in",
				zap.Int64("cashcall_id", cc.ID),
				zap.String("payin_id", cc.PayInID),
				zap.Error(err))
			continue
		}

		result, err := s.Apply(ctx, cc.PayInID, payin.Status)
		if err != nil {
			report.Errors++
			s.logger.Error("Failed to reconcile pay-in",
				zap.Int64("cashcall_id", cc.ID),
				zap.String("payin_id", cc.PayInID),
				zap.String("status", payin.Status),
				zap.Error(err))
			continue
		}
		if result.Changed {
			report.Changed++
		}
	}
	return report, nil
}
