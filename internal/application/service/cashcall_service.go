package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/dispatcher"
	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/event"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// CreateStatus reports what CashCallService.Create did
type CreateStatus string

const (
	CreateStatusCreated     CreateStatus = "created"
	CreateStatusUpdated     CreateStatus = "updated"
	CreateStatusAlreadySent CreateStatus = "already_sent"
)

// CreateRequest opens a cash call on a bill. Non-nil fields are copied onto the bill first.
type CreateRequest struct {
	BillID       int64
	CCEmails     []string
	InvestorName *string
}

// CreateResult is the outcome of CashCallService.Create
type CreateResult struct {
	Status   CreateStatus
	Bill     *entity.Bill
	CashCall *entity.CashCall
}

// SendStatus reports how far CashCallService.Send went
type SendStatus string

const (
	SendStatusSent        SendStatus = "sent"
	SendStatusAlreadySent SendStatus = "already_sent"
	SendStatusRejected    SendStatus = "rejected"
	SendStatusFailed      SendStatus = "failed"
	// SendStatusEmailFailed means the cash call went out but the email did not
	SendStatusEmailFailed SendStatus = "email_failed"
)

// SendResult is the outcome of CashCallService.Send
type SendResult struct {
	Status   SendStatus       `json:"status"`
	Message  string           `json:"message"`
	CashCall *entity.CashCall `json:"cashcall"`
}

// CashCallService drives cash calls through submission, reconciliation and notification
type CashCallService interface {
	Get(ctx context.Context, id int64) (*entity.CashCall, error)
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// Save resyncs amounts from the bill unless they are locked, then persists
	Save(ctx context.Context, cc *entity.CashCall) error

	CanPublishPayIn(ctx context.Context, cc *entity.CashCall) (Validation, error)

	// PublishPayIn submits the cash call to the payment processor. A declined or
	// failed submission is not an error: the cash call ends FAILED.
	PublishPayIn(ctx context.Context, cc *entity.CashCall) (workflow.State, error)

	SetPending(ctx context.Context, cc *entity.CashCall) error
	SetFailed(ctx context.Context, cc *entity.CashCall) error

	// SetSucceed marks the cash call PAID and settles its bill in one transaction
	SetSucceed(ctx context.Context, cc *entity.CashCall) error

	GenerateBillDocument(ctx context.Context, cc *entity.CashCall)
	SendEmail(ctx context.Context, cc *entity.CashCall) error
	Send(ctx context.Context, id int64, sendEmail bool) (*SendResult, error)
}

type cashCallService struct {
	repos     Repositories
	txManager port.TransactionManager
	bills     BillService
	gateway   port.PaymentGateway
	notifier  port.Notifier
	storage   port.FileStorage
	publisher dispatcher.Publisher
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

// NewCashCallService creates a new CashCallService
func NewCashCallService(
	repos Repositories,
	txManager port.TransactionManager,
	bills BillService,
	gateway port.PaymentGateway,
	notifier port.Notifier,
	storage port.FileStorage,
	publisher dispatcher.Publisher,
	settings Settings,
	logger *zap.Logger,
) CashCallService {
	return &cashCallService{
		repos:     repos,
		txManager: txManager,
		bills:     bills,
		gateway:   gateway,
		notifier:  notifier,
		storage:   storage,
		publisher: publisher,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// Get retrieves a cash call by ID
func (s *cashCallService) Get(ctx context.Context, id int64) (*entity.CashCall, error) {
	cc, err := s.repos.CashCalls.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get cash call %d: %w", id, err)
	}
	if cc == nil {
		return nil, fmt.Errorf("%w: %d", ErrCashCallNotFound, id)
	}
	return cc, nil
}

// Create updates the bill's addressing fields and opens its first cash call.
// A bill that already went out is left untouched.
func (s *cashCallService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	bill, err := s.bills.Get(ctx, req.BillID)
	if err != nil {
		return nil, err
	}
	if bill.IsCashCallSent() {
		return &CreateResult{Status: CreateStatusAlreadySent, Bill: bill}, nil
	}

	if req.CCEmails != nil {
		bill.CCEmails = req.CCEmails
	}
	if req.InvestorName != nil {
		bill.InvestorName = *req.InvestorName
	}

	result := &CreateResult{Bill: bill}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.bills.Save(txCtx, bill); err != nil {
			return err
		}

		calls, err := s.repos.CashCalls.ListByBillID(txCtx, bill.ID)
		if err != nil {
			return fmt.Errorf("failed to list cash calls of bill %d: %w", bill.ID, err)
		}
		if len(calls) > 0 {
			result.Status = CreateStatusUpdated
			result.CashCall = calls[len(calls)-1]
			return nil
		}

		cc := entity.NewCashCall(bill)
		if err := s.Save(txCtx, cc); err != nil {
			return err
		}
		result.Status = CreateStatusCreated
		result.CashCall = cc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Cash call requested",
		zap.Int64("bill_id", bill.ID),
		zap.String("status", string(result.Status)))
	return result, nil
}

// Save persists the cash call after syncing its amounts from the bill
func (s *cashCallService) Save(ctx context.Context, cc *entity.CashCall) error {
	bill, err := s.billOf(ctx, cc)
	if err != nil {
		return err
	}
	cc.SyncAmounts(bill)

	if cc.ID == 0 {
		if err := s.repos.CashCalls.Create(ctx, cc); err != nil {
			return fmt.Errorf("failed to create cash call: %w", err)
		}
		return nil
	}
	if err := s.repos.CashCalls.Update(ctx, cc); err != nil {
		return fmt.Errorf("failed to update cash call %d: %w", cc.ID, err)
	}
	return nil
}

// PublishPayIn submits the cash call and stores the processor's answer
func (s *cashCallService) PublishPayIn(ctx context.Context, cc *entity.CashCall) (workflow.State, error) {
	target, validation, err := s.resolvePayIn(ctx, cc)
	if err != nil {
		return cc.Status, err
	}

	machine := workflow.NewCashCallMachine(cc.Status, func(context.Context) bool {
		return validation.OK
	})

	var (
		payin     *port.PayInResult
		submitErr error
	)
	err = machine.FireWith(ctx, workflow.TriggerPublishPayIn, func(ctx context.Context) (workflow.State, error) {
		req, err := newPayInRequest(target, cc)
		if err != nil {
			submitErr = err
			return "", err
		}
		result, err := s.gateway.SubmitPayIn(ctx, req)
		if err != nil {
			submitErr = err
			return "", err
		}
		if result == nil || result.ID == "" {
			return workflow.StateFailed, nil
		}
		payin = result
		return workflow.StatePending, nil
	})
	if err != nil && submitErr == nil {
		if errors.Is(err, workflow.ErrGuardFailed) {
			return cc.Status, fmt.Errorf("cash call %d: %w: %s", cc.ID, err, validation.Reason)
		}
		return cc.Status, fmt.Errorf("cash call %d: %w", cc.ID, err)
	}
	if submitErr != nil {
		s.logger.Warn("Pay-in submission failed",
			zap.Int64("cashcall_id", cc.ID),
			zap.Error(submitErr))
	}

	state := machine.State()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		cc.Status = state
		if payin != nil {
			cc.PayInID = payin.ID
			cc.Response = payInResponse(payin)
		}

		if state == workflow.StatePending && target.bill.Type == entity.BillTypeMembershipFees {
			if err := s.repos.Investors.UpdateStatus(txCtx, target.investor.ID, entity.InvestorStatusOnTrial); err != nil {
				return fmt.Errorf("failed to mark investor %d on trial: %w", target.investor.ID, err)
			}
		}

		return s.Save(txCtx, cc)
	})
	if err != nil {
		return state, err
	}

	evtType := event.TypeCashCallPublished
	if state == workflow.StateFailed {
		evtType = event.TypeCashCallFailed
		s.logger.Warn("Cash call failed on submission", zap.Int64("cashcall_id", cc.ID))
	} else {
		s.logger.Info("Cash call submitted",
			zap.Int64("cashcall_id", cc.ID),
			zap.String("payin_id", cc.PayInID))
	}
	s.publish(ctx, event.NewEvent(evtType, target.bill.ID, cc.ID, map[string]interface{}{
		"payin_id": cc.PayInID,
	}))
	return state, nil
}

func payInResponse(payin *port.PayInResult) json.RawMessage {
	if len(payin.Raw) > 0 {
		return payin.Raw
	}
	raw, err := json.Marshal(map[string]string{
		"id":             payin.ID,
		"wire_reference": payin.WireReference,
		"status":         payin.Status,
	})
	if err != nil {
		return nil
	}
	return raw
}

// SetPending moves the cash call and its bill to PENDING together
func (s *cashCallService) SetPending(ctx context.Context, cc *entity.CashCall) error {
	return s.transitionWithBill(ctx, cc, workflow.TriggerSetPending, s.bills.SetPending)
}

// SetFailed moves the cash call and its bill to FAILED together
func (s *cashCallService) SetFailed(ctx context.Context, cc *entity.CashCall) error {
	return s.transitionWithBill(ctx, cc, workflow.TriggerSetFailed, s.bills.SetFailed)
}

func (s *cashCallService) transitionWithBill(
	ctx context.Context,
	cc *entity.CashCall,
	trigger workflow.Trigger,
	billTransition func(context.Context, *entity.Bill) error,
) error {
	bill, err := s.requireBill(ctx, cc)
	if err != nil {
		return err
	}

	previous := cc.Status
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		machine := workflow.NewCashCallMachine(cc.Status, nil)
		err := machine.FireWith(txCtx, trigger, func(ctx context.Context) (workflow.State, error) {
			if err := billTransition(ctx, bill); err != nil {
				return "", err
			}
			return "", s.bills.Save(ctx, bill)
		})
		if err != nil {
			return fmt.Errorf("cash call %d: %w", cc.ID, err)
		}

		cc.Status = machine.State()
		return s.Save(txCtx, cc)
	})
	if err != nil {
		cc.Status = previous
		return err
	}

	s.logger.Info("Cash call status changed",
		zap.Int64("cashcall_id", cc.ID),
		zap.Int64("bill_id", bill.ID),
		zap.String("from", previous.String()),
		zap.String("to", cc.Status.String()))
	if cc.Status == workflow.StateFailed && previous != workflow.StateFailed {
		s.publish(ctx, event.NewEvent(event.TypeCashCallFailed, bill.ID, cc.ID, nil))
	}
	return nil
}

// SetSucceed marks the cash call PAID and records the payment on its bill atomically
func (s *cashCallService) SetSucceed(ctx context.Context, cc *entity.CashCall) error {
	bill, err := s.requireBill(ctx, cc)
	if err != nil {
		return err
	}

	previous := cc.Status
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		machine := workflow.NewCashCallMachine(cc.Status, nil)
		err := machine.FireWith(txCtx, workflow.TriggerSetSucceed, func(ctx context.Context) (workflow.State, error) {
			if err := s.bills.AddCashCallPayment(ctx, bill, cc); err != nil {
				return "", err
			}
			return "", s.bills.Save(ctx, bill)
		})
		if err != nil {
			return fmt.Errorf("cash call %d: %w", cc.ID, err)
		}

		cc.Status = machine.State()
		return s.Save(txCtx, cc)
	})
	if err != nil {
		cc.Status = previous
		return err
	}

	s.logger.Info("Cash call paid",
		zap.Int64("cashcall_id", cc.ID),
		zap.Int64("bill_id", bill.ID),
		zap.String("bill_status", bill.Status.String()))

	s.publish(ctx, event.NewEvent(event.TypeCashCallPaid, bill.ID, cc.ID, nil))
	billEvent := event.TypeBillPaid
	if bill.Status == workflow.StatePaidIncorrectly {
		billEvent = event.TypeBillPaidIncorrectly
	}
	s.publish(ctx, event.NewEvent(billEvent, bill.ID, cc.ID, map[string]interface{}{
		"amount_due":       bill.AmountDue.StringFixed(2),
		"fees_amount_due":  bill.FeesAmountDue.StringFixed(2),
		"committed_amount": cc.CommittedAmount.StringFixed(2),
		"fees_amount":      cc.FeesAmount.StringFixed(2),
	}))
	return nil
}

// GenerateBillDocument renders the bill's invoice once the cash call is PENDING.
// Failures are logged and never undo the cash call's state.
func (s *cashCallService) GenerateBillDocument(ctx context.Context, cc *entity.CashCall) {
	if cc.Status != workflow.StatePending {
		return
	}

	bill, err := s.billOf(ctx, cc)
	if err != nil || bill == nil {
		s.logger.Error("Cannot load bill for invoice generation",
			zap.Int64("cashcall_id", cc.ID),
			zap.Error(err))
		return
	}
	if bill.File != "" {
		return
	}

	if err := s.bills.GenerateInvoice(ctx, bill, cc); err != nil {
		s.logger.Error("Cannot generate bill document",
			zap.Int64("bill_id", bill.ID),
			zap.Int64("cashcall_id", cc.ID),
			zap.Error(err))
		s.publish(ctx, event.NewEvent(event.TypeInvoiceGenerationErr, bill.ID, cc.ID, map[string]interface{}{
			"error": err.Error(),
		}))
		return
	}
	s.publish(ctx, event.NewEvent(event.TypeInvoiceGenerated, bill.ID, cc.ID, map[string]interface{}{
		"file": bill.File,
	}))
}

// Send submits the cash call when needed, generates the invoice and emails the investor
func (s *cashCallService) Send(ctx context.Context, id int64, sendEmail bool) (*SendResult, error) {
	cc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cc.PayInID == "" {
		validation, err := s.CanPublishPayIn(ctx, cc)
		if err != nil {
			return nil, err
		}
		if !validation.OK {
			return &SendResult{Status: SendStatusRejected, Message: validation.Reason, CashCall: cc}, nil
		}
		if _, err := s.PublishPayIn(ctx, cc); err != nil {
			return nil, err
		}
	}

	s.GenerateBillDocument(ctx, cc)

	if cc.Status == workflow.StateFailed {
		return &SendResult{Status: SendStatusFailed, Message: "Mangopay response error", CashCall: cc}, nil
	}
	if sendEmail && cc.Status == workflow.StatePending {
		if err := s.SendEmail(ctx, cc); err != nil {
			s.logger.Error("Cannot email cash call",
				zap.Int64("cashcall_id", cc.ID),
				zap.Error(err))
			return &SendResult{Status: SendStatusEmailFailed, Message: "Cash call sent but email delivery failed", CashCall: cc}, nil
		}
		return &SendResult{Status: SendStatusSent, Message: "Cash call successfully sent to all recipients", CashCall: cc}, nil
	}
	return &SendResult{Status: SendStatusAlreadySent, Message: "Cashcall Already Sent", CashCall: cc}, nil
}

func (s *cashCallService) publish(ctx context.Context, evt *event.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.DispatchAsync(context.WithoutCancel(ctx), evt)
}

// billOf returns the cash call's bill, nil when it has none
func (s *cashCallService) billOf(ctx context.Context, cc *entity.CashCall) (*entity.Bill, error) {
	if cc.BillID == nil {
		return nil, nil
	}
	bill, err := s.repos.Bills.GetByID(ctx, *cc.BillID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bill %d: %w", *cc.BillID, err)
	}
	return bill, nil
}

func (s *cashCallService) requireBill(ctx context.Context, cc *entity.CashCall) (*entity.Bill, error) {
	bill, err := s.billOf(ctx, cc)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, fmt.Errorf("%w: cash call %d has no bill", ErrBillNotFound, cc.ID)
	}
	return bill, nil
}

// attachmentName is the file name shown to the recipient
func attachmentName(file string) string {
	return path.Base(file)
}
