package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/fees"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// Repositories groups the persistence ports the billing services share
type Repositories struct {
	Bills       port.BillRepository
	CashCalls   port.CashCallRepository
	Investments port.InvestmentRepository
	Investors   port.InvestorRepository
}

// BillSummary is a bill with its derived payment views
type BillSummary struct {
	Bill           *entity.Bill       `json:"bill"`
	CashCalls      []*entity.CashCall `json:"cashcalls"`
	AmountPaid     decimal.Decimal    `json:"amount_paid"`
	FeesAmountPaid decimal.Decimal    `json:"fees_amount_paid"`
	IsCashCallSent bool               `json:"is_cash_call_sent"`
	HasCashCall    bool               `json:"has_cash_call"`
}

// QuoteRequest asks for the fee a bill would carry
type QuoteRequest struct {
	Type           entity.BillType
	InvestmentID   int64
	InvestorID     int64
	Amount         decimal.Decimal
	FeesPercentage *decimal.Decimal
	Year           int
}

// BillService owns fee recalculation, invoicing and the bill state machine
type BillService interface {
	Get(ctx context.Context, id int64) (*entity.Bill, error)
	Summary(ctx context.Context, id int64) (*BillSummary, error)
	List(ctx context.Context, filter port.BillFilter) ([]*BillSummary, error)

	// Export renders the bills matching filter as a workbook
	Export(ctx context.Context, filter port.BillFilter) (*port.RenderedDocument, error)

	// Save persists a bill, recomputing fees and resyncing draft cash calls.
	// Settled bills are rejected with entity.ErrForbiddenUpdate.
	Save(ctx context.Context, bill *entity.Bill) error

	// TouchLastSent records a send time. It is the only write allowed on settled bills.
	TouchLastSent(ctx context.Context, bill *entity.Bill, t time.Time) error

	CalculateFees(ctx context.Context, bill *entity.Bill) (fees.Result, error)
	Quote(ctx context.Context, req QuoteRequest) (fees.Result, error)

	// SetPending, SetFailed and AddCashCallPayment move the in-memory bill and
	// record their side effects; callers persist the bill with Save.
	SetPending(ctx context.Context, bill *entity.Bill) error
	SetFailed(ctx context.Context, bill *entity.Bill) error
	AddCashCallPayment(ctx context.Context, bill *entity.Bill, cc *entity.CashCall) error

	AssignInvoiceNumber(ctx context.Context, bill *entity.Bill) error
	GenerateInvoice(ctx context.Context, bill *entity.Bill, cc *entity.CashCall) error

	Investment(ctx context.Context, bill *entity.Bill) (*entity.Investment, error)
	Investor(ctx context.Context, bill *entity.Bill) (*entity.Investor, error)
}

type billService struct {
	repos      Repositories
	txManager  port.TransactionManager
	calculator *fees.Calculator
	renderer   port.DocumentRenderer
	storage    port.FileStorage
	settings   Settings
	logger     *zap.Logger
	now        func() time.Time
}

// NewBillService creates a new BillService
func NewBillService(
	repos Repositories,
	txManager port.TransactionManager,
	calculator *fees.Calculator,
	renderer port.DocumentRenderer,
	storage port.FileStorage,
	settings Settings,
	logger *zap.Logger,
) BillService {
	return &billService{
		repos:      repos,
		txManager:  txManager,
		calculator: calculator,
		renderer:   renderer,
		storage:    storage,
		settings:   settings,
		logger:     logger,
		now:        time.Now,
	}
}

// Get retrieves a bill by ID
func (s *billService) Get(ctx context.Context, id int64) (*entity.Bill, error) {
	bill, err := s.repos.Bills.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get bill %d: %w", id, err)
	}
	if bill == nil {
		return nil, fmt.Errorf("%w: %d", ErrBillNotFound, id)
	}
	return bill, nil
}

// Summary returns the bill with paid amounts summed over its PAID cash calls
func (s *billService) Summary(ctx context.Context, id int64) (*BillSummary, error) {
	bill, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, bill)
}

func (s *billService) summarize(ctx context.Context, bill *entity.Bill) (*BillSummary, error) {
	calls, err := s.repos.CashCalls.ListByBillID(ctx, bill.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash calls of bill %d: %w", bill.ID, err)
	}
	return &BillSummary{
		Bill:           bill,
		CashCalls:      calls,
		AmountPaid:     bill.AmountPaid(calls),
		FeesAmountPaid: bill.FeesAmountPaid(calls),
		IsCashCallSent: bill.IsCashCallSent(),
		HasCashCall:    bill.HasCashCall(calls),
	}, nil
}

// List returns the summaries of the bills matching filter
func (s *billService) List(ctx context.Context, filter port.BillFilter) ([]*BillSummary, error) {
	bills, err := s.repos.Bills.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}

	summaries := make([]*BillSummary, 0, len(bills))
	for _, bill := range bills {
		summary, err := s.summarize(ctx, bill)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Export renders the listed bills with their paid amounts
func (s *billService) Export(ctx context.Context, filter port.BillFilter) (*port.RenderedDocument, error) {
	summaries, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := make([]port.BillExportRow, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, port.BillExportRow{
			Bill:           summary.Bill,
			AmountPaid:     summary.AmountPaid,
			FeesAmountPaid: summary.FeesAmountPaid,
			CashCalls:      len(summary.CashCalls),
		})
	}

	doc, err := s.renderer.RenderBillExport(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to render bill export: %w", err)
	}
	s.logger.Info("Bills exported", zap.Int("rows", len(rows)))
	return doc, nil
}

// Save persists the bill
func (s *billService) Save(ctx context.Context, bill *entity.Bill) error {
	if !bill.IsNew() {
		stored, err := s.repos.Bills.GetStatus(ctx, bill.ID)
		if err != nil {
			return fmt.Errorf("failed to load bill status: %w", err)
		}
		if stored == "" {
			return fmt.Errorf("%w: %d", ErrBillNotFound, bill.ID)
		}
		if entity.IsLocked(stored) {
			return fmt.Errorf("%w: cannot update %s bill %d", entity.ErrForbiddenUpdate, stored, bill.ID)
		}
	}

	investment, err := s.Investment(ctx, bill)
	if err != nil {
		return err
	}
	if err := s.updateFeesAmount(ctx, bill, investment); err != nil {
		return err
	}
	if err := bill.Validate(); err != nil {
		return err
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.updateInvestorTrial(txCtx, bill); err != nil {
			return err
		}

		if bill.IsNew() {
			if err := s.assignDeprecatedNumber(txCtx, bill); err != nil {
				return err
			}
			if err := s.repos.Bills.Create(txCtx, bill); err != nil {
				return fmt.Errorf("failed to create bill: %w", err)
			}
			s.logger.Info("Bill created",
				zap.Int64("bill_id", bill.ID),
				zap.String("type", string(bill.Type)),
				zap.Int("year", bill.Year))
			return nil
		}

		if bill.DeprecatedNumber == "" {
			if err := s.assignDeprecatedNumber(txCtx, bill); err != nil {
				return err
			}
		}
		if err := s.repos.Bills.Update(txCtx, bill); err != nil {
			return fmt.Errorf("failed to update bill %d: %w", bill.ID, err)
		}

		_, err := s.syncCashCalls(txCtx, bill)
		return err
	})
}

// updateFeesAmount recomputes fees_amount_due. Membership fees only depend on
// the investor. Management fees are set by their creation path and only checked
// for a negative amount.
func (s *billService) updateFeesAmount(ctx context.Context, bill *entity.Bill, investment *entity.Investment) error {
	if bill.Type == entity.BillTypeMembershipFees {
		investor, err := s.Investor(ctx, bill)
		if err != nil || investor == nil {
			return err
		}
	} else if investment == nil || investment.FeesPercentage.IsZero() {
		return nil
	}

	result, err := s.calculateDue(ctx, bill, investment)
	if err != nil {
		return fmt.Errorf("failed to calculate fees for bill %d: %w", bill.ID, err)
	}

	if bill.Type != entity.BillTypeManagementFees {
		bill.FeesAmountDue = result.Amount
	}
	if result.Amount.IsNegative() {
		bill.Type = entity.BillTypeCreditNotes
	}
	return nil
}

// syncCashCalls pushes the bill amounts into every cash call that was not submitted yet
func (s *billService) syncCashCalls(ctx context.Context, bill *entity.Bill) (int, error) {
	calls, err := s.repos.CashCalls.ListByBillID(ctx, bill.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list cash calls of bill %d: %w", bill.ID, err)
	}

	synced := 0
	for _, cc := range calls {
		if !cc.SyncAmounts(bill) {
			continue
		}
		if err := s.repos.CashCalls.Update(ctx, cc); err != nil {
			return synced, fmt.Errorf("failed to sync cash call %d: %w", cc.ID, err)
		}
		synced++
	}

	if synced > 0 {
		s.logger.Info("Cash call amounts synced from bill",
			zap.Int64("bill_id", bill.ID),
			zap.Int("cashcalls", synced),
			zap.String("amount_due", bill.AmountDue.StringFixed(2)),
			zap.String("fees_amount_due", bill.FeesAmountDue.StringFixed(2)))
	}
	return synced, nil
}

func (s *billService) assignDeprecatedNumber(ctx context.Context, bill *entity.Bill) error {
	count, err := s.repos.Bills.CountByType(ctx, bill.Type)
	if err != nil {
		return fmt.Errorf("failed to count %s bills: %w", bill.Type, err)
	}
	bill.DeprecatedNumber = entity.FormatInvoiceNumber(s.now().Year(), bill.Type, count+1)
	return nil
}

// updateInvestorTrial flags a trial as awaiting payment once its membership bill for the current year exists
func (s *billService) updateInvestorTrial(ctx context.Context, bill *entity.Bill) error {
	if bill.Type != entity.BillTypeMembershipFees || bill.Year != s.now().Year() {
		return nil
	}

	investor, err := s.Investor(ctx, bill)
	if err != nil || investor == nil || !investor.HasTrialPeriod() {
		return err
	}
	if investor.TrialPeriodStatus == entity.TrialPeriodPendingPayment {
		return nil
	}
	if err := s.repos.Investors.UpdateTrialPeriodStatus(ctx, investor.ID, entity.TrialPeriodPendingPayment); err != nil {
		return fmt.Errorf("failed to update trial period of investor %d: %w", investor.ID, err)
	}
	return nil
}

// TouchLastSent records the last send time without any other change
func (s *billService) TouchLastSent(ctx context.Context, bill *entity.Bill, t time.Time) error {
	if err := s.repos.Bills.UpdateLastSent(ctx, bill.ID, t); err != nil {
		return fmt.Errorf("failed to update last_sent of bill %d: %w", bill.ID, err)
	}
	bill.LastSent = &t
	return nil
}

// CalculateFees returns the fee of the bill's type for its current amount and year
func (s *billService) CalculateFees(ctx context.Context, bill *entity.Bill) (fees.Result, error) {
	investment, err := s.Investment(ctx, bill)
	if err != nil {
		return fees.Result{}, err
	}
	return s.calculateDue(ctx, bill, investment)
}

// calculateDue prices the bill's own amount. Nothing due means no fee, except
// for membership bills whose fee does not depend on the amount.
func (s *billService) calculateDue(ctx context.Context, bill *entity.Bill, investment *entity.Investment) (fees.Result, error) {
	if bill.AmountDue.IsZero() && bill.Type != entity.BillTypeMembershipFees {
		return fees.Result{Amount: decimal.Zero, Rate: decimal.Zero}, nil
	}
	return s.calculate(ctx, bill, investment)
}

func (s *billService) calculate(ctx context.Context, bill *entity.Bill, investment *entity.Investment) (fees.Result, error) {
	input := fees.Input{
		Investment: feeInvestment(investment),
		Params:     fees.Params{Year: bill.Year, InvestedAmount: bill.AmountDue},
	}
	if bill.Type == entity.BillTypeMembershipFees {
		investor, err := s.Investor(ctx, bill)
		if err != nil {
			return fees.Result{}, err
		}
		if investor == nil {
			return fees.Result{}, ErrInvestorNotFound
		}
		input.Membership = fees.MembershipFlags{
			Community:          investor.CommunityFee,
			AdvancedInvestment: investor.AdvancedInvestmentFee,
		}
	}
	return s.calculator.Calculate(bill.Type, input)
}

// Quote prices a bill that does not exist yet. FeesPercentage, when set,
// replaces the investment's own percentage.
func (s *billService) Quote(ctx context.Context, req QuoteRequest) (fees.Result, error) {
	year := req.Year
	if year == 0 {
		year = s.now().Year()
	}
	bill := entity.NewBill(req.Type, year, req.Amount)
	if req.InvestmentID != 0 {
		id := req.InvestmentID
		bill.InvestmentID = &id
	}
	if req.InvestorID != 0 {
		id := req.InvestorID
		bill.InvestorID = &id
	}

	investment, err := s.Investment(ctx, bill)
	if err != nil {
		return fees.Result{}, err
	}
	if investment != nil {
		quoted := *investment
		if req.FeesPercentage != nil {
			quoted.FeesPercentage = *req.FeesPercentage
		}
		if _, ok := quoted.InvestDate(); !ok {
			now := s.now()
			quoted.CreatedAt = &now
		}
		investment = &quoted
	}
	return s.calculate(ctx, bill, investment)
}

// SetPending moves the bill to PENDING and marks its investment as cash called
func (s *billService) SetPending(ctx context.Context, bill *entity.Bill) error {
	return s.fire(ctx, bill, workflow.TriggerSetPending, func(ctx context.Context) (workflow.State, error) {
		return "", s.markInvestment(ctx, bill, entity.InvestmentStatusCashCalled)
	})
}

// SetFailed moves the bill to FAILED. Management fees leave the investment untouched.
func (s *billService) SetFailed(ctx context.Context, bill *entity.Bill) error {
	return s.fire(ctx, bill, workflow.TriggerSetFailed, func(ctx context.Context) (workflow.State, error) {
		if bill.Type == entity.BillTypeManagementFees {
			return "", nil
		}
		return "", s.markInvestment(ctx, bill, entity.InvestmentStatusPaymentFailed)
	})
}

// AddCashCallPayment settles the bill with a successful cash call. The bill is
// PAID when the collected amounts match exactly and PAID_INCORRECTLY otherwise.
func (s *billService) AddCashCallPayment(ctx context.Context, bill *entity.Bill, cc *entity.CashCall) error {
	if !cc.BelongsTo(bill) {
		panic(fmt.Sprintf("bill %d cannot be paid by cash call %d of another bill", bill.ID, cc.ID))
	}

	return s.fire(ctx, bill, workflow.TriggerAddCashCallPayment, func(ctx context.Context) (workflow.State, error) {
		if err := s.markInvestment(ctx, bill, entity.InvestmentStatusTransferred); err != nil {
			return "", err
		}
		if bill.MatchesPayment(cc) {
			return workflow.StatePaid, nil
		}
		s.logger.Warn("Bill paid with mismatching amounts",
			zap.Int64("bill_id", bill.ID),
			zap.Int64("cashcall_id", cc.ID),
			zap.String("amount_due", bill.AmountDue.StringFixed(2)),
			zap.String("committed_amount", cc.CommittedAmount.StringFixed(2)),
			zap.String("fees_amount_due", bill.FeesAmountDue.StringFixed(2)),
			zap.String("fees_amount", cc.FeesAmount.StringFixed(2)))
		return workflow.StatePaidIncorrectly, nil
	})
}

func (s *billService) fire(ctx context.Context, bill *entity.Bill, trigger workflow.Trigger, effect workflow.Effect) error {
	if !bill.Status.IsValid() {
		return fmt.Errorf("%w: bill %d has status %q", workflow.ErrInvalidState, bill.ID, bill.Status)
	}

	machine := workflow.NewBillMachine(bill.Status)
	if err := machine.FireWith(ctx, trigger, effect); err != nil {
		return fmt.Errorf("bill %d: %w", bill.ID, err)
	}

	if machine.State() != bill.Status {
		s.logger.Info("Bill status changed",
			zap.Int64("bill_id", bill.ID),
			zap.String("from", bill.Status.String()),
			zap.String("to", machine.State().String()),
			zap.String("trigger", trigger.String()))
	}
	bill.Status = machine.State()
	return nil
}

func (s *billService) markInvestment(ctx context.Context, bill *entity.Bill, status string) error {
	if bill.InvestmentID == nil {
		return nil
	}
	if err := s.repos.Investments.UpdateStatus(ctx, *bill.InvestmentID, status); err != nil {
		return fmt.Errorf("failed to mark investment %d %s: %w", *bill.InvestmentID, status, err)
	}
	return nil
}

// AssignInvoiceNumber gives the bill its invoice number once
func (s *billService) AssignInvoiceNumber(ctx context.Context, bill *entity.Bill) error {
	if bill.InvoiceNumber != "" {
		return nil
	}

	year := bill.Year
	if year == 0 {
		year = s.now().Year()
	}
	seq, err := s.repos.Bills.CountNumbered(ctx, bill.Type, year)
	if err != nil {
		return fmt.Errorf("failed to count numbered %s bills: %w", bill.Type, err)
	}

	bill.InvoiceNumber = entity.FormatInvoiceNumber(year, bill.Type, seq)
	if err := s.Save(ctx, bill); err != nil {
		bill.InvoiceNumber = ""
		return err
	}

	s.logger.Info("Invoice number assigned",
		zap.Int64("bill_id", bill.ID),
		zap.String("invoice_number", bill.InvoiceNumber))
	return nil
}

// GenerateInvoice numbers, renders and stores the invoice of a bill whose cash call went out
func (s *billService) GenerateInvoice(ctx context.Context, bill *entity.Bill, cc *entity.CashCall) error {
	investor, err := s.Investor(ctx, bill)
	if err != nil {
		return err
	}
	if investor == nil {
		return fmt.Errorf("%w: bill %d", ErrInvestorNotFound, bill.ID)
	}
	investment, err := s.Investment(ctx, bill)
	if err != nil {
		return err
	}

	language := investor.OwnerLanguage()
	if bill.Type == entity.BillTypeManagementFees || bill.Type == entity.BillTypeRhapsodyFees {
		language = entity.DefaultLanguage
	}

	if err := s.AssignInvoiceNumber(ctx, bill); err != nil {
		return err
	}

	invoice, err := s.invoiceContext(bill, investor, investment, cc, language)
	if err != nil {
		return err
	}

	doc, err := s.renderer.RenderInvoice(ctx, invoice)
	if err != nil {
		return fmt.Errorf("failed to render invoice of bill %d: %w", bill.ID, err)
	}

	path := fmt.Sprintf("%s/%d/%s", s.settings.DocumentDir, bill.ID, doc.Name)
	if err := s.storage.Save(ctx, path, doc.Content); err != nil {
		return fmt.Errorf("failed to store invoice of bill %d: %w", bill.ID, err)
	}

	bill.File = path
	bill.TemplateID = s.settings.TemplateID(bill.Type, investor.OwnerLanguage())
	if err := s.SetPending(ctx, bill); err != nil {
		return err
	}
	if err := s.Save(ctx, bill); err != nil {
		return err
	}

	s.logger.Info("Invoice generated",
		zap.Int64("bill_id", bill.ID),
		zap.String("invoice_number", bill.InvoiceNumber),
		zap.String("file", path))
	return nil
}

// Investment returns the bill's investment, nil when the bill has none
func (s *billService) Investment(ctx context.Context, bill *entity.Bill) (*entity.Investment, error) {
	if bill.InvestmentID == nil {
		return nil, nil
	}
	investment, err := s.repos.Investments.GetByID(ctx, *bill.InvestmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get investment %d: %w", *bill.InvestmentID, err)
	}
	if investment == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvestmentNotFound, *bill.InvestmentID)
	}
	return investment, nil
}

// Investor returns the investment's investor, or the bill's own investor when it
// has no investment. It returns nil when neither resolves.
func (s *billService) Investor(ctx context.Context, bill *entity.Bill) (*entity.Investor, error) {
	var investorID int64
	if bill.InvestmentID != nil {
		investment, err := s.Investment(ctx, bill)
		if err != nil {
			return nil, err
		}
		investorID = investment.InvestorID
	} else if bill.InvestorID != nil {
		investorID = *bill.InvestorID
	}
	if investorID == 0 {
		return nil, nil
	}

	investor, err := s.repos.Investors.GetByID(ctx, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get investor %d: %w", investorID, err)
	}
	return investor, nil
}

func feeInvestment(investment *entity.Investment) *fees.Investment {
	if investment == nil {
		return nil
	}
	investDate, _ := investment.InvestDate()
	return &fees.Investment{
		ID:              investment.ID,
		CommittedAmount: investment.CommittedAmount,
		FeesPercentage:  investment.FeesPercentage,
		InvestDate:      investDate,
		Currency:        investment.Fundraising.Currency,
		IsFund:          investment.Fundraising.StartupIsFund,
	}
}
