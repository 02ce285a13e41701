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

// BatchOutcome classifies one investment of a management fee run
type BatchOutcome string

const (
	OutcomeCreated   BatchOutcome = "created"
	OutcomePublished BatchOutcome = "published"
	OutcomeRejected  BatchOutcome = "rejected"
	OutcomeFailed    BatchOutcome = "failed"
	OutcomeSkipped   BatchOutcome = "skipped"
	OutcomeError     BatchOutcome = "error"
)

// MessageRateOverride marks lines priced by a negotiated rate so operators can review them
const MessageRateOverride = "negotiated management rate, review"

// BatchLine is the result for one investment
type BatchLine struct {
	InvestmentID int64           `json:"investment_id"`
	BillID       int64           `json:"bill_id,omitempty"`
	CashCallID   int64           `json:"cashcall_id,omitempty"`
	Fees         decimal.Decimal `json:"fees"`
	Rate         decimal.Decimal `json:"rate"`
	Outcome      BatchOutcome    `json:"outcome"`
	Message      string          `json:"message,omitempty"`
}

// BatchReport summarizes a management fee run
type BatchReport struct {
	Year       int         `json:"year"`
	Publish    bool        `json:"publish"`
	Lines      []BatchLine `json:"lines"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Count returns how many lines ended with outcome
func (r *BatchReport) Count(outcome BatchOutcome) int {
	n := 0
	for _, line := range r.Lines {
		if line.Outcome == outcome {
			n++
		}
	}
	return n
}

// FeeCheck is an externally computed management fee to compare against ours
type FeeCheck struct {
	InvestmentID   int64
	Year           int
	InvestmentYear int
	Expected       decimal.Decimal
}

// FeeMismatch is a FeeCheck that disagrees with the calculator
type FeeMismatch struct {
	FeeCheck
	Calculated decimal.Decimal `json:"calculated"`
	Rate       decimal.Decimal `json:"rate"`
	Message    string          `json:"message,omitempty"`
}

// ManagementFeeService creates the yearly management fee bills
type ManagementFeeService interface {
	// Generate bills every managed investment without a management bill for year.
	// With publish set, each new cash call is also submitted to the payment processor.
	Generate(ctx context.Context, year int, publish bool) (*BatchReport, error)

	// Validate compares expected fees with the calculator and returns the mismatches
	Validate(ctx context.Context, checks []FeeCheck) ([]FeeMismatch, error)
}

type managementFeeService struct {
	repos      Repositories
	txManager  port.TransactionManager
	calculator *fees.Calculator
	bills      BillService
	cashCalls  CashCallService
	alerter    port.OperatorAlerter
	logger     *zap.Logger
	now        func() time.Time
}

// NewManagementFeeService creates a new ManagementFeeService. alerter may be nil.
func NewManagementFeeService(
	repos Repositories,
	txManager port.TransactionManager,
	calculator *fees.Calculator,
	bills BillService,
	cashCalls CashCallService,
	alerter port.OperatorAlerter,
	logger *zap.Logger,
) ManagementFeeService {
	return &managementFeeService{
		repos:      repos,
		txManager:  txManager,
		calculator: calculator,
		bills:      bills,
		cashCalls:  cashCalls,
		alerter:    alerter,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate runs the yearly management fee batch
func (s *managementFeeService) Generate(ctx context.Context, year int, publish bool) (*BatchReport, error) {
	if year < entity.FirstBillYear || year > entity.LastBillYear {
		return nil, fmt.Errorf("%w: %d", entity.ErrInvalidYear, year)
	}

	investments, err := s.repos.Investments.ListManaged(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list managed investments: %w", err)
	}

	report := &BatchReport{Year: year, Publish: publish, StartedAt: s.now()}
	s.logger.Info("Management fee run started",
		zap.Int("year", year),
		zap.Bool("publish", publish),
		zap.Int("investments", len(investments)))

	for _, investment := range investments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		line := s.billInvestment(ctx, investment, year, publish)
		if line.Outcome == OutcomeError {
			s.logger.Error("Management fee bill failed",
				zap.Int64("investment_id", investment.ID),
				zap.String("error", line.Message))
		}
		report.Lines = append(report.Lines, line)
	}
	report.FinishedAt = s.now()

	s.logger.Info("Management fee run finished",
		zap.Int("year", year),
		zap.Int("created", report.Count(OutcomeCreated)),
		zap.Int("published", report.Count(OutcomePublished)),
		zap.Int("rejected", report.Count(OutcomeRejected)),
		zap.Int("failed", report.Count(OutcomeFailed)),
		zap.Int("skipped", report.Count(OutcomeSkipped)),
		zap.Int("errors", report.Count(OutcomeError)))

	s.alert(ctx, report)
	return report, nil
}

func (s *managementFeeService) billInvestment(ctx context.Context, investment *entity.Investment, year int, publish bool) BatchLine {
	line := BatchLine{InvestmentID: investment.ID}

	exists, err := s.repos.Bills.ExistsForInvestment(ctx, investment.ID, entity.BillTypeManagementFees, year)
	if err != nil {
		return errorLine(line, err)
	}
	if exists {
		line.Outcome = OutcomeSkipped
		line.Message = "already billed"
		return line
	}
	if _, ok := investment.InvestDate(); !ok {
		line.Outcome = OutcomeSkipped
		line.Message = ReasonNoInvestDate
		return line
	}

	result, err := s.calculator.Calculate(entity.BillTypeManagementFees, fees.Input{
		Investment: feeInvestment(investment),
		Params:     fees.Params{Year: year},
	})
	if err != nil {
		return errorLine(line, err)
	}
	line.Fees = result.Amount
	line.Rate = result.Rate
	if result.Amount.IsZero() {
		line.Outcome = OutcomeSkipped
		line.Message = "no fee due"
		return line
	}

	bill := entity.NewBill(entity.BillTypeManagementFees, year, investment.CommittedAmount)
	bill.FeesAmountDue = result.Amount
	investmentID, investorID := investment.ID, investment.InvestorID
	bill.InvestmentID = &investmentID
	bill.InvestorID = &investorID
	if investor, err := s.repos.Investors.GetByID(ctx, investorID); err == nil && investor != nil {
		bill.InvestorName = investor.Name
	}

	// bill and cash call are stored together
	var cc *entity.CashCall
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.bills.Save(txCtx, bill); err != nil {
			return err
		}
		created, err := s.cashCalls.Create(txCtx, CreateRequest{BillID: bill.ID})
		if err != nil {
			return err
		}
		cc = created.CashCall
		return nil
	})
	if err != nil {
		return errorLine(line, err)
	}
	line.BillID = bill.ID
	line.CashCallID = cc.ID
	line.Outcome = OutcomeCreated
	if fees.HasManagementOverride(investment.ID) {
		line.Message = MessageRateOverride
	}
	if !publish {
		return line
	}

	validation, err := s.cashCalls.CanPublishPayIn(ctx, cc)
	if err != nil {
		return errorLine(line, err)
	}
	if !validation.OK {
		line.Outcome = OutcomeRejected
		line.Message = validation.Reason
		return line
	}

	state, err := s.cashCalls.PublishPayIn(ctx, cc)
	if err != nil {
		return errorLine(line, err)
	}
	if state == workflow.StateFailed {
		line.Outcome = OutcomeFailed
		line.Message = "payment processor declined the pay-in"
		return line
	}
	s.cashCalls.GenerateBillDocument(ctx, cc)
	line.Outcome = OutcomePublished
	return line
}

func errorLine(line BatchLine, err error) BatchLine {
	line.Outcome = OutcomeError
	line.Message = err.Error()
	return line
}

func (s *managementFeeService) alert(ctx context.Context, report *BatchReport) {
	if s.alerter == nil {
		return
	}

	var lines []string
	for _, line := range report.Lines {
		switch line.Outcome {
		case OutcomeRejected, OutcomeFailed, OutcomeError:
			lines = append(lines, fmt.Sprintf("investment %d (%s): %s", line.InvestmentID, line.Outcome, line.Message))
		}
	}
	if len(lines) == 0 {
		return
	}

	title := fmt.Sprintf("Management fees %d: %d investments need review", report.Year, len(lines))
	if err := s.alerter.Alert(ctx, title, lines); err != nil {
		s.logger.Warn("Failed to alert operators", zap.Error(err))
	}
}

// Validate recomputes each expected fee and reports differences at cent precision
func (s *managementFeeService) Validate(ctx context.Context, checks []FeeCheck) ([]FeeMismatch, error) {
	var mismatches []FeeMismatch
	for _, check := range checks {
		investment, err := s.repos.Investments.GetByID(ctx, check.InvestmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to get investment %d: %w", check.InvestmentID, err)
		}
		if investment == nil {
			mismatches = append(mismatches, FeeMismatch{FeeCheck: check, Message: ErrInvestmentNotFound.Error()})
			continue
		}

		if date, ok := investment.InvestDate(); ok && check.InvestmentYear != 0 && date.Year() != check.InvestmentYear {
			s.logger.Warn("Investment date differs from expected year",
				zap.Int64("investment_id", investment.ID),
				zap.Int("expected_year", check.InvestmentYear),
				zap.Int("stored_year", date.Year()))
		}

		result := fees.Management(*feeInvestment(investment), fees.Params{
			Year:           check.Year,
			InvestmentYear: check.InvestmentYear,
		}, s.calculator.Rates())

		if result.Amount.Round(2).Equal(check.Expected.Round(2)) {
			continue
		}
		mismatches = append(mismatches, FeeMismatch{
			FeeCheck:   check,
			Calculated: result.Amount,
			Rate:       result.Rate,
		})
	}

	s.logger.Info("Management fees validated",
		zap.Int("checked", len(checks)),
		zap.Int("mismatches", len(mismatches)))
	return mismatches, nil
}
