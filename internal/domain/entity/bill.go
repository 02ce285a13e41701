package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// Bill is one billable obligation owed by an investor
type Bill struct {
	ID               int64           `json:"id"`
	InvoiceNumber    string          `json:"invoice_number,omitempty"`
	DeprecatedNumber string          `json:"invoice_number_deprecated,omitempty"`
	Type             BillType        `json:"type"`
	Year             int             `json:"year"`
	AmountDue        decimal.Decimal `json:"amount_due"`
	FeesAmountDue    decimal.Decimal `json:"fees_amount_due"`
	Status           workflow.State  `json:"status"`
	LastSent         *time.Time      `json:"last_sent,omitempty"`
	File             string          `json:"file,omitempty"`
	TemplateID       int64           `json:"template_id,omitempty"`
	InvestorName     string          `json:"investor_name,omitempty"`
	CCEmails         []string        `json:"cc_emails,omitempty"`
	InvestmentID     *int64          `json:"investment_id,omitempty"`
	InvestorID       *int64          `json:"investor_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewBill returns a bill in the CREATED state
func NewBill(billType BillType, year int, amountDue decimal.Decimal) *Bill {
	return &Bill{
		Type:      billType,
		Year:      year,
		AmountDue: amountDue,
		Status:    workflow.StateCreated,
	}
}

// Validate checks the fields every stored bill must carry
func (b *Bill) Validate() error {
	if !b.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidBillType, b.Type)
	}
	if b.Year < FirstBillYear || b.Year > LastBillYear {
		return fmt.Errorf("%w: %d not in %d..%d", ErrInvalidYear, b.Year, FirstBillYear, LastBillYear)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, b.Status)
	}
	return nil
}

// IsNew reports whether the bill was never stored
func (b *Bill) IsNew() bool {
	return b.ID == 0
}

// IsLocked reports whether status only allows last_sent updates
func IsLocked(status workflow.State) bool {
	return lockedBillStates[status]
}

// IsCashCallSent reports whether a cash call has gone out for this bill
func (b *Bill) IsCashCallSent() bool {
	switch b.Status {
	case workflow.StatePending, workflow.StatePaid, workflow.StatePaidIncorrectly:
		return true
	}
	return false
}

// AmountPaid sums the principal of the bill's paid cash calls
func (b *Bill) AmountPaid(cashCalls []*CashCall) decimal.Decimal {
	total := decimal.Zero
	for _, cc := range b.paid(cashCalls) {
		total = total.Add(cc.CommittedAmount)
	}
	return total
}

// FeesAmountPaid sums the fees of the bill's paid cash calls
func (b *Bill) FeesAmountPaid(cashCalls []*CashCall) decimal.Decimal {
	total := decimal.Zero
	for _, cc := range b.paid(cashCalls) {
		total = total.Add(cc.FeesAmount)
	}
	return total
}

// HasCashCall reports whether any cash call references the bill
func (b *Bill) HasCashCall(cashCalls []*CashCall) bool {
	for _, cc := range cashCalls {
		if cc.BelongsTo(b) {
			return true
		}
	}
	return false
}

func (b *Bill) paid(cashCalls []*CashCall) []*CashCall {
	var out []*CashCall
	for _, cc := range cashCalls {
		if cc.BelongsTo(b) && cc.Status == workflow.StatePaid {
			out = append(out, cc)
		}
	}
	return out
}

// MatchesPayment reports whether the cash call collected exactly what the bill asks for
func (b *Bill) MatchesPayment(cc *CashCall) bool {
	return b.AmountDue.Equal(cc.CommittedAmount) && b.FeesAmountDue.Equal(cc.FeesAmount)
}

// FormatInvoiceNumber renders "{year}_{CODE}_{seq}" with a 7 digit sequence
func FormatInvoiceNumber(year int, billType BillType, seq int) string {
	return fmt.Sprintf("%d_%s_%07d", year, billType.InvoiceCode(), seq)
}
