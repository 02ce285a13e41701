package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// CashCall is a single payment collection attempt against a bill
type CashCall struct {
	ID              int64           `json:"id"`
	BillID          *int64          `json:"bill_id,omitempty"`
	CommittedAmount decimal.Decimal `json:"committed_amount"`
	FeesAmount      decimal.Decimal `json:"fees_amount"`
	Status          workflow.State  `json:"status"`
	PayInID         string          `json:"mangopay_payin_id,omitempty"`
	Response        json.RawMessage `json:"response,omitempty"`
	LastSent        *time.Time      `json:"last_sent,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewCashCall returns a CREATED cash call for bill
func NewCashCall(bill *Bill) *CashCall {
	cc := &CashCall{Status: workflow.StateCreated}
	if bill != nil && !bill.IsNew() {
		id := bill.ID
		cc.BillID = &id
	}
	cc.SyncAmounts(bill)
	return cc
}

// BelongsTo reports whether the cash call references bill
func (c *CashCall) BelongsTo(bill *Bill) bool {
	return bill != nil && c.BillID != nil && *c.BillID == bill.ID
}

// AmountsLocked reports whether amounts are frozen because a submission happened
func (c *CashCall) AmountsLocked() bool {
	return cashCalledStates[c.Status]
}

// SyncAmounts copies the bill amounts unless they are locked. It reports whether anything changed.
func (c *CashCall) SyncAmounts(bill *Bill) bool {
	if bill == nil || c.AmountsLocked() {
		return false
	}
	if c.CommittedAmount.Equal(bill.AmountDue) && c.FeesAmount.Equal(bill.FeesAmountDue) {
		return false
	}
	c.CommittedAmount = bill.AmountDue
	c.FeesAmount = bill.FeesAmountDue
	return true
}

// HasAmount reports whether there is anything to collect
func (c *CashCall) HasAmount() bool {
	return !c.CommittedAmount.IsZero() || !c.FeesAmount.IsZero()
}

// TotalAmount is the principal plus fees
func (c *CashCall) TotalAmount() decimal.Decimal {
	return c.CommittedAmount.Add(c.FeesAmount)
}

// WireReference returns the bank wire reference from the gateway response
func (c *CashCall) WireReference() string {
	if len(c.Response) == 0 {
		return ""
	}
	var payload struct {
		WireReference string `json:"wire_reference"`
	}
	if err := json.Unmarshal(c.Response, &payload); err != nil {
		return ""
	}
	return payload.WireReference
}
