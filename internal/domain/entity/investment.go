package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fundraising is the round an investment belongs to
type Fundraising struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	StartupName   string `json:"startup_name"`
	StartupIsFund bool   `json:"startup_is_fund"`
}

// Investment is an investor's commitment in a fundraising
type Investment struct {
	ID              int64           `json:"id"`
	InvestorID      int64           `json:"investor_id"`
	CommittedAmount decimal.Decimal `json:"committed_amount"`
	FeesPercentage  decimal.Decimal `json:"fees_percentage"`
	SignedAt        *time.Time      `json:"subscription_agreement_signed_date,omitempty"`
	CreatedAt       *time.Time      `json:"creation_datetime,omitempty"`
	Status          string          `json:"status"`
	Fundraising     Fundraising     `json:"fundraising"`
}

// InvestDate is the signing date, or the creation date when the agreement is unsigned
func (i *Investment) InvestDate() (time.Time, bool) {
	if i.SignedAt != nil {
		return *i.SignedAt, true
	}
	if i.CreatedAt != nil {
		return *i.CreatedAt, true
	}
	return time.Time{}, false
}
