// Package fees computes the fee owed for each bill type from an investment snapshot.
// Every calculator is a pure function; configuration is passed in explicitly.
package fees

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/investment-billing/internal/domain/currency"
)

var (
	hundred = decimal.NewFromInt(100)

	rateFundManagement  = decimal.RequireFromString("0.0225")
	rateEarlyManagement = decimal.RequireFromString("0.02")
	rateLateManagement  = decimal.RequireFromString("0.01")
	rateRhapsodyFollow  = decimal.RequireFromString("0.0225")
)

// Years a non-fund investment pays the early management rate, and years a fund is exempt.
const (
	earlyManagementYears = 4
	fundGraceYears       = 2
)

// managementRateOverrides are negotiated exceptions keyed by investment id.
// They carry no expiry and are reviewed by operators, do not generalize them.
var managementRateOverrides = map[int64]decimal.Decimal{
	593: decimal.RequireFromString("0.01"),
	525: decimal.RequireFromString("0.02"),
}

// HasManagementOverride reports whether investmentID is priced by a negotiated rate
func HasManagementOverride(investmentID int64) bool {
	_, ok := managementRateOverrides[investmentID]
	return ok
}

// Investment is the part of an investment the calculators read
type Investment struct {
	ID              int64
	CommittedAmount decimal.Decimal
	// FeesPercentage is expressed in percent (2 means 2%)
	FeesPercentage decimal.Decimal
	InvestDate     time.Time
	Currency       string
	IsFund         bool
}

// Params selects the reference year and optional overrides
type Params struct {
	Year int
	// InvestedAmount replaces the committed amount when non-zero
	InvestedAmount decimal.Decimal
	// InvestmentYear replaces the invest date year when non-zero
	InvestmentYear int
}

// Result is a fee amount and the rate, as a fraction, that produced it
type Result struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
}

func (p Params) invested(inv Investment) decimal.Decimal {
	if p.InvestedAmount.IsZero() {
		return inv.CommittedAmount
	}
	return p.InvestedAmount
}

func (p Params) elapsedYears(inv Investment) int {
	investmentYear := p.InvestmentYear
	if investmentYear == 0 {
		investmentYear = inv.InvestDate.Year()
	}
	return p.Year - investmentYear
}

func result(amount, rate decimal.Decimal) Result {
	return Result{Amount: amount.Round(2), Rate: rate}
}

// Upfront charges the investment's own percentage once. Amounts stay in the
// investment currency.
func Upfront(inv Investment, p Params) Result {
	rate := inv.FeesPercentage.Div(hundred)
	return result(p.invested(inv).Mul(rate), rate)
}

// Management charges a yearly rate tiered by the years elapsed since the investment
func Management(inv Investment, p Params, rates currency.Rates) Result {
	invested := p.invested(inv)
	elapsed := p.elapsedYears(inv)

	if inv.IsFund {
		if elapsed > fundGraceYears {
			return result(invested.Mul(rateFundManagement), rateFundManagement)
		}
		return result(decimal.Zero, decimal.Zero)
	}

	rate := rateEarlyManagement
	if elapsed > earlyManagementYears {
		rate = rateLateManagement
	}
	if override, ok := managementRateOverrides[inv.ID]; ok {
		rate = override
	}

	amount := invested.Mul(rate)
	if inv.Currency == currency.USD {
		amount = rates.DollarToEuro(amount, p.Year)
	}
	return result(amount, rate)
}

// Rhapsody charges the investment percentage in its first year and a flat rate after
func Rhapsody(inv Investment, p Params) Result {
	invested := p.invested(inv)
	elapsed := p.elapsedYears(inv)

	switch {
	case elapsed == 0:
		rate := inv.FeesPercentage.Div(hundred)
		return result(invested.Mul(rate), rate)
	case elapsed >= 1:
		return result(invested.Mul(rateRhapsodyFollow), rateRhapsodyFollow)
	default:
		return result(decimal.Zero, decimal.Zero)
	}
}

// MembershipSchedule holds the yearly membership fee amounts
type MembershipSchedule struct {
	Community          decimal.Decimal
	AdvancedInvestment decimal.Decimal
}

// MembershipFlags are the investor options that select membership fees
type MembershipFlags struct {
	Community          bool
	AdvancedInvestment bool
}

// Membership sums the fees selected by flags. The rate is always zero.
func Membership(flags MembershipFlags, schedule MembershipSchedule) Result {
	total := decimal.Zero
	if flags.Community {
		total = total.Add(schedule.Community)
	}
	if flags.AdvancedInvestment {
		total = total.Add(schedule.AdvancedInvestment)
	}
	return result(total, decimal.Zero)
}
