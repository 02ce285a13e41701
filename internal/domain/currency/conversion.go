// Package currency converts amounts between EUR and USD using a fixed per-year rate table.
package currency

import "github.com/shopspring/decimal"

// Currency codes understood by the billing core
const (
	EUR = "EUR"
	USD = "USD"
)

// DefaultUSDRate is the EUR to USD rate used for years missing from the table
var DefaultUSDRate = decimal.RequireFromString("1.03")

var cent = int32(2)

// Rates is an immutable EUR to USD rate table keyed by year
type Rates struct {
	fallback decimal.Decimal
	byYear   map[int]decimal.Decimal
}

// NewRates copies byYear so later changes to the caller's map are not observed
func NewRates(fallback decimal.Decimal, byYear map[int]decimal.Decimal) Rates {
	if !fallback.IsPositive() {
		fallback = DefaultUSDRate
	}
	table := make(map[int]decimal.Decimal, len(byYear))
	for year, rate := range byYear {
		if rate.IsPositive() {
			table[year] = rate
		}
	}
	return Rates{fallback: fallback, byYear: table}
}

// DefaultRates returns the historical yearly table
func DefaultRates() Rates {
	return NewRates(DefaultUSDRate, map[int]decimal.Decimal{
		2016: decimal.RequireFromString("1.1454"),
		2017: decimal.RequireFromString("1.13"),
		2018: decimal.RequireFromString("1.18"),
		2019: decimal.RequireFromString("1.12"),
		2020: decimal.RequireFromString("1.14"),
		2021: decimal.RequireFromString("1.18"),
		2022: decimal.RequireFromString("1.18"),
		2023: decimal.RequireFromString("1.06"),
	})
}

// USDRate returns how many dollars one euro buys in year. Zero year means the fallback rate.
func (r Rates) USDRate(year int) decimal.Decimal {
	if rate, ok := r.byYear[year]; ok {
		return rate
	}
	if r.fallback.IsZero() {
		return DefaultUSDRate
	}
	return r.fallback
}

// DollarToEuro converts a dollar amount, quantized to cents first, into euros rounded to cents
func (r Rates) DollarToEuro(amount decimal.Decimal, year int) decimal.Decimal {
	return amount.Round(cent).Div(r.USDRate(year)).Round(cent)
}

// EuroToDollar converts a euro amount, quantized to cents first, into dollars rounded to cents
func (r Rates) EuroToDollar(amount decimal.Decimal, year int) decimal.Decimal {
	return amount.Round(cent).Mul(r.USDRate(year)).Round(cent)
}
