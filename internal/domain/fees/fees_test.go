package fees

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/investment-billing/internal/domain/currency"
	"github.com/garyjia/investment-billing/internal/domain/entity"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func assertResult(t *testing.T, got Result, amount, rate string) {
	t.Helper()
	assert.True(t, got.Amount.Equal(d(amount)), "amount = %s, want %s", got.Amount, amount)
	assert.True(t, got.Rate.Equal(d(rate)), "rate = %s, want %s", got.Rate, rate)
}

func TestUpfront(t *testing.T) {
	inv := Investment{CommittedAmount: d("10000"), FeesPercentage: d("5"), Currency: currency.USD}

	assertResult(t, Upfront(inv, Params{}), "500", "0.05")
	assertResult(t, Upfront(inv, Params{InvestedAmount: d("2000")}), "100", "0.05")

	inv.FeesPercentage = d("3.5")
	inv.CommittedAmount = d("1234.56")
	assertResult(t, Upfront(inv, Params{}), "43.21", "0.035")
}

func TestManagement(t *testing.T) {
	rates := currency.DefaultRates()
	signed := date(2019, time.September, 13)

	tests := []struct {
		name   string
		inv    Investment
		params Params
		amount string
		rate   string
	}{
		{
			name:   "early tier two years in",
			inv:    Investment{ID: 1, CommittedAmount: d("29952"), InvestDate: signed, Currency: currency.EUR},
			params: Params{Year: 2021},
			amount: "599.04", rate: "0.02",
		},
		{
			name:   "early tier four years in",
			inv:    Investment{ID: 1, CommittedAmount: d("29952"), InvestDate: signed, Currency: currency.EUR},
			params: Params{Year: 2023},
			amount: "599.04", rate: "0.02",
		},
		{
			name:   "late tier after four years",
			inv:    Investment{ID: 1, CommittedAmount: d("29952"), InvestDate: signed, Currency: currency.EUR},
			params: Params{Year: 2024},
			amount: "299.52", rate: "0.01",
		},
		{
			name:   "usd converted with the reference year rate",
			inv:    Investment{ID: 2, CommittedAmount: d("10000"), InvestDate: date(2018, time.March, 1), Currency: currency.USD},
			params: Params{Year: 2021},
			amount: "169.49", rate: "0.02",
		},
		{
			name:   "usd converted with fallback rate",
			inv:    Investment{ID: 2, CommittedAmount: d("17500"), InvestDate: date(2024, time.March, 1), Currency: currency.USD},
			params: Params{Year: 2026},
			amount: "339.81", rate: "0.02",
		},
		{
			name:   "fund within grace period",
			inv:    Investment{ID: 3, CommittedAmount: d("10000"), InvestDate: date(2019, time.January, 1), IsFund: true},
			params: Params{Year: 2021},
			amount: "0", rate: "0",
		},
		{
			name:   "fund after grace period",
			inv:    Investment{ID: 3, CommittedAmount: d("10000"), InvestDate: date(2019, time.January, 1), IsFund: true},
			params: Params{Year: 2022},
			amount: "225", rate: "0.0225",
		},
		{
			name:   "override to one percent",
			inv:    Investment{ID: 593, CommittedAmount: d("10000"), InvestDate: date(2019, time.January, 1)},
			params: Params{Year: 2020},
			amount: "100", rate: "0.01",
		},
		{
			name:   "override to two percent",
			inv:    Investment{ID: 525, CommittedAmount: d("10000"), InvestDate: date(2015, time.January, 1)},
			params: Params{Year: 2021},
			amount: "200", rate: "0.02",
		},
		{
			name:   "investment year override",
			inv:    Investment{ID: 4, CommittedAmount: d("10000"), InvestDate: date(2020, time.January, 1)},
			params: Params{Year: 2021, InvestmentYear: 2015},
			amount: "100", rate: "0.01",
		},
		{
			name:   "invested amount override",
			inv:    Investment{ID: 4, CommittedAmount: d("10000"), InvestDate: date(2020, time.January, 1)},
			params: Params{Year: 2021, InvestedAmount: d("5000")},
			amount: "100", rate: "0.02",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertResult(t, Management(tt.inv, tt.params, rates), tt.amount, tt.rate)
		})
	}
}

func TestRhapsody(t *testing.T) {
	inv := Investment{CommittedAmount: d("10000"), FeesPercentage: d("3"), InvestDate: date(2020, time.June, 1), Currency: currency.USD}

	tests := []struct {
		name   string
		year   int
		amount string
		rate   string
	}{
		{"same year uses investment percentage", 2020, "300", "0.03"},
		{"following year uses flat rate", 2021, "225", "0.0225"},
		{"several years later uses flat rate", 2025, "225", "0.0225"},
		{"year before investment is free", 2019, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertResult(t, Rhapsody(inv, Params{Year: tt.year}), tt.amount, tt.rate)
		})
	}
}

func TestMembership(t *testing.T) {
	schedule := MembershipSchedule{Community: d("240"), AdvancedInvestment: d("500")}

	assertResult(t, Membership(MembershipFlags{Community: true, AdvancedInvestment: true}, schedule), "740", "0")
	assertResult(t, Membership(MembershipFlags{Community: true}, schedule), "240", "0")
	assertResult(t, Membership(MembershipFlags{AdvancedInvestment: true}, schedule), "500", "0")
	assertResult(t, Membership(MembershipFlags{}, schedule), "0", "0")
}

func TestCalculator_Calculate(t *testing.T) {
	calc := NewCalculator(currency.DefaultRates(), MembershipSchedule{Community: d("240"), AdvancedInvestment: d("500")})
	inv := &Investment{ID: 7, CommittedAmount: d("1000"), FeesPercentage: d("5"), InvestDate: date(2020, time.January, 1)}

	t.Run("upfront", func(t *testing.T) {
		got, err := calc.Calculate(entity.BillTypeUpfrontFees, Input{Investment: inv})
		require.NoError(t, err)
		assertResult(t, got, "50", "0.05")
	})

	t.Run("credit notes priced like upfront", func(t *testing.T) {
		got, err := calc.Calculate(entity.BillTypeCreditNotes, Input{Investment: inv, Params: Params{InvestedAmount: d("-200")}})
		require.NoError(t, err)
		assertResult(t, got, "-10", "0.05")
	})

	t.Run("management", func(t *testing.T) {
		got, err := calc.Calculate(entity.BillTypeManagementFees, Input{Investment: inv, Params: Params{Year: 2022}})
		require.NoError(t, err)
		assertResult(t, got, "20", "0.02")
	})

	t.Run("rhapsody", func(t *testing.T) {
		got, err := calc.Calculate(entity.BillTypeRhapsodyFees, Input{Investment: inv, Params: Params{Year: 2020}})
		require.NoError(t, err)
		assertResult(t, got, "50", "0.05")
	})

	t.Run("membership needs no investment", func(t *testing.T) {
		got, err := calc.Calculate(entity.BillTypeMembershipFees, Input{Membership: MembershipFlags{Community: true}})
		require.NoError(t, err)
		assertResult(t, got, "240", "0")
	})

	t.Run("missing investment", func(t *testing.T) {
		_, err := calc.Calculate(entity.BillTypeUpfrontFees, Input{})
		assert.ErrorIs(t, err, ErrNoInvestment)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := calc.Calculate(entity.BillType("donation"), Input{Investment: inv})
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestHasManagementOverride(t *testing.T) {
	assert.True(t, HasManagementOverride(593))
	assert.True(t, HasManagementOverride(525))
	assert.False(t, HasManagementOverride(1))
}
