package fees

import (
	"errors"
	"fmt"

	"github.com/garyjia/investment-billing/internal/domain/currency"
	"github.com/garyjia/investment-billing/internal/domain/entity"
)

var (
	// ErrNoInvestment is returned when an investment-based fee has no investment
	ErrNoInvestment = errors.New("fee calculation requires an investment")

	// ErrUnsupportedType is returned for bill types without a calculator
	ErrUnsupportedType = errors.New("no fee calculator for bill type")
)

// Input gathers everything a calculator may read
type Input struct {
	Investment *Investment
	Membership MembershipFlags
	Params     Params
}

// Calculator dispatches to the calculator of a bill type using fixed configuration
type Calculator struct {
	rates      currency.Rates
	membership MembershipSchedule
}

// NewCalculator creates a calculator. Both arguments are copied by value.
func NewCalculator(rates currency.Rates, membership MembershipSchedule) *Calculator {
	return &Calculator{rates: rates, membership: membership}
}

// Calculate returns the fee owed for billType. Credit notes are priced like upfront fees.
func (c *Calculator) Calculate(billType entity.BillType, in Input) (Result, error) {
	if billType == entity.BillTypeMembershipFees {
		return Membership(in.Membership, c.membership), nil
	}
	if !billType.IsValid() {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedType, billType)
	}
	if in.Investment == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoInvestment, billType)
	}

	switch billType {
	case entity.BillTypeUpfrontFees, entity.BillTypeCreditNotes:
		return Upfront(*in.Investment, in.Params), nil
	case entity.BillTypeManagementFees:
		return Management(*in.Investment, in.Params, c.rates), nil
	case entity.BillTypeRhapsodyFees:
		return Rhapsody(*in.Investment, in.Params), nil
	}
	return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedType, billType)
}

// Rates exposes the conversion table the calculator was built with
func (c *Calculator) Rates() currency.Rates {
	return c.rates
}

// MembershipSchedule exposes the configured membership fees
func (c *Calculator) MembershipSchedule() MembershipSchedule {
	return c.membership
}
