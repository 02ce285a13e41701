package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/fees"
)

var hundred = decimal.NewFromInt(100)

// invoiceContext gathers the display values of a bill's invoice
func (s *billService) invoiceContext(
	bill *entity.Bill,
	investor *entity.Investor,
	investment *entity.Investment,
	cc *entity.CashCall,
	language string,
) (port.InvoiceContext, error) {
	now := s.now()
	invoice := port.InvoiceContext{
		Bill:          bill,
		Investor:      investor,
		Investment:    investment,
		Language:      language,
		InvoiceNumber: bill.InvoiceNumber,
		InvoiceDate:   now,
		DueDate:       now,
	}
	if invoice.InvoiceNumber == "" {
		invoice.InvoiceNumber = bill.DeprecatedNumber
	}
	if cc != nil {
		invoice.WireReference = cc.WireReference()
		invoice.PayIn = cc.Response
	}

	if bill.Type != entity.BillTypeMembershipFees && investment == nil {
		return invoice, fmt.Errorf("%w: %s bill %d", ErrInvestmentNotFound, bill.Type, bill.ID)
	}

	var amounts port.InvoiceFees
	switch bill.Type {
	case entity.BillTypeUpfrontFees, entity.BillTypeCreditNotes:
		result := fees.Upfront(*feeInvestment(investment), fees.Params{InvestedAmount: bill.AmountDue})
		amounts = flatFees(result.Amount, result.Rate)

	case entity.BillTypeRhapsodyFees:
		result := fees.Rhapsody(*feeInvestment(investment), fees.Params{Year: bill.Year, InvestedAmount: bill.AmountDue})
		amounts = flatFees(result.Amount, result.Rate)

	case entity.BillTypeManagementFees:
		result := fees.Management(*feeInvestment(investment),
			fees.Params{Year: bill.Year, InvestedAmount: bill.AmountDue}, s.calculator.Rates())
		amounts = flatFees(bill.FeesAmountDue, result.Rate)
		invoice.DueDate = now.Add(s.settings.PaymentTerm)

	case entity.BillTypeMembershipFees:
		amounts = s.membershipFees(investor)
		invoice.DueDate = now.Add(s.settings.PaymentTerm)

	default:
		return invoice, fmt.Errorf("%w: %s", entity.ErrInvalidBillType, bill.Type)
	}

	invoice.Fees = amounts
	return invoice, nil
}

// membershipFees splits the membership fee into its VAT-bearing community part and the advanced part
func (s *billService) membershipFees(investor *entity.Investor) port.InvoiceFees {
	amounts := port.InvoiceFees{
		Subtotal:  decimal.Zero,
		TaxRate:   decimal.Zero,
		Tax:       decimal.Zero,
		Community: decimal.Zero,
		Advanced:  decimal.Zero,
		Rate:      decimal.Zero,
	}
	if investor == nil {
		amounts.Total = decimal.Zero
		return amounts
	}

	if investor.AdvancedInvestmentFee {
		amounts.Advanced = s.calculator.MembershipSchedule().AdvancedInvestment.Round(2)
	}
	if investor.CommunityFee {
		amounts.Community = s.settings.CommunityPreVAT.Round(2)
		amounts.TaxRate = s.settings.VATRate
		amounts.Tax = s.settings.CommunityPreVAT.Mul(s.settings.VATRate).Div(hundred).Round(2)
	}
	amounts.Subtotal = amounts.Community.Add(amounts.Advanced)
	amounts.Total = amounts.Subtotal.Add(amounts.Tax).Round(2)
	return amounts
}

func flatFees(amount, rate decimal.Decimal) port.InvoiceFees {
	subtotal := amount.Round(2)
	return port.InvoiceFees{
		Subtotal:  subtotal,
		TaxRate:   decimal.Zero,
		Tax:       decimal.Zero,
		Total:     subtotal,
		Community: decimal.Zero,
		Advanced:  decimal.Zero,
		Rate:      rate,
	}
}
