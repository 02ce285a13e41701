package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/currency"
	"github.com/garyjia/investment-billing/internal/domain/entity"
)

// newPayInRequest builds the bank wire pay-in of a validated cash call.
// Pay-ins are always collected in EUR. Rhapsody and management bills are fee-only:
// the fees amount is debited and the fees field is zero.
func newPayInRequest(target *payInTarget, cc *entity.CashCall) (port.PayInRequest, error) {
	investor := target.investor
	wallet := investor.WalletFor(currency.EUR)
	if wallet == nil || wallet.PaymentWalletID == "" {
		return port.PayInRequest{}, fmt.Errorf("%w: investor %d has no linked %s wallet", ErrNoWallet, investor.ID, currency.EUR)
	}

	req := port.PayInRequest{
		DebitedFunds:   port.Money{Amount: cc.CommittedAmount, Currency: currency.EUR},
		Fees:           port.Money{Amount: cc.FeesAmount, Currency: currency.EUR},
		Tag:            payInTag(target),
		CreditedWallet: wallet.PaymentWalletID,
	}

	switch target.bill.Type {
	case entity.BillTypeRhapsodyFees, entity.BillTypeManagementFees:
		req.DebitedFunds.Amount = cc.FeesAmount
		req.Fees.Amount = decimal.Zero
	}

	if investor.KYC.Type == entity.KYCTypeLegal {
		req.AuthorLegal = investor.PaymentUserID
		req.CreditedUserLegal = investor.PaymentUserID
	} else {
		req.AuthorNatural = investor.PaymentUserID
		req.CreditedUserNatural = investor.PaymentUserID
	}
	return req, nil
}

func payInTag(target *payInTarget) string {
	bill := target.bill
	name := target.investor.Name
	switch {
	case target.investment != nil:
		return fmt.Sprintf("Cash Call Pay In - %s - %s", target.investment.Fundraising.Name, name)
	case bill.Type == entity.BillTypeManagementFees:
		return fmt.Sprintf("Cash call Pay In - Management fees %d - %s", bill.Year, name)
	}
	return fmt.Sprintf("Cash call Pay In - Membership fees %d - %s", bill.Year, name)
}
