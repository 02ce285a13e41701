package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/domain/currency"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// Reasons a cash call cannot be submitted to the payment processor
const (
	ReasonPayInExists       = "There is already Mangopay Payin Related"
	ReasonNoBill            = "No related bill"
	ReasonBillPaid          = "You Can't cashcall paid bill"
	ReasonNoInvestment      = "No related Investment"
	ReasonNoInvestDate      = "Investment does not have any SA signed date nor creation date"
	ReasonNoCurrency        = "Investment fundraising has no currency"
	ReasonNoAmount          = "There is no amount in the cashcall"
	ReasonNoInvestor        = "No investor related to the cashcall bill"
	ReasonNoOwner           = "Investor has not related user"
	ReasonNoKYC             = "No investor kyc related to the cashcall bill"
	ReasonKYCNotLinked      = "Investor KYC has no mangopay relation"
	ReasonNoWallet          = "Cashcall can't get investor wallet"
	ReasonWalletNotLinked   = "Investor Wallet has no mangopay relation"
	ReasonInvestorNotLinked = "Investor has no mangopay relation"
)

// Validation is the outcome of the pay-in precondition check
type Validation struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// payInTarget is what a valid cash call resolves to before submission
type payInTarget struct {
	bill       *entity.Bill
	investment *entity.Investment
	investor   *entity.Investor
	currency   string
}

// CanPublishPayIn checks every precondition of a pay-in submission without changing anything.
// The error return is reserved for lookup failures.
func (s *cashCallService) CanPublishPayIn(ctx context.Context, cc *entity.CashCall) (Validation, error) {
	_, validation, err := s.resolvePayIn(ctx, cc)
	return validation, err
}

func (s *cashCallService) resolvePayIn(ctx context.Context, cc *entity.CashCall) (*payInTarget, Validation, error) {
	target, reason, err := s.lookupPayIn(ctx, cc)
	if err != nil {
		return nil, Validation{}, err
	}
	if reason != "" {
		message := fmt.Sprintf("Cannot create a Payin for Cashcall %d reason: %s", cc.ID, reason)
		s.logger.Info(message, zap.Int64("cashcall_id", cc.ID))
		return nil, Validation{OK: false, Reason: message}, nil
	}
	return target, Validation{OK: true}, nil
}

func (s *cashCallService) lookupPayIn(ctx context.Context, cc *entity.CashCall) (*payInTarget, string, error) {
	if cc.PayInID != "" {
		return nil, ReasonPayInExists, nil
	}

	bill, err := s.billOf(ctx, cc)
	if err != nil {
		return nil, "", err
	}
	if bill == nil {
		return nil, ReasonNoBill, nil
	}
	if bill.Status == workflow.StatePaid {
		return nil, ReasonBillPaid, nil
	}

	investment, err := s.bills.Investment(ctx, bill)
	if err != nil && !errors.Is(err, ErrInvestmentNotFound) {
		return nil, "", err
	}

	target := &payInTarget{bill: bill, investment: investment, currency: currency.EUR}
	if bill.Type != entity.BillTypeManagementFees {
		if investment == nil {
			return nil, ReasonNoInvestment, nil
		}
		if _, ok := investment.InvestDate(); !ok {
			return nil, ReasonNoInvestDate, nil
		}
		if investment.Fundraising.Currency == "" {
			return nil, ReasonNoCurrency, nil
		}
		target.currency = investment.Fundraising.Currency
	}

	if !cc.HasAmount() {
		return nil, ReasonNoAmount, nil
	}

	investor, err := s.bills.Investor(ctx, bill)
	if err != nil && !errors.Is(err, ErrInvestmentNotFound) {
		return nil, "", err
	}
	switch {
	case investor == nil:
		return nil, ReasonNoInvestor, nil
	case investor.Owner == nil:
		return nil, ReasonNoOwner, nil
	case investor.KYC == nil:
		return nil, ReasonNoKYC, nil
	case investor.KYC.PaymentAccountID == "":
		return nil, ReasonKYCNotLinked, nil
	}

	wallet := investor.WalletFor(target.currency)
	switch {
	case wallet == nil:
		return nil, ReasonNoWallet, nil
	case wallet.PaymentWalletID == "":
		return nil, ReasonWalletNotLinked, nil
	case investor.PaymentUserID == "":
		return nil, ReasonInvestorNotLinked, nil
	}

	target.investor = investor
	return target, "", nil
}
