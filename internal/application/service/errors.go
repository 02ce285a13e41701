package service

import "errors"

var (
	// ErrBillNotFound is returned when a bill does not exist
	ErrBillNotFound = errors.New("bill not found")

	// ErrCashCallNotFound is returned when a cash call does not exist
	ErrCashCallNotFound = errors.New("cash call not found")

	// ErrInvestmentNotFound is returned when an investment does not exist
	ErrInvestmentNotFound = errors.New("investment not found")

	// ErrInvestorNotFound is returned when a bill has no resolvable investor
	ErrInvestorNotFound = errors.New("investor not found")

	// ErrNoOwner is returned when an investor has no owner to address an email to
	ErrNoOwner = errors.New("the related investor does not have a valid owner user")

	// ErrNoWireReference is returned when the gateway response has no wire reference yet
	ErrNoWireReference = errors.New("the wire reference has not been generated yet, retry in a few minutes")

	// ErrNoWallet is returned when the investor has no linked EUR wallet
	ErrNoWallet = errors.New("investor has no linked wallet")

	// ErrUnknownPayInStatus is returned for gateway statuses outside the known vocabulary
	ErrUnknownPayInStatus = errors.New("unknown pay-in status")

	// ErrNoDocument is returned when a bill has no generated file to attach
	ErrNoDocument = errors.New("bill has no generated document")
)
