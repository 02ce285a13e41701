package entity

import "github.com/garyjia/investment-billing/internal/domain/workflow"

// BillType identifies what a bill charges for
type BillType string

const (
	BillTypeUpfrontFees    BillType = "upfront_fees"
	BillTypeManagementFees BillType = "management_fees"
	BillTypeMembershipFees BillType = "membership_fees"
	BillTypeRhapsodyFees   BillType = "rhapsody_fees"
	BillTypeCreditNotes    BillType = "credit_notes"
)

// invoiceCodes are the type codes embedded in invoice numbers
var invoiceCodes = map[BillType]string{
	BillTypeUpfrontFees:    "UF",
	BillTypeManagementFees: "OF",
	BillTypeMembershipFees: "MF",
	BillTypeRhapsodyFees:   "RF",
	BillTypeCreditNotes:    "CN",
}

// BillTypes lists every bill type in display order
var BillTypes = []BillType{
	BillTypeUpfrontFees,
	BillTypeManagementFees,
	BillTypeMembershipFees,
	BillTypeRhapsodyFees,
	BillTypeCreditNotes,
}

// IsValid reports whether t is a known bill type
func (t BillType) IsValid() bool {
	_, ok := invoiceCodes[t]
	return ok
}

// InvoiceCode returns the code used in invoice numbers, empty for unknown types
func (t BillType) InvoiceCode() string {
	return invoiceCodes[t]
}

// Issuing year bounds accepted for bills
const (
	FirstBillYear = 2013
	LastBillYear  = 2030
)

// Investment status marks propagated by bill transitions
const (
	InvestmentStatusCashCalled    = "cash_called"
	InvestmentStatusPaymentFailed = "payment_failed"
	InvestmentStatusTransferred   = "transferred"
)

// Investor markers for membership billing
const (
	InvestorStatusOnTrial     = "on_trial"
	TrialPeriodPendingPayment = "pending_payment"
)

// DefaultLanguage is used when an investor owner has no preferred language
const DefaultLanguage = "EN"

// Bill fields that may be saved on their own
const (
	FieldLastSent      = "last_sent"
	FieldInvoiceNumber = "invoice_number"
)

// lockedBillStates reject every update but a last_sent stamp
var lockedBillStates = map[workflow.State]bool{
	workflow.StatePaid:            true,
	workflow.StatePaidIncorrectly: true,
}

// cashCalledStates freeze cash call amounts
var cashCalledStates = map[workflow.State]bool{
	workflow.StatePending: true,
	workflow.StatePaid:    true,
}
