package event

// Type identifies the type of domain event
type Type string

const (
	TypeBillUpdated          Type = "bill.updated"
	TypeBillPaid             Type = "bill.paid"
	TypeBillPaidIncorrectly  Type = "bill.paid_incorrectly"
	TypeCashCallPublished    Type = "cashcall.published"
	TypeCashCallFailed       Type = "cashcall.failed"
	TypeCashCallPaid         Type = "cashcall.paid"
	TypeInvoiceGenerated     Type = "invoice.generated"
	TypeInvoiceGenerationErr Type = "invoice.generation_failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeBillUpdated,
		TypeBillPaid,
		TypeBillPaidIncorrectly,
		TypeCashCallPublished,
		TypeCashCallFailed,
		TypeCashCallPaid,
		TypeInvoiceGenerated,
		TypeInvoiceGenerationErr:
		return true
	default:
		return false
	}
}
