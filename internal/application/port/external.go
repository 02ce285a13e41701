package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/investment-billing/internal/domain/entity"
)

// Money is an amount in a currency as sent to the payment processor
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// PayInRequest is the bank wire pay-in submitted for a cash call
type PayInRequest struct {
	DebitedFunds        Money  `json:"debited_funds"`
	Fees                Money  `json:"fees"`
	Tag                 string `json:"tag"`
	CreditedWallet      string `json:"credited_wallet"`
	AuthorLegal         string `json:"author_legal,omitempty"`
	CreditedUserLegal   string `json:"credited_user_legal,omitempty"`
	AuthorNatural       string `json:"author_natural,omitempty"`
	CreditedUserNatural string `json:"credited_user_natural,omitempty"`
}

// PayInResult is what the payment processor reports about a pay-in
type PayInResult struct {
	ID            string
	WireReference string
	Status        string
	Raw           json.RawMessage
}

// PaymentGateway submits pay-ins to the payment processor.
// SubmitPayIn returns (nil, nil) when the processor declines the request.
type PaymentGateway interface {
	SubmitPayIn(ctx context.Context, req PayInRequest) (*PayInResult, error)
	GetPayIn(ctx context.Context, id string) (*PayInResult, error)
}

// InvoiceFees are the display amounts printed on an invoice
type InvoiceFees struct {
	Subtotal  decimal.Decimal
	TaxRate   decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	Community decimal.Decimal
	Advanced  decimal.Decimal
	Rate      decimal.Decimal
}

// InvoiceContext is everything a renderer needs to produce an invoice
type InvoiceContext struct {
	Bill          *entity.Bill
	Investor      *entity.Investor
	Investment    *entity.Investment
	Language      string
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       time.Time
	Fees          InvoiceFees
	WireReference string
	PayIn         json.RawMessage
}

// RenderedDocument is a generated file ready to be stored
type RenderedDocument struct {
	Name        string
	ContentType string
	Content     []byte
}

// BillExportRow is one bill line of a bills workbook
type BillExportRow struct {
	Bill           *entity.Bill
	AmountPaid     decimal.Decimal
	FeesAmountPaid decimal.Decimal
	CashCalls      int
}

// DocumentRenderer produces invoice documents and bill exports
type DocumentRenderer interface {
	RenderInvoice(ctx context.Context, invoice InvoiceContext) (*RenderedDocument, error)
	RenderBillExport(ctx context.Context, rows []BillExportRow) (*RenderedDocument, error)
}

// EmailRecipient is an addressee of a notification
type EmailRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// EmailAttachment is a file attached to a notification
type EmailAttachment struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// EmailMessage is a templated notification
type EmailMessage struct {
	To          []EmailRecipient
	CC          []EmailRecipient
	TemplateID  int64
	Params      map[string]interface{}
	Attachments []EmailAttachment
}

// Notifier delivers templated email notifications
type Notifier interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// OperatorAlerter notifies operators about bills needing manual review
type OperatorAlerter interface {
	Alert(ctx context.Context, title string, lines []string) error
}
