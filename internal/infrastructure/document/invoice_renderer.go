// Package document renders invoices and bill exports as xlsx workbooks.
package document

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
)

// XLSXContentType is the media type of generated workbooks
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const invoiceSheet = "Invoice"

// Config holds document rendering configuration
type Config struct {
	// TemplatePath is an optional xlsx whose first sheet receives the invoice cells
	TemplatePath string
	IssuerName   string
	IssuerLines  []string
}

// ExcelRenderer implements port.DocumentRenderer with excelize
type ExcelRenderer struct {
	cfg    Config
	logger *zap.Logger
}

// NewExcelRenderer creates a new ExcelRenderer
func NewExcelRenderer(cfg Config, logger *zap.Logger) *ExcelRenderer {
	return &ExcelRenderer{
		cfg:    cfg,
		logger: logger,
	}
}

// invoiceLine is one priced row of the invoice table
type invoiceLine struct {
	description string
	rate        string
	amount      decimal.Decimal
}

// RenderInvoice fills an invoice workbook for one bill
func (r *ExcelRenderer) RenderInvoice(ctx context.Context, invoice port.InvoiceContext) (*port.RenderedDocument, error) {
	if invoice.Bill == nil {
		return nil, fmt.Errorf("invoice has no bill")
	}
	if invoice.InvoiceNumber == "" {
		return nil, fmt.Errorf("bill %d has no invoice number", invoice.Bill.ID)
	}

	f, sheet, err := r.openWorkbook()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l := labelsFor(invoice.Language)
	w := &sheetWriter{f: f, sheet: sheet}

	title := l.Invoice
	if invoice.Bill.Type == entity.BillTypeCreditNotes {
		title = l.CreditNote
	}
	w.set("A1", title)
	w.set("D1", r.cfg.IssuerName)
	for i, line := range r.cfg.IssuerLines {
		w.set(fmt.Sprintf("D%d", i+2), line)
	}

	w.set("A3", l.Number)
	w.set("B3", invoice.InvoiceNumber)
	w.set("A4", l.Date)
	w.set("B4", invoice.InvoiceDate.Format("2006-01-02"))
	w.set("A5", l.DueDate)
	w.set("B5", invoice.DueDate.Format("2006-01-02"))

	w.set("A7", l.BilledTo)
	if invoice.Investor != nil {
		w.set("B7", invoice.Investor.Name)
		if invoice.Investor.KYC != nil {
			w.set("B8", invoice.Investor.KYC.Address)
		}
	}

	w.set("A10", l.Description)
	w.set("B10", l.Rate)
	w.set("C10", l.Amount)

	row := 11
	for _, line := range invoiceLines(invoice, l) {
		w.set(fmt.Sprintf("A%d", row), line.description)
		w.set(fmt.Sprintf("B%d", row), line.rate)
		w.amount(fmt.Sprintf("C%d", row), line.amount)
		row++
	}

	row++
	w.set(fmt.Sprintf("B%d", row), l.Subtotal)
	w.amount(fmt.Sprintf("C%d", row), invoice.Fees.Subtotal)
	row++
	w.set(fmt.Sprintf("B%d", row), fmt.Sprintf("%s %s%%", l.VAT, invoice.Fees.TaxRate.String()))
	w.amount(fmt.Sprintf("C%d", row), invoice.Fees.Tax)
	row++
	w.set(fmt.Sprintf("B%d", row), l.Total)
	w.amount(fmt.Sprintf("C%d", row), invoice.Fees.Total)
	totalRow := row

	if invoice.WireReference != "" {
		row += 2
		w.set(fmt.Sprintf("A%d", row), l.WireReference)
		w.set(fmt.Sprintf("B%d", row), invoice.WireReference)
	}

	if err := r.styleInvoice(f, sheet, totalRow); err != nil {
		return nil, err
	}
	if w.err != nil {
		return nil, fmt.Errorf("failed to fill invoice: %w", w.err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write invoice workbook: %w", err)
	}

	r.logger.Debug("Invoice rendered",
		zap.Int64("bill_id", invoice.Bill.ID),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int("size", buf.Len()))

	return &port.RenderedDocument{
		Name:        fmt.Sprintf("invoice_%s.xlsx", invoice.InvoiceNumber),
		ContentType: XLSXContentType,
		Content:     buf.Bytes(),
	}, nil
}

// openWorkbook opens the configured template or starts a blank workbook
func (r *ExcelRenderer) openWorkbook() (*excelize.File, string, error) {
	if r.cfg.TemplatePath != "" {
		f, err := excelize.OpenFile(r.cfg.TemplatePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open template: %w", err)
		}
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, "", fmt.Errorf("template has no sheets")
		}
		return f, sheets[0], nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("failed to name invoice sheet: %w", err)
	}
	return f, invoiceSheet, nil
}

func (r *ExcelRenderer) styleInvoice(f *excelize.File, sheet string, totalRow int) error {
	if r.cfg.TemplatePath != "" {
		return nil
	}

	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := f.SetCellStyle(sheet, "A1", "A1", title); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A10", "C10", bold); err != nil {
		return err
	}
	total := fmt.Sprintf("B%d", totalRow)
	if err := f.SetCellStyle(sheet, total, total, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "A", 45); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "B", "D", 20)
}

// invoiceLines describes what the bill charges for
func invoiceLines(invoice port.InvoiceContext, l labels) []invoiceLine {
	bill := invoice.Bill
	rate := percent(invoice.Fees.Rate)

	switch bill.Type {
	case entity.BillTypeMembershipFees:
		var lines []invoiceLine
		if invoice.Fees.Community.IsPositive() {
			lines = append(lines, invoiceLine{
				description: fmt.Sprintf("%s %d", l.Community, bill.Year),
				amount:      invoice.Fees.Community,
			})
		}
		if invoice.Fees.Advanced.IsPositive() {
			lines = append(lines, invoiceLine{
				description: fmt.Sprintf("%s %d", l.Advanced, bill.Year),
				amount:      invoice.Fees.Advanced,
			})
		}
		return lines

	case entity.BillTypeManagementFees:
		return []invoiceLine{{
			description: fmt.Sprintf("%s %d - %s", l.Management, bill.Year, roundName(invoice.Investment)),
			rate:        rate,
			amount:      invoice.Fees.Subtotal,
		}}

	case entity.BillTypeRhapsodyFees:
		return []invoiceLine{{
			description: fmt.Sprintf("%s %d - %s", l.Rhapsody, bill.Year, roundName(invoice.Investment)),
			rate:        rate,
			amount:      invoice.Fees.Subtotal,
		}}
	}

	return []invoiceLine{{
		description: fmt.Sprintf("%s - %s", l.Upfront, roundName(invoice.Investment)),
		rate:        rate,
		amount:      invoice.Fees.Subtotal,
	}}
}

func roundName(investment *entity.Investment) string {
	if investment == nil {
		return ""
	}
	if investment.Fundraising.StartupName == "" {
		return investment.Fundraising.Name
	}
	return fmt.Sprintf("%s (%s)", investment.Fundraising.Name, investment.Fundraising.StartupName)
}

// percent renders a fraction such as 0.0225 as "2.25%"
func percent(rate decimal.Decimal) string {
	if rate.IsZero() {
		return ""
	}
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// sheetWriter keeps the first error of a run of cell writes
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(cell string, value interface{}) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellValue(w.sheet, cell, value)
}

func (w *sheetWriter) amount(cell string, value decimal.Decimal) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellFloat(w.sheet, cell, value.Round(2).InexactFloat64(), 2, 64)
}

// Verify interface compliance
var _ port.DocumentRenderer = (*ExcelRenderer)(nil)
