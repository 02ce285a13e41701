package document

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
)

const exportSheet = "Bills"

var exportHeader = []interface{}{
	"ID", "Invoice number", "Deprecated number", "Type", "Year", "Investor",
	"Amount due", "Fees due", "Amount paid", "Fees paid", "Status", "Cash calls", "Last sent",
}

// RenderBillExport writes one row per bill with its paid amounts
func (r *ExcelRenderer) RenderBillExport(ctx context.Context, rows []port.BillExportRow) (*port.RenderedDocument, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name export sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}

	for i, row := range rows {
		bill := row.Bill
		if bill == nil {
			continue
		}
		lastSent := ""
		if bill.LastSent != nil {
			lastSent = bill.LastSent.Format("2006-01-02 15:04")
		}
		values := []interface{}{
			bill.ID,
			bill.InvoiceNumber,
			bill.DeprecatedNumber,
			string(bill.Type),
			bill.Year,
			bill.InvestorName,
			bill.AmountDue.Round(2).InexactFloat64(),
			bill.FeesAmountDue.Round(2).InexactFloat64(),
			row.AmountPaid.Round(2).InexactFloat64(),
			row.FeesAmountPaid.Round(2).InexactFloat64(),
			bill.Status.String(),
			row.CashCalls,
			lastSent,
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write bill %d: %w", bill.ID, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, header); err != nil {
		return nil, fmt.Errorf("failed to style export header: %w", err)
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze export header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write export workbook: %w", err)
	}

	r.logger.Debug("Bill export rendered", zap.Int("rows", len(rows)))
	return &port.RenderedDocument{
		Name:        "bills.xlsx",
		ContentType: XLSXContentType,
		Content:     buf.Bytes(),
	}, nil
}
