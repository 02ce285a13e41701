package document

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/investment-billing/internal/application/service"
)

// Columns of a fee check workbook. investment_year is optional.
const (
	colInvestmentID   = "investment_id"
	colYear           = "year"
	colInvestmentYear = "investment_year"
	colExpected       = "expected"
)

// ReadFeeChecks parses the first sheet of an xlsx of expected management fees.
// The first row names the columns; blank rows are skipped.
func ReadFeeChecks(r io.Reader) ([]service.FeeCheck, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open fee check workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("fee check workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read fee check rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := map[string]int{}
	for i, name := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colInvestmentID, colYear, colExpected} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("fee check workbook is missing column %q", required)
		}
	}

	var checks []service.FeeCheck
	for i, row := range rows[1:] {
		line := i + 2
		cell := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if cell(colInvestmentID) == "" && cell(colExpected) == "" {
			continue
		}

		var check service.FeeCheck
		if check.InvestmentID, err = strconv.ParseInt(cell(colInvestmentID), 10, 64); err != nil {
			return nil, fmt.Errorf("row %d: invalid investment_id: %w", line, err)
		}
		if check.Year, err = strconv.Atoi(cell(colYear)); err != nil {
			return nil, fmt.Errorf("row %d: invalid year: %w", line, err)
		}
		if v := cell(colInvestmentYear); v != "" {
			if check.InvestmentYear, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("row %d: invalid investment_year: %w", line, err)
			}
		}
		if check.Expected, err = decimal.NewFromString(strings.ReplaceAll(cell(colExpected), ",", "")); err != nil {
			return nil, fmt.Errorf("row %d: invalid expected amount: %w", line, err)
		}
		checks = append(checks, check)
	}
	return checks, nil
}
