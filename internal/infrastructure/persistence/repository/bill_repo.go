package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
	"github.com/garyjia/investment-billing/internal/infrastructure/persistence/sqlite"
)

const billColumns = `
	id, invoice_number, invoice_number_deprecated, type, year,
	amount_due, fees_amount_due, status, last_sent, file, template_id,
	investor_name, cc_emails, investment_id, investor_id,
	created_at, updated_at`

// BillRepository implements port.BillRepository
type BillRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBillRepository creates a new bill repository
func NewBillRepository(db *sql.DB, logger *zap.Logger) port.BillRepository {
	return &BillRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a bill and sets its ID
func (r *BillRepository) Create(ctx context.Context, bill *entity.Bill) error {
	query := `
		INSERT INTO bills (
			invoice_number, invoice_number_deprecated, type, year,
			amount_due, fees_amount_due, status, last_sent, file, template_id,
			investor_name, cc_emails, investment_id, investor_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ccEmails, err := marshalEmails(bill.CCEmails)
	if err != nil {
		return err
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		bill.InvoiceNumber,
		bill.DeprecatedNumber,
		string(bill.Type),
		bill.Year,
		bill.AmountDue,
		bill.FeesAmountDue,
		string(bill.Status),
		nullTime(bill.LastSent),
		bill.File,
		bill.TemplateID,
		bill.InvestorName,
		ccEmails,
		nullInt64(bill.InvestmentID),
		nullInt64(bill.InvestorID),
	)
	if err != nil {
		r.logger.Error("Failed to create bill", zap.String("type", string(bill.Type)), zap.Error(err))
		return fmt.Errorf("failed to create bill: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	bill.ID = id
	return nil
}

// GetByID retrieves a bill by ID
func (r *BillRepository) GetByID(ctx context.Context, id int64) (*entity.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = ?`

	bill, err := scanBill(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get bill by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return bill, nil
}

// GetStatus returns the stored status of a bill, empty when it does not exist
func (r *BillRepository) GetStatus(ctx context.Context, id int64) (workflow.State, error) {
	var status string
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, `SELECT status FROM bills WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get bill status: %w", err)
	}
	return workflow.State(status), nil
}

// Update overwrites every mutable column of a bill
func (r *BillRepository) Update(ctx context.Context, bill *entity.Bill) error {
	query := `
		UPDATE bills SET
			invoice_number = ?, invoice_number_deprecated = ?, type = ?, year = ?,
			amount_due = ?, fees_amount_due = ?, status = ?, last_sent = ?, file = ?,
			template_id = ?, investor_name = ?, cc_emails = ?, investment_id = ?,
			investor_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	ccEmails, err := marshalEmails(bill.CCEmails)
	if err != nil {
		return err
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		bill.InvoiceNumber,
		bill.DeprecatedNumber,
		string(bill.Type),
		bill.Year,
		bill.AmountDue,
		bill.FeesAmountDue,
		string(bill.Status),
		nullTime(bill.LastSent),
		bill.File,
		bill.TemplateID,
		bill.InvestorName,
		ccEmails,
		nullInt64(bill.InvestmentID),
		nullInt64(bill.InvestorID),
		bill.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update bill", zap.Int64("id", bill.ID), zap.Error(err))
		return fmt.Errorf("failed to update bill: %w", err)
	}
	return requireAffected(result, "bill", bill.ID)
}

// UpdateLastSent stamps last_sent without touching any other column
func (r *BillRepository) UpdateLastSent(ctx context.Context, id int64, t time.Time) error {
	query := `UPDATE bills SET last_sent = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, t, id)
	if err != nil {
		r.logger.Error("Failed to update bill last_sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update bill last_sent: %w", err)
	}
	return requireAffected(result, "bill", id)
}

// CountByType counts every bill of billType
func (r *BillRepository) CountByType(ctx context.Context, billType entity.BillType) (int, error) {
	var count int
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bills WHERE type = ?`, string(billType)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bills: %w", err)
	}
	return count, nil
}

// CountNumbered counts bills of billType and year that already carry an invoice number
func (r *BillRepository) CountNumbered(ctx context.Context, billType entity.BillType, year int) (int, error) {
	var count int
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bills WHERE type = ? AND year = ? AND invoice_number != ''`,
		string(billType), year).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count numbered bills: %w", err)
	}
	return count, nil
}

// ExistsForInvestment reports whether the investment already has a bill of billType for year
func (r *BillRepository) ExistsForInvestment(ctx context.Context, investmentID int64, billType entity.BillType, year int) (bool, error) {
	var exists bool
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bills WHERE investment_id = ? AND type = ? AND year = ?)`,
		investmentID, string(billType), year).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing bill: %w", err)
	}
	return exists, nil
}

// List retrieves bills matching filter ordered by ID
func (r *BillRepository) List(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + billColumns + ` FROM bills`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list bills", zap.Error(err))
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	var bills []*entity.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

func scanBill(row rowScanner) (*entity.Bill, error) {
	var (
		bill         entity.Bill
		billType     string
		status       string
		lastSent     sql.NullTime
		ccEmails     string
		investmentID sql.NullInt64
		investorID   sql.NullInt64
	)

	err := row.Scan(
		&bill.ID,
		&bill.InvoiceNumber,
		&bill.DeprecatedNumber,
		&billType,
		&bill.Year,
		&bill.AmountDue,
		&bill.FeesAmountDue,
		&status,
		&lastSent,
		&bill.File,
		&bill.TemplateID,
		&bill.InvestorName,
		&ccEmails,
		&investmentID,
		&investorID,
		&bill.CreatedAt,
		&bill.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	bill.Type = entity.BillType(billType)
	bill.Status = workflow.State(status)
	bill.LastSent = timePtr(lastSent)
	bill.InvestmentID = int64Ptr(investmentID)
	bill.InvestorID = int64Ptr(investorID)
	if ccEmails != "" {
		if err := json.Unmarshal([]byte(ccEmails), &bill.CCEmails); err != nil {
			return nil, fmt.Errorf("failed to decode cc_emails of bill %d: %w", bill.ID, err)
		}
	}
	return &bill, nil
}

func marshalEmails(emails []string) (string, error) {
	if emails == nil {
		emails = []string{}
	}
	raw, err := json.Marshal(emails)
	if err != nil {
		return "", fmt.Errorf("failed to encode cc_emails: %w", err)
	}
	return string(raw), nil
}

// Verify interface compliance
var _ port.BillRepository = (*BillRepository)(nil)
