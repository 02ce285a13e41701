package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
	"github.com/garyjia/investment-billing/internal/infrastructure/persistence/sqlite"
)

const cashCallColumns = `
	id, bill_id, committed_amount, fees_amount, status,
	mangopay_payin_id, response, last_sent, created_at, updated_at`

// CashCallRepository implements port.CashCallRepository
type CashCallRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCashCallRepository creates a new cash call repository
func NewCashCallRepository(db *sql.DB, logger *zap.Logger) port.CashCallRepository {
	return &CashCallRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a cash call and sets its ID
func (r *CashCallRepository) Create(ctx context.Context, cc *entity.CashCall) error {
	query := `
		INSERT INTO cashcalls (
			bill_id, committed_amount, fees_amount, status,
			mangopay_payin_id, response, last_sent
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		nullInt64(cc.BillID),
		cc.CommittedAmount,
		cc.FeesAmount,
		string(cc.Status),
		cc.PayInID,
		string(cc.Response),
		nullTime(cc.LastSent),
	)
	if err != nil {
		r.logger.Error("Failed to create cash call", zap.Error(err))
		return fmt.Errorf("failed to create cash call: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	cc.ID = id
	return nil
}

// GetByID retrieves a cash call by ID
func (r *CashCallRepository) GetByID(ctx context.Context, id int64) (*entity.CashCall, error) {
	query := `SELECT ` + cashCallColumns + ` FROM cashcalls WHERE id = ?`

	cc, err := scanCashCall(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get cash call by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get cash call: %w", err)
	}
	return cc, nil
}

// GetByPayInID retrieves the cash call a pay-in was submitted for
func (r *CashCallRepository) GetByPayInID(ctx context.Context, payInID string) (*entity.CashCall, error) {
	if payInID == "" {
		return nil, nil
	}
	query := `SELECT ` + cashCallColumns + ` FROM cashcalls WHERE mangopay_payin_id = ? ORDER BY id LIMIT 1`

	cc, err := scanCashCall(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, payInID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get cash call by pay-in", zap.String("payin_id", payInID), zap.Error(err))
		return nil, fmt.Errorf("failed to get cash call: %w", err)
	}
	return cc, nil
}

// ListByBillID retrieves the cash calls of a bill ordered by ID
func (r *CashCallRepository) ListByBillID(ctx context.Context, billID int64) ([]*entity.CashCall, error) {
	query := `SELECT ` + cashCallColumns + ` FROM cashcalls WHERE bill_id = ? ORDER BY id`
	return r.list(ctx, query, billID)
}

// ListAwaitingPayment retrieves PENDING cash calls that carry a pay-in, oldest first
func (r *CashCallRepository) ListAwaitingPayment(ctx context.Context, limit int) ([]*entity.CashCall, error) {
	query := `SELECT ` + cashCallColumns + ` FROM cashcalls
		WHERE status = ? AND mangopay_payin_id != ''
		ORDER BY id`
	args := []interface{}{string(workflow.StatePending)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r *CashCallRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.CashCall, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list cash calls", zap.Error(err))
		return nil, fmt.Errorf("failed to list cash calls: %w", err)
	}
	defer rows.Close()

	var calls []*entity.CashCall
	for rows.Next() {
		cc, err := scanCashCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash call: %w", err)
		}
		calls = append(calls, cc)
	}
	return calls, rows.Err()
}

// Update overwrites every mutable column of a cash call
func (r *CashCallRepository) Update(ctx context.Context, cc *entity.CashCall) error {
	query := `
		UPDATE cashcalls SET
			bill_id = ?, committed_amount = ?, fees_amount = ?, status = ?,
			mangopay_payin_id = ?, response = ?, last_sent = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		nullInt64(cc.BillID),
		cc.CommittedAmount,
		cc.FeesAmount,
		string(cc.Status),
		cc.PayInID,
		string(cc.Response),
		nullTime(cc.LastSent),
		cc.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update cash call", zap.Int64("id", cc.ID), zap.Error(err))
		return fmt.Errorf("failed to update cash call: %w", err)
	}
	return requireAffected(result, "cash call", cc.ID)
}

// UpdateLastSent stamps last_sent without touching any other column
func (r *CashCallRepository) UpdateLastSent(ctx context.Context, id int64, t time.Time) error {
	query := `UPDATE cashcalls SET last_sent = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, t, id)
	if err != nil {
		r.logger.Error("Failed to update cash call last_sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update cash call last_sent: %w", err)
	}
	return requireAffected(result, "cash call", id)
}

func scanCashCall(row rowScanner) (*entity.CashCall, error) {
	var (
		cc       entity.CashCall
		billID   sql.NullInt64
		status   string
		response string
		lastSent sql.NullTime
	)

	err := row.Scan(
		&cc.ID,
		&billID,
		&cc.CommittedAmount,
		&cc.FeesAmount,
		&status,
		&cc.PayInID,
		&response,
		&lastSent,
		&cc.CreatedAt,
		&cc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cc.BillID = int64Ptr(billID)
	cc.Status = workflow.State(status)
	cc.LastSent = timePtr(lastSent)
	if response != "" {
		cc.Response = []byte(response)
	}
	return &cc, nil
}

// Verify interface compliance
var _ port.CashCallRepository = (*CashCallRepository)(nil)
