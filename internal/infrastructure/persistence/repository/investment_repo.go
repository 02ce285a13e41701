package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/infrastructure/persistence/sqlite"
)

// Investments in this status have transferred their funds and owe yearly management fees
const managedInvestmentStatus = entity.InvestmentStatusTransferred

const investmentSelect = `
	SELECT i.id, i.investor_id, i.committed_amount, i.fees_percentage,
		i.subscription_agreement_signed_date, i.creation_datetime, i.status,
		f.id, f.name, f.currency, f.startup_name, f.startup_is_fund
	FROM investments i
	JOIN fundraisings f ON f.id = i.fundraising_id`

// InvestmentRepository implements port.InvestmentRepository
type InvestmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvestmentRepository creates a new investment repository
func NewInvestmentRepository(db *sql.DB, logger *zap.Logger) port.InvestmentRepository {
	return &InvestmentRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an investment with its fundraising
func (r *InvestmentRepository) GetByID(ctx context.Context, id int64) (*entity.Investment, error) {
	investment, err := scanInvestment(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, investmentSelect+` WHERE i.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get investment by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return investment, nil
}

// ListManaged retrieves every investment owing management fees
func (r *InvestmentRepository) ListManaged(ctx context.Context) ([]*entity.Investment, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx,
		investmentSelect+` WHERE i.status = ? ORDER BY i.id`, managedInvestmentStatus)
	if err != nil {
		r.logger.Error("Failed to list managed investments", zap.Error(err))
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	defer rows.Close()

	var investments []*entity.Investment
	for rows.Next() {
		investment, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, investment)
	}
	return investments, rows.Err()
}

// UpdateStatus records a status mark on an investment
func (r *InvestmentRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE investments SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		r.logger.Error("Failed to update investment status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update investment status: %w", err)
	}
	return requireAffected(result, "investment", id)
}

func scanInvestment(row rowScanner) (*entity.Investment, error) {
	var (
		investment entity.Investment
		signedAt   sql.NullTime
		createdAt  sql.NullTime
	)

	err := row.Scan(
		&investment.ID,
		&investment.InvestorID,
		&investment.CommittedAmount,
		&investment.FeesPercentage,
		&signedAt,
		&createdAt,
		&investment.Status,
		&investment.Fundraising.ID,
		&investment.Fundraising.Name,
		&investment.Fundraising.Currency,
		&investment.Fundraising.StartupName,
		&investment.Fundraising.StartupIsFund,
	)
	if err != nil {
		return nil, err
	}

	investment.SignedAt = timePtr(signedAt)
	investment.CreatedAt = timePtr(createdAt)
	return &investment, nil
}

// Verify interface compliance
var _ port.InvestmentRepository = (*InvestmentRepository)(nil)
