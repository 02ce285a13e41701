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

// nullUser and nullKYC receive the LEFT JOINed owner and KYC columns
type nullUser struct {
	id        sql.NullInt64
	email     sql.NullString
	firstName sql.NullString
	lastName  sql.NullString
	lang      sql.NullString
}

type nullKYC struct {
	id        sql.NullInt64
	kind      sql.NullString
	firstName sql.NullString
	lastName  sql.NullString
	email     sql.NullString
	address   sql.NullString
	relation  sql.NullString
}

// InvestorRepository implements port.InvestorRepository
type InvestorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvestorRepository creates a new investor repository
func NewInvestorRepository(db *sql.DB, logger *zap.Logger) port.InvestorRepository {
	return &InvestorRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an investor with its owner, KYC and wallets
func (r *InvestorRepository) GetByID(ctx context.Context, id int64) (*entity.Investor, error) {
	query := `
		SELECT inv.id, inv.name, inv.status, inv.trial_period_status,
			inv.community_fee, inv.advanced_investment_fee, inv.distributor_name,
			inv.mangopay_user_id,
			u.id, u.email, u.first_name, u.last_name, u.preferred_language,
			k.id, k.type, k.first_name, k.last_name, k.email, k.address, k.mangopay_relation
		FROM investors inv
		LEFT JOIN users u ON u.id = inv.owner_id
		LEFT JOIN kycs k ON k.id = inv.kyc_id
		WHERE inv.id = ?
	`

	var (
		investor entity.Investor
		owner    nullUser
		kyc      nullKYC
	)

	exec := sqlite.Executor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, id).Scan(
		&investor.ID,
		&investor.Name,
		&investor.Status,
		&investor.TrialPeriodStatus,
		&investor.CommunityFee,
		&investor.AdvancedInvestmentFee,
		&investor.DistributorName,
		&investor.PaymentUserID,
		&owner.id,
		&owner.email,
		&owner.firstName,
		&owner.lastName,
		&owner.lang,
		&kyc.id,
		&kyc.kind,
		&kyc.firstName,
		&kyc.lastName,
		&kyc.email,
		&kyc.address,
		&kyc.relation,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get investor by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get investor: %w", err)
	}

	if owner.id.Valid {
		investor.Owner = &entity.User{
			ID:        owner.id.Int64,
			Email:     owner.email.String,
			FirstName: owner.firstName.String,
			LastName:  owner.lastName.String,
			Language:  owner.lang.String,
		}
	}
	if kyc.id.Valid {
		investor.KYC = &entity.KYC{
			ID:               kyc.id.Int64,
			Type:             entity.KYCType(kyc.kind.String),
			FirstName:        kyc.firstName.String,
			LastName:         kyc.lastName.String,
			Email:            kyc.email.String,
			Address:          kyc.address.String,
			PaymentAccountID: kyc.relation.String,
		}
	}

	wallets, err := r.wallets(ctx, id)
	if err != nil {
		return nil, err
	}
	investor.Wallets = wallets
	return &investor, nil
}

func (r *InvestorRepository) wallets(ctx context.Context, investorID int64) ([]entity.Wallet, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx,
		`SELECT id, currency, mangopay_wallet_id FROM wallets WHERE investor_id = ? ORDER BY id`, investorID)
	if err != nil {
		r.logger.Error("Failed to list wallets", zap.Int64("investor_id", investorID), zap.Error(err))
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []entity.Wallet
	for rows.Next() {
		var w entity.Wallet
		if err := rows.Scan(&w.ID, &w.Currency, &w.PaymentWalletID); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// UpdateStatus sets the investor status
func (r *InvestorRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.updateColumn(ctx, "status", id, status)
}

// UpdateTrialPeriodStatus sets the membership trial marker
func (r *InvestorRepository) UpdateTrialPeriodStatus(ctx context.Context, id int64, status string) error {
	return r.updateColumn(ctx, "trial_period_status", id, status)
}

// updateColumn writes one of the investor status columns; column is never user input
func (r *InvestorRepository) updateColumn(ctx context.Context, column string, id int64, value string) error {
	query := fmt.Sprintf(`UPDATE investors SET %s = ? WHERE id = ?`, column)

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, value, id)
	if err != nil {
		r.logger.Error("Failed to update investor",
			zap.Int64("id", id),
			zap.String("column", column),
			zap.Error(err))
		return fmt.Errorf("failed to update investor %s: %w", column, err)
	}
	return requireAffected(result, "investor", id)
}

// Verify interface compliance
var _ port.InvestorRepository = (*InvestorRepository)(nil)
