package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
	"github.com/garyjia/investment-billing/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/investment-billing/migrations"
	"github.com/garyjia/investment-billing/pkg/database"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "billing.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrationsFS(migrations.FS))
	return db.DB
}

// seedInvestorRows inserts a linked investor with an owner, a KYC and EUR/USD wallets
func seedInvestorRows(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	exec := func(query string, args ...interface{}) int64 {
		res, err := db.Exec(query, args...)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}

	ownerID := exec(`INSERT INTO users (email, first_name, last_name, preferred_language) VALUES (?, ?, ?, ?)`,
		"jane@example.com", "Jane", "Doe", "FR")
	kycID := exec(`INSERT INTO kycs (type, first_name, last_name, mangopay_relation) VALUES (?, ?, ?, ?)`,
		"natural", "Jane", "Doe", "kyc-1")
	investorID := exec(`INSERT INTO investors (name, status, community_fee, mangopay_user_id, owner_id, kyc_id)
		VALUES (?, ?, ?, ?, ?, ?)`, "Jane Capital", "active", true, "user-1", ownerID, kycID)
	exec(`INSERT INTO wallets (investor_id, currency, mangopay_wallet_id) VALUES (?, ?, ?)`, investorID, "EUR", "wallet-eur")
	exec(`INSERT INTO wallets (investor_id, currency, mangopay_wallet_id) VALUES (?, ?, ?)`, investorID, "USD", "")
	return investorID
}

// seedInvestmentRow inserts a 10000 EUR investment at 5% with the given status
func seedInvestmentRow(t *testing.T, db *sql.DB, investorID int64, status string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO fundraisings (name, currency, startup_name, startup_is_fund) VALUES (?, ?, ?, ?)`,
		"Seed Round", "EUR", "Acme", false)
	require.NoError(t, err)
	fundraisingID, err := res.LastInsertId()
	require.NoError(t, err)

	signed := time.Date(2020, time.January, 10, 0, 0, 0, 0, time.UTC)
	res, err = db.Exec(`INSERT INTO investments (investor_id, fundraising_id, committed_amount, fees_percentage,
		subscription_agreement_signed_date, status) VALUES (?, ?, ?, ?, ?, ?)`,
		investorID, fundraisingID, "10000", "5", signed, status)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestBillRepository_CRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	investorID := seedInvestorRows(t, db)
	investmentID := seedInvestmentRow(t, db, investorID, "committed")
	repo := NewBillRepository(db, zap.NewNop())

	bill := entity.NewBill(entity.BillTypeUpfrontFees, 2021, d("10000.50"))
	bill.FeesAmountDue = d("500.03")
	bill.DeprecatedNumber = "2021_UF_0000001"
	bill.CCEmails = []string{"ops@example.com"}
	bill.InvestmentID = &investmentID
	bill.InvestorID = &investorID
	require.NoError(t, repo.Create(ctx, bill))
	require.NotZero(t, bill.ID)

	got, err := repo.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.BillTypeUpfrontFees, got.Type)
	assert.Equal(t, 2021, got.Year)
	assert.True(t, got.AmountDue.Equal(d("10000.50")))
	assert.True(t, got.FeesAmountDue.Equal(d("500.03")))
	assert.Equal(t, workflow.StateCreated, got.Status)
	assert.Equal(t, "2021_UF_0000001", got.DeprecatedNumber)
	assert.Equal(t, []string{"ops@example.com"}, got.CCEmails)
	require.NotNil(t, got.InvestmentID)
	assert.Equal(t, investmentID, *got.InvestmentID)
	assert.Nil(t, got.LastSent)

	status, err := repo.GetStatus(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCreated, status)

	got.Status = workflow.StatePending
	got.InvoiceNumber = "2021_UF_0000000"
	got.File = "bills/1/invoice.xlsx"
	got.TemplateID = 501
	got.InvestmentID = nil
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, updated.Status)
	assert.Equal(t, "2021_UF_0000000", updated.InvoiceNumber)
	assert.Equal(t, "bills/1/invoice.xlsx", updated.File)
	assert.Equal(t, int64(501), updated.TemplateID)
	assert.Nil(t, updated.InvestmentID)

	sent := time.Date(2021, time.June, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastSent(ctx, bill.ID, sent))
	stamped, err := repo.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	require.NotNil(t, stamped.LastSent)
	assert.True(t, stamped.LastSent.Equal(sent))
}

func TestBillRepository_Missing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewBillRepository(db, zap.NewNop())

	got, err := repo.GetByID(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, got)

	status, err := repo.GetStatus(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, status)

	missing := entity.NewBill(entity.BillTypeUpfrontFees, 2021, d("1"))
	missing.ID = 404
	assert.ErrorIs(t, repo.Update(ctx, missing), entity.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateLastSent(ctx, 404, time.Now()), entity.ErrNotFound)
}

func TestBillRepository_Counts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	investorID := seedInvestorRows(t, db)
	investmentID := seedInvestmentRow(t, db, investorID, "transferred")
	repo := NewBillRepository(db, zap.NewNop())

	create := func(billType entity.BillType, year int, number string) {
		bill := entity.NewBill(billType, year, d("100"))
		bill.InvoiceNumber = number
		bill.InvestmentID = &investmentID
		require.NoError(t, repo.Create(ctx, bill))
	}
	create(entity.BillTypeUpfrontFees, 2021, "2021_UF_0000000")
	create(entity.BillTypeUpfrontFees, 2021, "")
	create(entity.BillTypeUpfrontFees, 2020, "2020_UF_0000000")
	create(entity.BillTypeManagementFees, 2021, "")

	count, err := repo.CountByType(ctx, entity.BillTypeUpfrontFees)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	numbered, err := repo.CountNumbered(ctx, entity.BillTypeUpfrontFees, 2021)
	require.NoError(t, err)
	assert.Equal(t, 1, numbered)

	exists, err := repo.ExistsForInvestment(ctx, investmentID, entity.BillTypeManagementFees, 2021)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForInvestment(ctx, investmentID, entity.BillTypeManagementFees, 2022)
	require.NoError(t, err)
	assert.False(t, exists)

	bills, err := repo.List(ctx, port.BillFilter{Type: entity.BillTypeUpfrontFees, Year: 2021})
	require.NoError(t, err)
	assert.Len(t, bills, 2)

	page, err := repo.List(ctx, port.BillFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 2020, page[0].Year)
}

func TestCashCallRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bills := NewBillRepository(db, zap.NewNop())
	repo := NewCashCallRepository(db, zap.NewNop())

	bill := entity.NewBill(entity.BillTypeUpfrontFees, 2021, d("10000"))
	bill.FeesAmountDue = d("500")
	require.NoError(t, bills.Create(ctx, bill))

	cc := entity.NewCashCall(bill)
	require.NoError(t, repo.Create(ctx, cc))
	require.NotZero(t, cc.ID)

	got, err := repo.GetByID(ctx, cc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.BillID)
	assert.Equal(t, bill.ID, *got.BillID)
	assert.True(t, got.CommittedAmount.Equal(d("10000")))
	assert.True(t, got.FeesAmount.Equal(d("500")))
	assert.Equal(t, workflow.StateCreated, got.Status)
	assert.Nil(t, got.Response)

	awaiting, err := repo.ListAwaitingPayment(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	got.Status = workflow.StatePending
	got.PayInID = "payin-1"
	got.Response = []byte(`{"wire_reference":"WIRE-1"}`)
	require.NoError(t, repo.Update(ctx, got))

	byPayIn, err := repo.GetByPayInID(ctx, "payin-1")
	require.NoError(t, err)
	require.NotNil(t, byPayIn)
	assert.Equal(t, cc.ID, byPayIn.ID)
	assert.Equal(t, "WIRE-1", byPayIn.WireReference())

	none, err := repo.GetByPayInID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	awaiting, err = repo.ListAwaitingPayment(ctx, 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)

	calls, err := repo.ListByBillID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Len(t, calls, 1)

	sent := time.Date(2021, time.June, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastSent(ctx, cc.ID, sent))
	stamped, err := repo.GetByID(ctx, cc.ID)
	require.NoError(t, err)
	require.NotNil(t, stamped.LastSent)
	assert.True(t, stamped.LastSent.Equal(sent))
	assert.Equal(t, workflow.StatePending, stamped.Status)
}

func TestInvestmentRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	investorID := seedInvestorRows(t, db)
	committed := seedInvestmentRow(t, db, investorID, "committed")
	transferred := seedInvestmentRow(t, db, investorID, entity.InvestmentStatusTransferred)
	repo := NewInvestmentRepository(db, zap.NewNop())

	got, err := repo.GetByID(ctx, committed)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, investorID, got.InvestorID)
	assert.True(t, got.CommittedAmount.Equal(d("10000")))
	assert.True(t, got.FeesPercentage.Equal(d("5")))
	assert.Equal(t, "Seed Round", got.Fundraising.Name)
	assert.Equal(t, "EUR", got.Fundraising.Currency)
	assert.Equal(t, "Acme", got.Fundraising.StartupName)
	date, ok := got.InvestDate()
	require.True(t, ok)
	assert.Equal(t, 2020, date.Year())
	assert.Nil(t, got.CreatedAt)

	managed, err := repo.ListManaged(ctx)
	require.NoError(t, err)
	require.Len(t, managed, 1)
	assert.Equal(t, transferred, managed[0].ID)

	require.NoError(t, repo.UpdateStatus(ctx, committed, entity.InvestmentStatusCashCalled))
	got, err = repo.GetByID(ctx, committed)
	require.NoError(t, err)
	assert.Equal(t, entity.InvestmentStatusCashCalled, got.Status)

	missing, err := repo.GetByID(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, 404, "x"), entity.ErrNotFound)
}

func TestInvestorRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	investorID := seedInvestorRows(t, db)
	repo := NewInvestorRepository(db, zap.NewNop())

	got, err := repo.GetByID(ctx, investorID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jane Capital", got.Name)
	assert.True(t, got.CommunityFee)
	assert.False(t, got.AdvancedInvestmentFee)
	assert.Equal(t, "user-1", got.PaymentUserID)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "jane@example.com", got.Owner.Email)
	assert.Equal(t, "FR", got.OwnerLanguage())
	require.NotNil(t, got.KYC)
	assert.Equal(t, entity.KYCTypeNatural, got.KYC.Type)
	assert.Equal(t, "kyc-1", got.KYC.PaymentAccountID)
	require.Len(t, got.Wallets, 2)
	assert.Equal(t, "wallet-eur", got.WalletFor("EUR").PaymentWalletID)
	assert.Empty(t, got.WalletFor("USD").PaymentWalletID)

	require.NoError(t, repo.UpdateStatus(ctx, investorID, entity.InvestorStatusOnTrial))
	require.NoError(t, repo.UpdateTrialPeriodStatus(ctx, investorID, entity.TrialPeriodPendingPayment))
	got, err = repo.GetByID(ctx, investorID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvestorStatusOnTrial, got.Status)
	assert.Equal(t, entity.TrialPeriodPendingPayment, got.TrialPeriodStatus)

	_, err = db.Exec(`INSERT INTO investors (name) VALUES (?)`, "Bare")
	require.NoError(t, err)
	bare, err := repo.GetByID(ctx, investorID+1)
	require.NoError(t, err)
	require.NotNil(t, bare)
	assert.Nil(t, bare.Owner)
	assert.Nil(t, bare.KYC)
	assert.Empty(t, bare.Wallets)

	missing, err := repo.GetByID(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositories_JoinTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	txManager := sqlite.NewDB(db, zap.NewNop())
	bills := NewBillRepository(db, zap.NewNop())
	calls := NewCashCallRepository(db, zap.NewNop())

	errAbort := errors.New("abort")
	var billID int64
	err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		bill := entity.NewBill(entity.BillTypeUpfrontFees, 2021, d("100"))
		if err := bills.Create(txCtx, bill); err != nil {
			return err
		}
		billID = bill.ID

		return txManager.WithTransaction(txCtx, func(nested context.Context) error {
			if err := calls.Create(nested, entity.NewCashCall(bill)); err != nil {
				return err
			}
			return errAbort
		})
	})
	assert.ErrorIs(t, err, errAbort)

	got, err := bills.GetByID(ctx, billID)
	require.NoError(t, err)
	assert.Nil(t, got, "rolled back bill is gone")

	calls2, err := calls.ListByBillID(ctx, billID)
	require.NoError(t, err)
	assert.Empty(t, calls2)

	err = txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return bills.Create(txCtx, entity.NewBill(entity.BillTypeUpfrontFees, 2021, d("100")))
	})
	require.NoError(t, err)
	count, err := bills.CountByType(ctx, entity.BillTypeUpfrontFees)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
