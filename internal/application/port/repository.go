package port

import (
	"context"
	"time"

	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

// BillFilter narrows bill listings. Zero values are ignored.
type BillFilter struct {
	Type   entity.BillType
	Year   int
	Status workflow.State
	Limit  int
	Offset int
}

// BillRepository defines persistence operations for Bill.
// Getters return (nil, nil) when the record does not exist.
type BillRepository interface {
	Create(ctx context.Context, bill *entity.Bill) error
	GetByID(ctx context.Context, id int64) (*entity.Bill, error)
	GetStatus(ctx context.Context, id int64) (workflow.State, error)
	Update(ctx context.Context, bill *entity.Bill) error
	UpdateLastSent(ctx context.Context, id int64, t time.Time) error
	CountByType(ctx context.Context, billType entity.BillType) (int, error)
	CountNumbered(ctx context.Context, billType entity.BillType, year int) (int, error)
	ExistsForInvestment(ctx context.Context, investmentID int64, billType entity.BillType, year int) (bool, error)
	List(ctx context.Context, filter BillFilter) ([]*entity.Bill, error)
}

// CashCallRepository defines persistence operations for CashCall
type CashCallRepository interface {
	Create(ctx context.Context, cc *entity.CashCall) error
	GetByID(ctx context.Context, id int64) (*entity.CashCall, error)
	GetByPayInID(ctx context.Context, payInID string) (*entity.CashCall, error)
	ListByBillID(ctx context.Context, billID int64) ([]*entity.CashCall, error)
	ListAwaitingPayment(ctx context.Context, limit int) ([]*entity.CashCall, error)
	Update(ctx context.Context, cc *entity.CashCall) error
	UpdateLastSent(ctx context.Context, id int64, t time.Time) error
}

// InvestmentRepository reads investments and records status marks on them
type InvestmentRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Investment, error)
	ListManaged(ctx context.Context) ([]*entity.Investment, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// InvestorRepository reads investors with their owner, KYC and wallets
type InvestorRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Investor, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateTrialPeriodStatus(ctx context.Context, id int64, status string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
