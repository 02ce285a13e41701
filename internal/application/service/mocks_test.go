package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/currency"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/event"
	"github.com/garyjia/investment-billing/internal/domain/fees"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var errStoreFailure = errors.New("store failure")

// memStore keeps every aggregate in memory and rolls back on transaction failure
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	bills       map[int64]*entity.Bill
	cashCalls   map[int64]*entity.CashCall
	investments map[int64]*entity.Investment
	investors   map[int64]*entity.Investor

	failCashCallUpdate bool
	failCashCallCreate bool
}

type txKey struct{}

func newMemStore() *memStore {
	return &memStore{
		bills:       make(map[int64]*entity.Bill),
		cashCalls:   make(map[int64]*entity.CashCall),
		investments: make(map[int64]*entity.Investment),
		investors:   make(map[int64]*entity.Investor),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	bills := copyMap(m.bills)
	cashCalls := copyMap(m.cashCalls)
	investments := copyMap(m.investments)
	investors := copyMap(m.investors)
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.bills, m.cashCalls, m.investments, m.investors = bills, cashCalls, investments, investors
		m.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[T any](src map[int64]*T) map[int64]*T {
	dst := make(map[int64]*T, len(src))
	for k, v := range src {
		c := *v
		dst[k] = &c
	}
	return dst
}

func (m *memStore) bill(id int64) *entity.Bill {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bills[id]; ok {
		c := *b
		return &c
	}
	return nil
}

func (m *memStore) cashCall(id int64) *entity.CashCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cc, ok := m.cashCalls[id]; ok {
		c := *cc
		return &c
	}
	return nil
}

func (m *memStore) investment(id int64) *entity.Investment {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *m.investments[id]
	return &c
}

func (m *memStore) investor(id int64) *entity.Investor {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *m.investors[id]
	return &c
}

func (m *memStore) putCashCall(cc *entity.CashCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cc
	m.cashCalls[cc.ID] = &c
}

func (m *memStore) putBill(b *entity.Bill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *b
	m.bills[b.ID] = &c
}

func (m *memStore) repositories() Repositories {
	return Repositories{
		Bills:       memBills{m},
		CashCalls:   memCashCalls{m},
		Investments: memInvestments{m},
		Investors:   memInvestors{m},
	}
}

type memBills struct{ *memStore }

func (r memBills) Create(ctx context.Context, bill *entity.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bill.ID = r.id()
	c := *bill
	r.bills[bill.ID] = &c
	return nil
}

func (r memBills) GetByID(ctx context.Context, id int64) (*entity.Bill, error) {
	return r.bill(id), nil
}

func (r memBills) GetStatus(ctx context.Context, id int64) (workflow.State, error) {
	if b := r.bill(id); b != nil {
		return b.Status, nil
	}
	return "", nil
}

func (r memBills) Update(ctx context.Context, bill *entity.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bills[bill.ID]; !ok {
		return errStoreFailure
	}
	c := *bill
	r.bills[bill.ID] = &c
	return nil
}

func (r memBills) UpdateLastSent(ctx context.Context, id int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bills[id].LastSent = &t
	return nil
}

func (r memBills) CountByType(ctx context.Context, billType entity.BillType) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bills {
		if b.Type == billType {
			n++
		}
	}
	return n, nil
}

func (r memBills) CountNumbered(ctx context.Context, billType entity.BillType, year int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bills {
		if b.Type == billType && b.Year == year && b.InvoiceNumber != "" {
			n++
		}
	}
	return n, nil
}

func (r memBills) ExistsForInvestment(ctx context.Context, investmentID int64, billType entity.BillType, year int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		if b.InvestmentID != nil && *b.InvestmentID == investmentID && b.Type == billType && b.Year == year {
			return true, nil
		}
	}
	return false, nil
}

func (r memBills) List(ctx context.Context, filter port.BillFilter) ([]*entity.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Bill
	for _, b := range r.bills {
		if filter.Type != "" && b.Type != filter.Type {
			continue
		}
		if filter.Year != 0 && b.Year != filter.Year {
			continue
		}
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memCashCalls struct{ *memStore }

func (r memCashCalls) Create(ctx context.Context, cc *entity.CashCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCashCallCreate {
		return errStoreFailure
	}
	cc.ID = r.id()
	c := *cc
	r.cashCalls[cc.ID] = &c
	return nil
}

func (r memCashCalls) GetByID(ctx context.Context, id int64) (*entity.CashCall, error) {
	return r.cashCall(id), nil
}

func (r memCashCalls) GetByPayInID(ctx context.Context, payInID string) (*entity.CashCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cc := range r.cashCalls {
		if cc.PayInID == payInID {
			c := *cc
			return &c, nil
		}
	}
	return nil, nil
}

func (r memCashCalls) ListByBillID(ctx context.Context, billID int64) ([]*entity.CashCall, error) {
	return r.list(func(cc *entity.CashCall) bool {
		return cc.BillID != nil && *cc.BillID == billID
	}), nil
}

func (r memCashCalls) ListAwaitingPayment(ctx context.Context, limit int) ([]*entity.CashCall, error) {
	out := r.list(func(cc *entity.CashCall) bool {
		return cc.Status == workflow.StatePending && cc.PayInID != ""
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memCashCalls) list(keep func(*entity.CashCall) bool) []*entity.CashCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.CashCall
	for _, cc := range r.cashCalls {
		if keep(cc) {
			c := *cc
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memCashCalls) Update(ctx context.Context, cc *entity.CashCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCashCallUpdate {
		return errStoreFailure
	}
	c := *cc
	r.cashCalls[cc.ID] = &c
	return nil
}

func (r memCashCalls) UpdateLastSent(ctx context.Context, id int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cashCalls[id].LastSent = &t
	return nil
}

type memInvestments struct{ *memStore }

func (r memInvestments) GetByID(ctx context.Context, id int64) (*entity.Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.investments[id]; ok {
		c := *inv
		return &c, nil
	}
	return nil, nil
}

func (r memInvestments) ListManaged(ctx context.Context) ([]*entity.Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Investment
	for _, inv := range r.investments {
		c := *inv
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memInvestments) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.investments[id]; ok {
		inv.Status = status
	}
	return nil
}

type memInvestors struct{ *memStore }

func (r memInvestors) GetByID(ctx context.Context, id int64) (*entity.Investor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.investors[id]; ok {
		c := *inv
		return &c, nil
	}
	return nil, nil
}

func (r memInvestors) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.investors[id].Status = status
	return nil
}

func (r memInvestors) UpdateTrialPeriodStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.investors[id].TrialPeriodStatus = status
	return nil
}

type mockGateway struct {
	submitFunc func(ctx context.Context, req port.PayInRequest) (*port.PayInResult, error)
	getFunc    func(ctx context.Context, id string) (*port.PayInResult, error)
	submitted  []port.PayInRequest
}

func (m *mockGateway) SubmitPayIn(ctx context.Context, req port.PayInRequest) (*port.PayInResult, error) {
	m.submitted = append(m.submitted, req)
	if m.submitFunc != nil {
		return m.submitFunc(ctx, req)
	}
	return &port.PayInResult{
		ID:            "payin-1",
		WireReference: "WIRE-1",
		Status:        PayInStatusCreated,
		Raw:           []byte(`{"id":"payin-1","wire_reference":"WIRE-1","status":"CREATED"}`),
	}, nil
}

func (m *mockGateway) GetPayIn(ctx context.Context, id string) (*port.PayInResult, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &port.PayInResult{ID: id, Status: PayInStatusCreated}, nil
}

type mockNotifier struct {
	sendFunc func(ctx context.Context, msg port.EmailMessage) error
	sent     []port.EmailMessage
}

func (m *mockNotifier) Send(ctx context.Context, msg port.EmailMessage) error {
	if m.sendFunc != nil {
		if err := m.sendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockRenderer struct {
	renderFunc func(ctx context.Context, invoice port.InvoiceContext) (*port.RenderedDocument, error)
	rendered   []port.InvoiceContext
	exported   [][]port.BillExportRow
}

func (m *mockRenderer) RenderBillExport(ctx context.Context, rows []port.BillExportRow) (*port.RenderedDocument, error) {
	m.exported = append(m.exported, rows)
	return &port.RenderedDocument{Name: "bills.xlsx", Content: []byte("xlsx")}, nil
}

func (m *mockRenderer) RenderInvoice(ctx context.Context, invoice port.InvoiceContext) (*port.RenderedDocument, error) {
	m.rendered = append(m.rendered, invoice)
	if m.renderFunc != nil {
		return m.renderFunc(ctx, invoice)
	}
	return &port.RenderedDocument{
		Name:        "invoice_" + invoice.InvoiceNumber + ".xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Content:     []byte("xlsx"),
	}, nil
}

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) Save(ctx context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
	return nil
}

func (m *memStorage) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return content, nil
}

func (m *memStorage) Exists(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memStorage) GetFullPath(relativePath string) string {
	return "/tmp/" + relativePath
}

type mockAlerter struct {
	titles []string
	lines  [][]string
}

func (m *mockAlerter) Alert(ctx context.Context, title string, lines []string) error {
	m.titles = append(m.titles, title)
	m.lines = append(m.lines, lines)
	return nil
}

// recordingPublisher collects events synchronously
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) Dispatch(ctx context.Context, evt *event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	_ = p.Dispatch(ctx, evt)
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

var fixtureNow = time.Date(2021, time.June, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memStore
	gateway   *mockGateway
	notifier  *mockNotifier
	renderer  *mockRenderer
	storage   *memStorage
	publisher *recordingPublisher
	alerter   *mockAlerter
	settings  Settings

	bills          *billService
	cashCalls      *cashCallService
	reconciliation ReconciliationService
	management     *managementFeeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     newMemStore(),
		gateway:   &mockGateway{},
		notifier:  &mockNotifier{},
		renderer:  &mockRenderer{},
		storage:   newMemStorage(),
		publisher: &recordingPublisher{},
		alerter:   &mockAlerter{},
		settings:  DefaultSettings(),
	}
	f.settings.CCEmails = []string{"ops@example.com"}
	f.settings.TemplateIDs = map[entity.BillType]map[string]int64{
		entity.BillTypeUpfrontFees: {"EN": 500, "FR": 501},
	}

	logger := zap.NewNop()
	repos := f.store.repositories()
	calculator := fees.NewCalculator(currency.DefaultRates(), fees.MembershipSchedule{
		Community:          d("240"),
		AdvancedInvestment: d("500"),
	})
	clock := func() time.Time { return fixtureNow }

	f.bills = NewBillService(repos, f.store, calculator, f.renderer, f.storage, f.settings, logger).(*billService)
	f.bills.now = clock
	f.cashCalls = NewCashCallService(repos, f.store, f.bills, f.gateway, f.notifier, f.storage, f.publisher, f.settings, logger).(*cashCallService)
	f.cashCalls.now = clock
	f.reconciliation = NewReconciliationService(repos, f.cashCalls, f.gateway, logger)
	f.management = NewManagementFeeService(repos, f.store, calculator, f.bills, f.cashCalls, f.alerter, logger).(*managementFeeService)
	f.management.now = clock
	return f
}

// seedInvestor stores an investor ready for pay-ins
func (f *fixture) seedInvestor(mods ...func(*entity.Investor)) *entity.Investor {
	investor := &entity.Investor{
		ID:            f.store.id(),
		Name:          "Jane Capital",
		Status:        "active",
		PaymentUserID: "user-1",
		Owner:         &entity.User{ID: 1, Email: "jane@example.com", FirstName: "Jane", Language: "FR"},
		KYC:           &entity.KYC{ID: 1, Type: entity.KYCTypeNatural, PaymentAccountID: "kyc-1"},
		Wallets: []entity.Wallet{
			{ID: 1, Currency: currency.EUR, PaymentWalletID: "wallet-eur"},
			{ID: 2, Currency: currency.USD, PaymentWalletID: "wallet-usd"},
		},
	}
	for _, mod := range mods {
		mod(investor)
	}
	f.store.mu.Lock()
	f.store.investors[investor.ID] = investor
	f.store.mu.Unlock()
	return investor
}

// seedInvestment stores a 10000 EUR investment at 5% fees signed in January 2020
func (f *fixture) seedInvestment(investorID int64, mods ...func(*entity.Investment)) *entity.Investment {
	investment := &entity.Investment{
		ID:              f.store.id(),
		InvestorID:      investorID,
		CommittedAmount: d("10000"),
		FeesPercentage:  d("5"),
		SignedAt:        timePtr(time.Date(2020, time.January, 10, 0, 0, 0, 0, time.UTC)),
		Status:          "committed",
		Fundraising: entity.Fundraising{
			ID:          1,
			Name:        "Seed Round",
			Currency:    currency.EUR,
			StartupName: "Acme",
		},
	}
	for _, mod := range mods {
		mod(investment)
	}
	f.store.mu.Lock()
	f.store.investments[investment.ID] = investment
	f.store.mu.Unlock()
	return investment
}

// seedBill saves a bill of billType on investment through the bill service
func (f *fixture) seedBill(t *testing.T, billType entity.BillType, investment *entity.Investment, amount string) *entity.Bill {
	t.Helper()
	bill := entity.NewBill(billType, fixtureNow.Year(), d(amount))
	if investment != nil {
		bill.InvestmentID = int64Ptr(investment.ID)
		bill.InvestorID = int64Ptr(investment.InvestorID)
	}
	if err := f.bills.Save(context.Background(), bill); err != nil {
		t.Fatalf("seed bill: %v", err)
	}
	return bill
}

// seedCashCall opens the cash call of bill
func (f *fixture) seedCashCall(t *testing.T, bill *entity.Bill) *entity.CashCall {
	t.Helper()
	result, err := f.cashCalls.Create(context.Background(), CreateRequest{BillID: bill.ID})
	if err != nil {
		t.Fatalf("seed cash call: %v", err)
	}
	return result.CashCall
}

// seedUpfront builds a linked investor, an investment, an upfront bill and its cash call
func (f *fixture) seedUpfront(t *testing.T) (*entity.Investor, *entity.Investment, *entity.Bill, *entity.CashCall) {
	t.Helper()
	investor := f.seedInvestor()
	investment := f.seedInvestment(investor.ID)
	bill := f.seedBill(t, entity.BillTypeUpfrontFees, investment, "10000")
	cc := f.seedCashCall(t, bill)
	return investor, investment, bill, cc
}
