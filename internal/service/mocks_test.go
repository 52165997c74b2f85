package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/repository"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
)

// MockBackend is an in-memory commerce backend. failOn makes the named
// call return the given error until it is removed.
type MockBackend struct {
	mu sync.Mutex

	coverage  domain.Coverage
	plans     []domain.Plan
	contracts []domain.ContractTerm
	catalogue []domain.CatalogueProduct
	shipping  []domain.ShippingOption

	lines   map[string]domain.CartItem
	order   []string
	nextID  int
	amount  float64
	orders  int
	tokens  int
	calls   []string
	payment []backend.PaymentResult

	failOn map[string]error
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		coverage: domain.Coverage{Available: true, Technology: "FTTH", MaxSpeedMbps: 1000, LocationID: "loc-1"},
		plans: []domain.Plan{
			{ID: "fiber-300", Name: "Fibra 300", SpeedMbps: 300, MonthlyPrice: 20},
			{ID: "fiber-600", Name: "Fibra 600", SpeedMbps: 600, MonthlyPrice: 30, RequiresEquipment: true},
		},
		contracts: []domain.ContractTerm{
			{ID: "12m", Months: 12, PermanenceFee: 50},
			{ID: "none", Months: 0},
		},
		catalogue: []domain.CatalogueProduct{
			{ID: "router", Name: "Router WiFi 6", Kind: domain.LineKindEquipment, Price: 120, Installments: []int{6, 12}, Stock: 10},
			{ID: "mesh", Name: "Mesh node", Kind: domain.LineKindEquipment, Price: 90, Stock: 10},
			{ID: "cable", Name: "Cat6 cable", Kind: domain.LineKindAccessory, Price: 5, Stock: 100},
		},
		shipping: []domain.ShippingOption{
			{ID: "std", Name: "Standard", Price: 4, EstimatedDays: 3},
		},
		lines:  make(map[string]domain.CartItem),
		amount: 150,
		failOn: make(map[string]error),
	}
}

func (m *MockBackend) call(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	return m.failOn[op]
}

func (m *MockBackend) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *MockBackend) Heal(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failOn, op)
}

func (m *MockBackend) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *MockBackend) Lines() []domain.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]domain.CartItem, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, m.lines[id])
	}
	return items
}

func (m *MockBackend) IssueToken(context.Context) (*backend.IssuedToken, error) {
	if err := m.call("issue_token"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens++
	return &backend.IssuedToken{
		Token:         fmt.Sprintf("token-%d", m.tokens),
		CorrelationID: fmt.Sprintf("corr-%d", m.tokens),
		ExpiresAt:     time.Now().Add(time.Hour),
	}, nil
}

func (m *MockBackend) ValidateCoverage(_ context.Context, _ *backend.Credentials, _ domain.Address) (*domain.Coverage, error) {
	if err := m.call("validate_coverage"); err != nil {
		return nil, err
	}
	c := m.coverage
	return &c, nil
}

func (m *MockBackend) ListPlans(_ context.Context, _ *backend.Credentials, _ string) ([]domain.Plan, error) {
	if err := m.call("list_plans"); err != nil {
		return nil, err
	}
	return m.plans, nil
}

func (m *MockBackend) ListContracts(_ context.Context, _ *backend.Credentials, _ string) ([]domain.ContractTerm, error) {
	if err := m.call("list_contracts"); err != nil {
		return nil, err
	}
	return m.contracts, nil
}

func (m *MockBackend) ListCatalogue(_ context.Context, _ *backend.Credentials, _ string) ([]domain.CatalogueProduct, error) {
	if err := m.call("list_catalogue"); err != nil {
		return nil, err
	}
	return m.catalogue, nil
}

func (m *MockBackend) ListShippingOptions(_ context.Context, _ *backend.Credentials, _ string) ([]domain.ShippingOption, error) {
	if err := m.call("list_shipping_options"); err != nil {
		return nil, err
	}
	return m.shipping, nil
}

func (m *MockBackend) AddCartItem(_ context.Context, _ *backend.Credentials, item domain.CartItem) (string, error) {
	if err := m.call("add_cart_item"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.CartID = fmt.Sprintf("c%d", m.nextID)
	m.lines[item.CartID] = item
	m.order = append(m.order, item.CartID)
	return item.CartID, nil
}

func (m *MockBackend) DeleteCartItem(_ context.Context, _ *backend.Credentials, cartID string) error {
	if err := m.call("delete_cart_item"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lines[cartID]; !ok {
		return &backend.BusinessError{Op: "delete_cart_item", Message: "line not found"}
	}
	delete(m.lines, cartID)
	for i, id := range m.order {
		if id == cartID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockBackend) GetCart(_ context.Context, _ *backend.Credentials) (*backend.Cart, error) {
	if err := m.call("get_cart"); err != nil {
		return nil, err
	}
	items := m.Lines()
	cart := &backend.Cart{Items: items}
	for _, item := range items {
		cart.Total += item.Subtotal()
	}
	return cart, nil
}

func (m *MockBackend) CreateOrder(_ context.Context, _ *backend.Credentials, _ backend.OrderRequest) (*backend.CreatedOrder, error) {
	if err := m.call("create_order"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders++
	return &backend.CreatedOrder{OrderID: fmt.Sprintf("order-%d", m.orders), Amount: m.amount}, nil
}

func (m *MockBackend) CreatePaymentForm(_ context.Context, _ *backend.Credentials, orderID string, _ float64, returnURL string) (*domain.PaymentHandle, error) {
	if err := m.call("create_payment_form"); err != nil {
		return nil, err
	}
	return &domain.PaymentHandle{FormURL: "https://pay.example.com/form?return=" + returnURL, Handle: "handle-" + orderID}, nil
}

func (m *MockBackend) RecordPayment(_ context.Context, _ *backend.Credentials, result backend.PaymentResult) error {
	if err := m.call("record_payment"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payment = append(m.payment, result)
	return nil
}

// MockStore keeps encoded records so loaded states never alias stored ones.
type MockStore struct {
	mu      sync.Mutex
	records map[string][]byte
	saves   int
}

func NewMockStore() *MockStore {
	return &MockStore{records: make(map[string][]byte)}
}

func (m *MockStore) Load(_ context.Context, sessionID string) (*domain.FlowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[sessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return domain.UnmarshalRecord(data)
}

func (m *MockStore) Save(_ context.Context, state *domain.FlowState) error {
	data, err := state.MarshalRecord()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[state.SessionID] = data
	m.saves++
	return nil
}

func (m *MockStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

func (m *MockStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// MockJournal records journal calls by order id.
type MockJournal struct {
	mu        sync.Mutex
	orders    map[string]*domain.OrderRecord
	completed []string
	rejected  []string
	err       error
}

func NewMockJournal() *MockJournal {
	return &MockJournal{orders: make(map[string]*domain.OrderRecord)}
}

func (m *MockJournal) GetOrder(_ context.Context, orderID string) (*domain.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

// Expire does what the outbox poller does to a stale pending order.
func (m *MockJournal) Expire(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = domain.OrderStatusExpired
	}
}

func (m *MockJournal) SaveOrder(_ context.Context, order *domain.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *MockJournal) CompleteOrder(_ context.Context, orderID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if o, ok := m.orders[orderID]; ok {
		if o.Status != domain.OrderStatusPaid && !domain.CanOrderTransitionTo(o.Status, domain.OrderStatusPaid) {
			return fmt.Errorf("order %s from %s: %w", orderID, o.Status, repository.ErrIllegalTransition)
		}
		o.Status = domain.OrderStatusPaid
	}
	m.completed = append(m.completed, orderID)
	return nil
}

func (m *MockJournal) RejectOrder(_ context.Context, orderID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rejected = append(m.rejected, orderID)
	if o, ok := m.orders[orderID]; ok {
		o.Status = domain.OrderStatusRejected
	}
	return nil
}
