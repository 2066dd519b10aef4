package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// --- Order Repository Mock ---

// MockOrderRepository is a mock implementation of order.Repository.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*order.Order

	CreateFunc              func(ctx context.Context, o *order.Order) error
	GetByIDFunc             func(ctx context.Context, id string) (*order.Order, error)
	UpdateFunc              func(ctx context.Context, o *order.Order) error
	ListStaleProcessingFunc func(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error)

	UpdateCalls int
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*order.Order)}
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderRepository) Update(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	m.UpdateCalls++
	m.mu.Unlock()
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return errors.ErrOrderNotFound
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error) {
	if m.ListStaleProcessingFunc != nil {
		return m.ListStaleProcessingFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*order.Order
	for _, o := range m.orders {
		if o.Status == order.StatusProcessing && o.UpdatedAt.Before(cutoff) {
			stale = append(stale, o)
			if len(stale) == limit {
				break
			}
		}
	}
	return stale, nil
}

// Seed stores an order directly, bypassing Create hooks.
func (m *MockOrderRepository) Seed(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// --- Gateway API Mock ---

// MockGatewayAPI is a mock implementation of checkout.GatewayAPI. Every
// method records the call so tests can assert which gateway operations ran
// and in what order.
type MockGatewayAPI struct {
	mu    sync.Mutex
	Calls []string

	CreateCheckoutSessionFunc func(ctx context.Context, ord gateway.OrderPayload, returnURL string) (*gateway.CheckoutSession, error)
	CheckEnrollmentFunc       func(ctx context.Context, data gateway.EnrollmentData, ord gateway.OrderPayload, session *gateway.Session) (*gateway.EnrollmentResult, error)
	ProcessStepUpResultFunc   func(ctx context.Context, contextID, paRes string) (*gateway.StepUpResult, error)
	AuthorizeFunc             func(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error)
	PayFunc                   func(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error)
	RetrieveOrderFunc         func(ctx context.Context, orderID string) (*gateway.Order, error)
	VoidTransactionFunc       func(ctx context.Context, orderID, originalTxnRef string) (*gateway.Transaction, error)
	CaptureTransactionFunc    func(ctx context.Context, orderID, txnRef, amount, currency string) (*gateway.Transaction, error)
	RefundFunc                func(ctx context.Context, orderID, originalTxnRef, amount, currency string) (*gateway.Transaction, error)
}

func NewMockGatewayAPI() *MockGatewayAPI {
	return &MockGatewayAPI{}
}

func (m *MockGatewayAPI) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, op)
}

// CallCount returns how many times the named operation was invoked.
func (m *MockGatewayAPI) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *MockGatewayAPI) CreateCheckoutSession(ctx context.Context, ord gateway.OrderPayload, returnURL string) (*gateway.CheckoutSession, error) {
	m.record("CreateCheckoutSession")
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, ord, returnURL)
	}
	return &gateway.CheckoutSession{
		Session:          gateway.Session{ID: "SESSION0001"},
		SuccessIndicator: "indicator-1",
	}, nil
}

func (m *MockGatewayAPI) CheckEnrollment(ctx context.Context, data gateway.EnrollmentData, ord gateway.OrderPayload, session *gateway.Session) (*gateway.EnrollmentResult, error) {
	m.record("CheckEnrollment")
	if m.CheckEnrollmentFunc != nil {
		return m.CheckEnrollmentFunc(ctx, data, ord, session)
	}
	return &gateway.EnrollmentResult{
		Context:        gateway.ThreeDSecureContext{ID: "3ds-ctx-1", Enrolled: "N"},
		Recommendation: gateway.RecommendationProceed,
	}, nil
}

func (m *MockGatewayAPI) ProcessStepUpResult(ctx context.Context, contextID, paRes string) (*gateway.StepUpResult, error) {
	m.record("ProcessStepUpResult")
	if m.ProcessStepUpResultFunc != nil {
		return m.ProcessStepUpResultFunc(ctx, contextID, paRes)
	}
	return &gateway.StepUpResult{
		Context:        gateway.ThreeDSecureContext{ID: contextID, Status: "Y"},
		Recommendation: gateway.RecommendationProceed,
	}, nil
}

func (m *MockGatewayAPI) Authorize(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error) {
	m.record("Authorize")
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, txnRef, orderID, ord, threeDS, session, customer, billing)
	}
	return &gateway.Transaction{Reference: txnRef, Type: gateway.TxnAuthorization, Result: gateway.ResultSuccess}, nil
}

func (m *MockGatewayAPI) Pay(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error) {
	m.record("Pay")
	if m.PayFunc != nil {
		return m.PayFunc(ctx, txnRef, orderID, ord, threeDS, session, customer, billing)
	}
	return &gateway.Transaction{Reference: txnRef, Type: gateway.TxnPayment, Result: gateway.ResultSuccess}, nil
}

func (m *MockGatewayAPI) RetrieveOrder(ctx context.Context, orderID string) (*gateway.Order, error) {
	m.record("RetrieveOrder")
	if m.RetrieveOrderFunc != nil {
		return m.RetrieveOrderFunc(ctx, orderID)
	}
	return &gateway.Order{ID: orderID, Status: gateway.OrderCaptured}, nil
}

func (m *MockGatewayAPI) VoidTransaction(ctx context.Context, orderID, originalTxnRef string) (*gateway.Transaction, error) {
	m.record("VoidTransaction")
	if m.VoidTransactionFunc != nil {
		return m.VoidTransactionFunc(ctx, orderID, originalTxnRef)
	}
	return &gateway.Transaction{Reference: "void-" + originalTxnRef, Type: gateway.TxnVoid, Result: gateway.ResultSuccess}, nil
}

func (m *MockGatewayAPI) CaptureTransaction(ctx context.Context, orderID, txnRef, amount, currency string) (*gateway.Transaction, error) {
	m.record("CaptureTransaction")
	if m.CaptureTransactionFunc != nil {
		return m.CaptureTransactionFunc(ctx, orderID, txnRef, amount, currency)
	}
	return &gateway.Transaction{Reference: txnRef, Type: gateway.TxnCapture, Result: gateway.ResultSuccess}, nil
}

func (m *MockGatewayAPI) Refund(ctx context.Context, orderID, originalTxnRef, amount, currency string) (*gateway.Transaction, error) {
	m.record("Refund")
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, orderID, originalTxnRef, amount, currency)
	}
	return &gateway.Transaction{Reference: "refund-" + originalTxnRef, Type: gateway.TxnRefund, Result: gateway.ResultSuccess}, nil
}
