package checkout

import (
	"context"

	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// GatewayAPI is the slice of the gateway client the orchestrator drives.
// An application-layer port, kept narrow so tests can stand in for the wire.
type GatewayAPI interface {
	CreateCheckoutSession(ctx context.Context, ord gateway.OrderPayload, returnURL string) (*gateway.CheckoutSession, error)
	CheckEnrollment(ctx context.Context, data gateway.EnrollmentData, ord gateway.OrderPayload, session *gateway.Session) (*gateway.EnrollmentResult, error)
	ProcessStepUpResult(ctx context.Context, contextID, paRes string) (*gateway.StepUpResult, error)
	Authorize(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error)
	Pay(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error)
	RetrieveOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	VoidTransaction(ctx context.Context, orderID, originalTxnRef string) (*gateway.Transaction, error)
	CaptureTransaction(ctx context.Context, orderID, txnRef, amount, currency string) (*gateway.Transaction, error)
	Refund(ctx context.Context, orderID, originalTxnRef, amount, currency string) (*gateway.Transaction, error)
}

// PaymentInput carries the per-invocation browser context into the
// orchestrator: the card-collection session and whatever customer details the
// host storefront holds.
type PaymentInput struct {
	Session  *gateway.Session
	Customer *gateway.CustomerDetails
}

// Notification is one asynchronous gateway callback.
type Notification struct {
	ID      string
	OrderID string
	TxnRef  string
}

// PaymentGatewayPort is the fixed-signature surface the host registers this
// core against. The host calls into typed methods; no string-keyed callbacks.
type PaymentGatewayPort interface {
	ProcessPayment(ctx context.Context, orderID string, in PaymentInput) (Result, error)
	ResumeStepUp(ctx context.Context, orderID, paRes string, in PaymentInput) (Result, error)
	BeginHostedCheckout(ctx context.Context, orderID string) (Result, error)
	HandleReturn(ctx context.Context, orderID, resultToken string) (Result, error)
	HandleNotification(ctx context.Context, n Notification) error
	Capture(ctx context.Context, orderID string) (*gateway.Transaction, error)
	Void(ctx context.Context, orderID, targetTxnRef string) (*gateway.Transaction, error)
	Refund(ctx context.Context, orderID, targetTxnRef string) (*gateway.Transaction, error)
}

// State is the orchestrator's position in the payment flow. Terminal states
// are terminal per invocation; AwaitingStepUp suspends across invocations via
// the order's scratch state.
type State string

const (
	StateInit            State = "INIT"
	StateEnrollmentCheck State = "ENROLLMENT_CHECK"
	StateAwaitingStepUp  State = "AWAITING_STEPUP"
	StateStepUpResult    State = "STEPUP_RESULT"
	StateSubmitPayment   State = "SUBMIT_PAYMENT"
	StateSuccess         State = "SUCCESS"
	StateFailed          State = "FAILED"
)

// Result is what one orchestrator invocation hands back to the dispatcher.
// The dispatcher alone turns it into a redirect; the state machine never
// writes HTTP.
type Result struct {
	State State
	Order *order.Order

	// Redirect is set when the cardholder must visit the issuer's ACS.
	Redirect *gateway.RedirectPayload

	// Checkout is set when a hosted-checkout session was opened.
	Checkout *gateway.CheckoutSession

	// FailureReason is the user-facing message for a FAILED result.
	FailureReason string
}

func succeeded(o *order.Order) Result {
	return Result{State: StateSuccess, Order: o}
}

func failed(o *order.Order, reason string) Result {
	return Result{State: StateFailed, Order: o, FailureReason: reason}
}
