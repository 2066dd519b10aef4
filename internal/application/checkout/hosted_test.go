package checkout_test

import (
	"context"
	"testing"

	"github.com/cassiomorais/cardgateway/internal/application/checkout"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/testutil"
)

func TestBeginHostedCheckout_StoresSuccessToken(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	api.CreateCheckoutSessionFunc = func(ctx context.Context, ord gateway.OrderPayload, returnURL string) (*gateway.CheckoutSession, error) {
		if returnURL != "https://shop.example/return" {
			t.Errorf("unexpected return url %q", returnURL)
		}
		return &gateway.CheckoutSession{
			Session:          gateway.Session{ID: "SESSION0001", Version: "v1"},
			SuccessIndicator: "7f1e2d3c4b5a",
		}, nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{HostedReturnURL: "https://shop.example/return"})

	res, err := oc.BeginHostedCheckout(ctx, "1001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateAwaitingStepUp {
		t.Fatalf("expected AWAITING_STEPUP, got %s", res.State)
	}
	if res.Checkout == nil || res.Checkout.Session.ID != "SESSION0001" {
		t.Errorf("expected checkout session in result, got %+v", res.Checkout)
	}
	if o.SuccessToken != "7f1e2d3c4b5a" {
		t.Errorf("expected stored success token, got %q", o.SuccessToken)
	}
	if o.SessionID != "SESSION0001" {
		t.Errorf("expected stored session id, got %q", o.SessionID)
	}
}

func TestHandleReturn_TokenMatchCompletesViaGateway(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 49_99, "USD")
	o.StoreSuccessToken("7f1e2d3c4b5a")
	repo.Seed(o)

	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 49_99, "USD", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{})

	res, err := oc.HandleReturn(ctx, "1001", "7f1e2d3c4b5a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.State)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("expected completed order, got %s", o.Status)
	}
	if api.CallCount("RetrieveOrder") != 1 {
		t.Error("token match alone is not proof; the gateway record must be fetched")
	}
}

func TestHandleReturn_TokenMismatchFailsWithoutGatewayCall(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	o.StoreSuccessToken("7f1e2d3c4b5a")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{})

	res, err := oc.HandleReturn(ctx, "1001", "forged-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	if o.Status != order.StatusFailed {
		t.Errorf("expected failed order, got %s", o.Status)
	}
	if len(api.Calls) != 0 {
		t.Errorf("a tampered token must not reach the gateway, got calls %v", api.Calls)
	}
}

func TestHandleReturn_MissingStoredTokenRejected(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{})

	res, err := oc.HandleReturn(ctx, "1001", "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	if len(api.Calls) != 0 {
		t.Errorf("no gateway call without a stored token, got %v", api.Calls)
	}
}

func TestHandleReturn_CompletedOrderIgnoresReplay(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewCompletedOrder("1001", 20_00, "EUR")
	o.StoreSuccessToken("7f1e2d3c4b5a")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{})

	res, err := oc.HandleReturn(ctx, "1001", "7f1e2d3c4b5a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS on replay, got %s", res.State)
	}
	if len(api.Calls) != 0 {
		t.Errorf("a reload of a completed order must not reach the gateway, got %v", api.Calls)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("completed status must never regress, got %s", o.Status)
	}
}

// --- Notifications ---

func TestHandleNotification_ReconcilesPendingOrder(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewProcessingOrder("1001", 49_99, "USD")
	repo.Seed(o)

	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 49_99, "USD", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{})

	err := oc.HandleNotification(ctx, checkout.Notification{ID: "n-1", OrderID: "1001", TxnRef: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("expected notification to complete the order, got %s", o.Status)
	}
}

func TestHandleNotification_CompletedOrderIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewCompletedOrder("1001", 49_99, "USD")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{})

	err := oc.HandleNotification(ctx, checkout.Notification{ID: "n-2", OrderID: "1001", TxnRef: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.Calls) != 0 {
		t.Errorf("redelivery for a completed order must not reach the gateway, got %v", api.Calls)
	}
}

func TestHandleNotification_AmountMismatchFailsOrder(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewProcessingOrder("1001", 49_99, "USD")
	repo.Seed(o)

	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 99_99, "USD", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{})

	err := oc.HandleNotification(ctx, checkout.Notification{ID: "n-3", OrderID: "1001", TxnRef: "1"})
	if err == nil {
		t.Fatal("expected reconciliation error")
	}
	if o.Status != order.StatusFailed {
		t.Errorf("expected failed order on mismatch, got %s", o.Status)
	}
}

func TestBeginHostedCheckout_ResultCarriesGatewaySession(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{HostedReturnURL: "https://shop.example/return"})

	res, err := oc.BeginHostedCheckout(ctx, "1001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Checkout == nil || res.Checkout.Session.ID == "" {
		t.Fatalf("expected a checkout session with an id, got %+v", res.Checkout)
	}
	if o.SessionID != res.Checkout.Session.ID {
		t.Errorf("stored session id %q does not match session %q", o.SessionID, res.Checkout.Session.ID)
	}
	if o.SuccessToken != res.Checkout.SuccessIndicator {
		t.Errorf("stored token %q does not match success indicator %q", o.SuccessToken, res.Checkout.SuccessIndicator)
	}
}
