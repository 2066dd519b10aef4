package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/cardgateway/internal/application/checkout"
	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/testutil"
	"github.com/rs/zerolog"
)

func newOrchestrator(repo *testutil.MockOrderRepository, api *testutil.MockGatewayAPI, cfg checkout.Config) *checkout.Orchestrator {
	return checkout.NewOrchestrator(repo, api, cfg, zerolog.Nop(), nil)
}

func TestProcessPayment_DirectPath_Success(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 20_00, "EUR", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.State)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("expected completed order, got %s", o.Status)
	}
	if !o.Captured {
		t.Error("expected captured flag set")
	}
	if o.AttemptCounter != 1 {
		t.Errorf("expected attempt counter 1, got %d", o.AttemptCounter)
	}
	if api.CallCount("CheckEnrollment") != 0 {
		t.Error("enrollment check must be skipped when step-up is disabled")
	}
	if api.CallCount("Pay") != 1 || api.CallCount("Authorize") != 0 {
		t.Errorf("expected one pay call, got calls %v", api.Calls)
	}
}

func TestProcessPayment_AuthorizeOnly_LeavesOrderProcessing(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 49_99, "USD")
	repo.Seed(o)

	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 49_99, "USD", gateway.OrderAuthorized), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: false})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.State)
	}
	if api.CallCount("Authorize") != 1 || api.CallCount("Pay") != 0 {
		t.Errorf("expected one authorize call, got calls %v", api.Calls)
	}
	if o.Status != order.StatusProcessing {
		t.Errorf("expected processing order until capture, got %s", o.Status)
	}
	if o.Captured {
		t.Error("capture flag must stay unset after authorize-only")
	}
	if o.AuthorizationCode != "AUTH123" {
		t.Errorf("expected recorded authorization code, got %q", o.AuthorizationCode)
	}
}

func TestProcessPayment_CompletedOrderReplaysAsSuccess(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewCompletedOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.State)
	}
	if len(api.Calls) != 0 {
		t.Errorf("replay must not reach the gateway, got calls %v", api.Calls)
	}
	if o.AttemptCounter != 1 {
		t.Errorf("replay must not allocate a new attempt, counter %d", o.AttemptCounter)
	}
}

func TestProcessPayment_OrderNotFound(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true})

	_, err := oc.ProcessPayment(ctx, "missing", checkout.PaymentInput{})
	if !errors.Is(err, domainErrors.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestProcessPayment_StepUpRedirectSuspends(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	api.CheckEnrollmentFunc = func(ctx context.Context, data gateway.EnrollmentData, ord gateway.OrderPayload, session *gateway.Session) (*gateway.EnrollmentResult, error) {
		return &gateway.EnrollmentResult{
			Context:        gateway.ThreeDSecureContext{ID: "3ds-ctx-1", Enrolled: "Y"},
			Recommendation: gateway.RecommendationProceed,
			Redirect: &gateway.RedirectPayload{
				Method: "POST",
				URL:    "https://acs.issuer.example/challenge",
			},
		}, nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateAwaitingStepUp {
		t.Fatalf("expected AWAITING_STEPUP, got %s", res.State)
	}
	if res.Redirect == nil || res.Redirect.URL != "https://acs.issuer.example/challenge" {
		t.Errorf("expected ACS redirect, got %+v", res.Redirect)
	}
	if o.StepUpContextID != "3ds-ctx-1" {
		t.Errorf("expected pending context persisted, got %q", o.StepUpContextID)
	}
	if api.CallCount("Pay") != 0 {
		t.Error("suspension must not submit the payment")
	}
}

func TestProcessPayment_EnrollmentDoNotProceed_Fails(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1002", 20_00, "EUR")
	repo.Seed(o)

	api.CheckEnrollmentFunc = func(ctx context.Context, data gateway.EnrollmentData, ord gateway.OrderPayload, session *gateway.Session) (*gateway.EnrollmentResult, error) {
		return &gateway.EnrollmentResult{
			Context:        gateway.ThreeDSecureContext{ID: "3ds-ctx-2"},
			Recommendation: gateway.RecommendationDoNotProceed,
		}, nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	res, err := oc.ProcessPayment(ctx, "1002", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	if o.Status != order.StatusFailed {
		t.Errorf("expected failed order, got %s", o.Status)
	}
	if api.CallCount("Pay") != 0 || api.CallCount("Authorize") != 0 {
		t.Errorf("declined enrollment must not submit a payment, got calls %v", api.Calls)
	}
}

func TestProcessPayment_FrictionlessEnrollmentSubmitsDirectly(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	var gotContext *gateway.ThreeDSecureContext
	api.PayFunc = func(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error) {
		gotContext = threeDS
		return &gateway.Transaction{Reference: txnRef, Type: gateway.TxnPayment, Result: gateway.ResultSuccess}, nil
	}
	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 20_00, "EUR", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.State)
	}
	if gotContext == nil || gotContext.ID != "3ds-ctx-1" {
		t.Errorf("expected enrollment context passed to pay, got %+v", gotContext)
	}
}

func TestProcessPayment_BusinessDeclineFailsOrder(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	api.PayFunc = func(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error) {
		return nil, &domainErrors.BusinessDecline{Operation: "pay", Result: gateway.ResultFailure}
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("declines resolve to a failed result, not an error: %v", err)
	}
	if res.State != checkout.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	if o.Status != order.StatusFailed {
		t.Errorf("expected failed order, got %s", o.Status)
	}
}

func TestProcessPayment_ServerErrorPropagates(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	api.PayFunc = func(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error) {
		return nil, &domainErrors.ServerError{Status: 503, Cause: "gateway outage"}
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true})

	_, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	var serverErr *domainErrors.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError to propagate, got %v", err)
	}
	if o.Status == order.StatusFailed {
		t.Error("a transient outage must not fail the order")
	}
}

func TestProcessPayment_RetryAllocatesFreshReference(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	var refs []string
	declineNext := true
	api.PayFunc = func(ctx context.Context, txnRef, orderID string, ord gateway.OrderPayload, threeDS *gateway.ThreeDSecureContext, session *gateway.Session, customer *gateway.Customer, billing *gateway.Billing) (*gateway.Transaction, error) {
		refs = append(refs, txnRef)
		if declineNext {
			declineNext = false
			return nil, &domainErrors.BusinessDecline{Operation: "pay", Result: gateway.ResultFailure}
		}
		return &gateway.Transaction{Reference: txnRef, Type: gateway.TxnPayment, Result: gateway.ResultSuccess}, nil
	}
	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 20_00, "EUR", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true})

	res, _ := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if res.State != checkout.StateFailed {
		t.Fatalf("expected first attempt FAILED, got %s", res.State)
	}

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected retry SUCCESS, got %s", res.State)
	}
	if len(refs) != 2 || refs[0] != "1" || refs[1] != "2" {
		t.Errorf("expected references 1 then 2, got %v", refs)
	}
}

func TestProcessPayment_AmountMismatchFailsAttempt(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	// Gateway reports a captured order for a different amount; the result
	// marker alone is never enough.
	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 30_00, "EUR", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateFailed {
		t.Fatalf("expected FAILED on amount mismatch, got %s", res.State)
	}
	if o.Status == order.StatusCompleted {
		t.Error("mismatched amount must never complete the order")
	}
}

// --- ResumeStepUp ---

func TestResumeStepUp_Success(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	o.BeginStepUp("3ds-ctx-1")
	repo.Seed(o)

	var gotContextID string
	api.ProcessStepUpResultFunc = func(ctx context.Context, contextID, paRes string) (*gateway.StepUpResult, error) {
		gotContextID = contextID
		return &gateway.StepUpResult{
			Context:        gateway.ThreeDSecureContext{ID: contextID, Status: "Y", ECI: "05"},
			Recommendation: gateway.RecommendationProceed,
		}, nil
	}
	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 20_00, "EUR", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	res, err := oc.ResumeStepUp(ctx, "1001", "pares-blob", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.State)
	}
	if gotContextID != "3ds-ctx-1" {
		t.Errorf("expected stored context consumed, got %q", gotContextID)
	}
	if o.StepUpContextID != "" {
		t.Error("context must be cleared after consumption")
	}
}

func TestResumeStepUp_NoPendingContext(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	res, err := oc.ResumeStepUp(ctx, "1001", "pares-blob", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateFailed {
		t.Fatalf("expected FAILED without pending context, got %s", res.State)
	}
	if len(api.Calls) != 0 {
		t.Errorf("no gateway call without a pending context, got %v", api.Calls)
	}
}

func TestResumeStepUp_AuthenticationFailed(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	o.BeginStepUp("3ds-ctx-1")
	repo.Seed(o)

	api.ProcessStepUpResultFunc = func(ctx context.Context, contextID, paRes string) (*gateway.StepUpResult, error) {
		return &gateway.StepUpResult{
			Context:        gateway.ThreeDSecureContext{ID: contextID, Status: "N"},
			Recommendation: gateway.RecommendationDoNotProceed,
		}, nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	res, err := oc.ResumeStepUp(ctx, "1001", "pares-blob", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	if api.CallCount("Pay") != 0 {
		t.Error("failed authentication must not submit the payment")
	}
	if o.StepUpContextID != "" {
		t.Error("context is consumed even when authentication fails")
	}
}

func TestProcessPayment_PendingStepUpRefusesNewAttempt(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	o.BeginStepUp("3ds-ctx-1")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	_, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if !errors.Is(err, domainErrors.ErrStepUpPending) {
		t.Fatalf("expected pending step-up error, got %v", err)
	}
	if len(api.Calls) != 0 {
		t.Errorf("expected no gateway calls, got %v", api.Calls)
	}
	if o.StepUpContextID != "3ds-ctx-1" {
		t.Error("pending context must survive the refused attempt")
	}
}

func TestResumeStepUp_TransientErrorKeepsContextForRetry(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	o.BeginStepUp("3ds-ctx-1")
	repo.Seed(o)

	stepUpCalls := 0
	api.ProcessStepUpResultFunc = func(ctx context.Context, contextID, paRes string) (*gateway.StepUpResult, error) {
		stepUpCalls++
		if stepUpCalls == 1 {
			return nil, &domainErrors.ServerError{Status: 503, Cause: "SERVER_BUSY"}
		}
		if contextID != "3ds-ctx-1" {
			t.Errorf("retried return must reuse the stored context, got %q", contextID)
		}
		return &gateway.StepUpResult{
			Context:        gateway.ThreeDSecureContext{ID: contextID, Status: "Y"},
			Recommendation: gateway.RecommendationProceed,
		}, nil
	}
	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 20_00, "EUR", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{CaptureImmediate: true, StepUpEnabled: true})

	_, err := oc.ResumeStepUp(ctx, "1001", "pares-blob", checkout.PaymentInput{})
	var srvErr *domainErrors.ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected server error, got %v", err)
	}
	if o.StepUpContextID != "3ds-ctx-1" {
		t.Fatal("transient failure must leave the pending context in place")
	}
	if o.Status == order.StatusFailed {
		t.Fatal("transient failure must not fail the order")
	}

	res, err := oc.ResumeStepUp(ctx, "1001", "pares-blob", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("retried return: unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS on retried return, got %s", res.State)
	}
	if o.StepUpContextID != "" {
		t.Error("context is consumed once a definitive outcome is obtained")
	}
}

func TestProcessPayment_ExpiredStepUpContextStartsOver(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	o.BeginStepUp("3ds-ctx-stale")
	o.StepUpStartedAt = time.Now().Add(-time.Hour)
	repo.Seed(o)

	api.RetrieveOrderFunc = func(ctx context.Context, orderID string) (*gateway.Order, error) {
		return testutil.NewGatewayOrder(orderID, 20_00, "EUR", gateway.OrderCaptured), nil
	}

	oc := newOrchestrator(repo, api, checkout.Config{
		CaptureImmediate: true,
		StepUpEnabled:    true,
		StepUpTTL:        30 * time.Minute,
	})

	res, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != checkout.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.State)
	}
	if api.CallCount("CheckEnrollment") != 1 {
		t.Error("a fresh attempt must run the enrollment check again")
	}
	if o.StepUpContextID == "3ds-ctx-stale" {
		t.Error("the dead context must be discarded")
	}
}

func TestProcessPayment_UnexpiredStepUpContextStillRefused(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockOrderRepository()
	api := testutil.NewMockGatewayAPI()

	o := testutil.NewTestOrder("1001", 20_00, "EUR")
	o.BeginStepUp("3ds-ctx-1")
	repo.Seed(o)

	oc := newOrchestrator(repo, api, checkout.Config{
		CaptureImmediate: true,
		StepUpEnabled:    true,
		StepUpTTL:        30 * time.Minute,
	})

	_, err := oc.ProcessPayment(ctx, "1001", checkout.PaymentInput{})
	if !errors.Is(err, domainErrors.ErrStepUpPending) {
		t.Fatalf("expected pending step-up error, got %v", err)
	}
	if len(api.Calls) != 0 {
		t.Errorf("expected no gateway calls, got %v", api.Calls)
	}
}
