package checkout

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// BeginHostedCheckout opens a hosted-session checkout: the gateway hosts the
// payment page and hands back a success indicator, which is stored on the
// order before the customer is sent away.
func (oc *Orchestrator) BeginHostedCheckout(ctx context.Context, orderID string) (Result, error) {
	defer oc.timePath("hosted_checkout")()

	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.Status == order.StatusCompleted {
		return oc.finish("hosted_checkout", succeeded(o)), nil
	}

	cs, err := oc.api.CreateCheckoutSession(ctx, gateway.BuildOrderPayload(o), oc.cfg.HostedReturnURL)
	if err != nil {
		return oc.handleGatewayError(ctx, "hosted_checkout", o, "checkout session creation", err)
	}

	o.StoreSuccessToken(cs.SuccessIndicator)
	o.SessionID = cs.Session.ID
	o.SessionVersion = cs.Session.Version
	if err := oc.orders.Update(ctx, o); err != nil {
		return Result{}, err
	}

	oc.logger.Info().Str("order_id", o.ID).Str("session_id", cs.Session.ID).
		Msg("hosted checkout session created")
	return Result{State: StateAwaitingStepUp, Order: o, Checkout: cs}, nil
}

// HandleReturn processes the browser's return from the hosted checkout page.
// The client-supplied result token is never itself trusted as proof of
// payment: it must equal the stored success token, and even then the gateway's
// own order record is what drives reconciliation. A mismatch is treated as
// tampering and fails the order without any further gateway call.
func (oc *Orchestrator) HandleReturn(ctx context.Context, orderID, resultToken string) (Result, error) {
	defer oc.timePath("hosted_return")()

	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.Status == order.StatusCompleted {
		return oc.finish("hosted_return", succeeded(o)), nil
	}

	if o.SuccessToken == "" || resultToken == "" ||
		subtle.ConstantTimeCompare([]byte(o.SuccessToken), []byte(resultToken)) != 1 {
		if oc.metrics != nil {
			oc.metrics.TokenMismatches.Inc()
		}
		return oc.failOrder(ctx, "hosted_return", o, errors.ErrTokenMismatch.Error()), nil
	}

	gwOrder, err := oc.api.RetrieveOrder(ctx, o.ID)
	if err != nil {
		return oc.handleGatewayError(ctx, "hosted_return", o, "order retrieval", err)
	}
	if err := oc.reconcile(ctx, o, gwOrder); err != nil {
		return oc.handleGatewayError(ctx, "hosted_return", o, "reconciliation", err)
	}

	return oc.finish("hosted_return", succeeded(o)), nil
}

// HandleNotification processes an asynchronous gateway callback. It arrives
// independently of the browser return, so it runs the same gateway-
// authoritative reconciliation; the dispatcher acks delivery regardless of
// the outcome here.
func (oc *Orchestrator) HandleNotification(ctx context.Context, n Notification) error {
	o, err := oc.loadOrder(ctx, n.OrderID)
	if err != nil {
		return err
	}
	if o.Status == order.StatusCompleted {
		return nil
	}

	gwOrder, err := oc.api.RetrieveOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("notification %s: %w", n.ID, err)
	}
	if err := oc.reconcile(ctx, o, gwOrder); err != nil {
		if isTerminalForAttempt(err) {
			oc.failOrder(ctx, "notification", o, fmt.Sprintf("reconciliation: %v", err))
		}
		return fmt.Errorf("notification %s: %w", n.ID, err)
	}

	oc.logger.Info().Str("order_id", o.ID).Str("notification_id", n.ID).
		Str("status", string(o.Status)).Msg("notification reconciled")
	return nil
}
