package checkout

import (
	"context"

	"github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// reconcile derives the local order's status from the gateway's authoritative
// record. Amount and currency must agree exactly under the gateway's
// two-decimal fixed-point representation; any disagreement is fatal to the
// attempt. A completed order is never touched again, so page reloads cannot
// re-apply the mapping or regress the status.
func (oc *Orchestrator) reconcile(ctx context.Context, o *order.Order, gw *gateway.Order) error {
	if o.Status == order.StatusCompleted {
		return nil
	}

	if gw.Currency != o.Amount.Currency {
		oc.noteReconcileFailure()
		return &errors.ValidationMismatch{
			Field:  "currency",
			Local:  o.Amount.Currency,
			Remote: gw.Currency,
		}
	}
	if !gw.Amount.Equal(o.Amount.Decimal()) {
		oc.noteReconcileFailure()
		return &errors.ValidationMismatch{
			Field:  "amount",
			Local:  o.Amount.Decimal().StringFixed(2),
			Remote: gw.Amount.StringFixed(2),
		}
	}

	var err error
	if gw.Status == gateway.OrderCaptured {
		err = o.MarkCompleted()
	} else if o.Status != order.StatusProcessing {
		err = o.MarkProcessing()
	}
	if err != nil {
		return err
	}

	if txn := latestSettledTransaction(gw); txn != nil {
		o.RecordGatewayResult(txn.Reference, txn.AuthorizationCode)
	}

	return oc.orders.Update(ctx, o)
}

// ReconcileOrder re-runs gateway-authoritative reconciliation for a single
// order. The sweeper calls this for processing orders whose browser return or
// notification never arrived.
func (oc *Orchestrator) ReconcileOrder(ctx context.Context, orderID string) error {
	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == order.StatusCompleted {
		return nil
	}

	gwOrder, err := oc.api.RetrieveOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if err := oc.reconcile(ctx, o, gwOrder); err != nil {
		if isTerminalForAttempt(err) {
			oc.failOrder(ctx, "sweep", o, err.Error())
		}
		return err
	}

	oc.logger.Info().Str("order_id", o.ID).Str("status", string(o.Status)).
		Msg("order reconciled by sweep")
	return nil
}

// latestSettledTransaction picks the most recent authorization, payment or
// capture for the audit note.
func latestSettledTransaction(gw *gateway.Order) *gateway.Transaction {
	for i := len(gw.Transactions) - 1; i >= 0; i-- {
		t := gw.Transactions[i]
		switch t.Type {
		case gateway.TxnAuthorization, gateway.TxnPayment, gateway.TxnCapture:
			return &t
		}
	}
	return nil
}

func (oc *Orchestrator) noteReconcileFailure() {
	if oc.metrics != nil {
		oc.metrics.ReconcileFailures.Inc()
	}
}
