package checkout

import (
	"context"
	"fmt"

	"github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// Capture moves the authorized funds for an order. Allowed only while the
// order is processing with the capture flag unset; once the flag is set a
// second capture is rejected locally without a remote call.
func (oc *Orchestrator) Capture(ctx context.Context, orderID string) (*gateway.Transaction, error) {
	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Captured {
		return nil, errors.ErrAlreadyCaptured
	}
	if o.Status != order.StatusProcessing {
		return nil, errors.ErrOrderNotCapturable
	}

	captureRef := fmt.Sprintf("capture-%d", o.AttemptCounter)
	txn, err := oc.api.CaptureTransaction(ctx, o.ID, captureRef,
		o.Amount.Decimal().StringFixed(2), o.Amount.Currency)
	if err != nil {
		o.AddNote("capture %s failed: %v", captureRef, err)
		if updateErr := oc.orders.Update(ctx, o); updateErr != nil {
			oc.logger.Error().Err(updateErr).Str("order_id", o.ID).Msg("failed to persist capture note")
		}
		return nil, err
	}

	if err := o.MarkCompleted(); err != nil {
		return nil, err
	}
	o.AddNote("captured %s (%s)", o.Amount, txn.Reference)
	if err := oc.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	oc.logger.Info().Str("order_id", o.ID).Str("txn_ref", txn.Reference).Msg("capture complete")
	return txn, nil
}

// Void reverses a prior transaction. The reference is derived from the target
// so a retried void reuses the same reference.
func (oc *Orchestrator) Void(ctx context.Context, orderID, targetTxnRef string) (*gateway.Transaction, error) {
	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	txn, err := oc.api.VoidTransaction(ctx, o.ID, targetTxnRef)
	if err != nil {
		return nil, err
	}

	o.AddNote("voided transaction %s (%s)", targetTxnRef, txn.Reference)
	if err := oc.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	oc.logger.Info().Str("order_id", o.ID).Str("target", targetTxnRef).
		Str("txn_ref", txn.Reference).Msg("void complete")
	return txn, nil
}

// Refund returns captured funds against the original transaction for the
// order's full amount.
func (oc *Orchestrator) Refund(ctx context.Context, orderID, targetTxnRef string) (*gateway.Transaction, error) {
	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	txn, err := oc.api.Refund(ctx, o.ID, targetTxnRef,
		o.Amount.Decimal().StringFixed(2), o.Amount.Currency)
	if err != nil {
		return nil, err
	}

	o.AddNote("refunded %s against %s (%s)", o.Amount, targetTxnRef, txn.Reference)
	if err := oc.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	oc.logger.Info().Str("order_id", o.ID).Str("target", targetTxnRef).
		Str("txn_ref", txn.Reference).Msg("refund complete")
	return txn, nil
}
