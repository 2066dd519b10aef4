package controller

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cassiomorais/cardgateway/internal/application/checkout"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/cardgateway/internal/infrastructure/redis"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CheckoutController is the dispatcher: one stateless entry per inbound
// redirect, notification or admin action. It parses parameters, re-enters the
// orchestrator at the right state, and alone decides redirects.
type CheckoutController struct {
	port    checkout.PaymentGatewayPort
	orders  order.Repository
	locks   *infraRedis.LockManager
	dedup   *infraRedis.NotificationDedup
	cfg     config.CheckoutConfig
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewCheckoutController(
	port checkout.PaymentGatewayPort,
	orders order.Repository,
	locks *infraRedis.LockManager,
	dedup *infraRedis.NotificationDedup,
	cfg config.CheckoutConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *CheckoutController {
	return &CheckoutController{
		port:    port,
		orders:  orders,
		locks:   locks,
		dedup:   dedup,
		cfg:     cfg,
		logger:  logger.With().Str("component", "checkout_controller").Logger(),
		metrics: metrics,
	}
}

// withOrderLock serializes handlers racing on the same order (browser return
// vs asynchronous notification).
func (h *CheckoutController) withOrderLock(ctx context.Context, orderID string, fn func() error) error {
	if h.locks == nil {
		return fn()
	}
	return h.locks.WithOrderLock(ctx, orderID, fn)
}

// CreateOrder registers an order with the payment core.
func (h *CheckoutController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	o, err := order.New(req.ID, order.Amount{ValueCents: req.AmountCents, Currency: req.Currency})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.orders.Create(r.Context(), o); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder returns the payment core's view of an order.
func (h *CheckoutController) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Pay handles a checkout submission. Under the hosted-checkout policy it
// opens a hosted session instead of driving the card flow directly.
func (h *CheckoutController) Pay(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req PayRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := checkout.PaymentInput{Customer: toCustomerDetails(req.Customer)}
	if req.SessionID != "" {
		in.Session = &gateway.Session{ID: req.SessionID, Version: req.SessionVersion}
	}

	var res checkout.Result
	err := h.withOrderLock(r.Context(), orderID, func() error {
		var innerErr error
		if h.cfg.HostedCheckout {
			res, innerErr = h.port.BeginHostedCheckout(r.Context(), orderID)
		} else {
			res, innerErr = h.port.ProcessPayment(r.Context(), orderID, in)
		}
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toPayResponse(res)
	switch res.State {
	case checkout.StateSuccess:
		resp.RedirectURL = h.cfg.SuccessURL
	case checkout.StateFailed:
		resp.RedirectURL = h.failureRedirect(res.FailureReason)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Return is the browser's way back: either the ACS posting the step-up
// outcome or the hosted checkout page returning a result token. Both resolve
// to a redirect.
func (h *CheckoutController) Return(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, h.failureRedirect("malformed return request"), http.StatusFound)
		return
	}

	paRes := r.Form.Get("PaRes")
	resultToken := r.Form.Get("resultIndicator")

	var res checkout.Result
	err := h.withOrderLock(r.Context(), orderID, func() error {
		var innerErr error
		switch {
		case paRes != "":
			res, innerErr = h.port.ResumeStepUp(r.Context(), orderID, paRes, checkout.PaymentInput{})
		case resultToken != "":
			res, innerErr = h.port.HandleReturn(r.Context(), orderID, resultToken)
		default:
			res = checkout.Result{State: checkout.StateFailed, FailureReason: "missing return parameters"}
		}
		return innerErr
	})
	if err != nil {
		h.logger.Error().Err(err).Str("order_id", orderID).Msg("return handling failed")
		http.Redirect(w, r, h.failureRedirect("payment could not be completed"), http.StatusFound)
		return
	}

	if res.State == checkout.StateSuccess {
		http.Redirect(w, r, h.cfg.SuccessURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, h.failureRedirect(res.FailureReason), http.StatusFound)
}

// Notify ingests asynchronous gateway callbacks. Delivery is acked with a
// success status regardless of processing outcome, per the gateway's
// delivery contract; redeliveries are suppressed via the dedup store.
func (h *CheckoutController) Notify(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.countNotification("malformed")
		writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
		return
	}

	if h.dedup != nil && req.ID != "" {
		first, err := h.dedup.FirstDelivery(r.Context(), req.ID)
		if err == nil && !first {
			h.countNotification("duplicate")
			writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
			return
		}
	}

	err := h.withOrderLock(r.Context(), req.Order.ID, func() error {
		return h.port.HandleNotification(r.Context(), checkout.Notification{
			ID:      req.ID,
			OrderID: req.Order.ID,
			TxnRef:  req.Txn.ID,
		})
	})
	if err != nil {
		h.logger.Error().Err(err).Str("notification_id", req.ID).
			Str("order_id", req.Order.ID).Msg("notification processing failed")
		h.countNotification("failed")
	} else {
		h.countNotification("processed")
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
}

// Capture moves authorized funds for an order (admin action).
func (h *CheckoutController) Capture(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var txn *gateway.Transaction
	err := h.withOrderLock(r.Context(), orderID, func() error {
		var innerErr error
		txn, innerErr = h.port.Capture(r.Context(), orderID)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

// Void reverses a prior transaction (admin action).
func (h *CheckoutController) Void(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req VoidRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var txn *gateway.Transaction
	err := h.withOrderLock(r.Context(), orderID, func() error {
		var innerErr error
		txn, innerErr = h.port.Void(r.Context(), orderID, req.TargetTxnRef)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

// Refund returns captured funds (admin action).
func (h *CheckoutController) Refund(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req RefundRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var txn *gateway.Transaction
	err := h.withOrderLock(r.Context(), orderID, func() error {
		var innerErr error
		txn, innerErr = h.port.Refund(r.Context(), orderID, req.TargetTxnRef)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *CheckoutController) failureRedirect(reason string) string {
	if reason == "" {
		reason = "payment failed"
	}
	return h.cfg.CheckoutURL + "?payment_error=" + url.QueryEscape(reason)
}

func (h *CheckoutController) countNotification(outcome string) {
	if h.metrics != nil {
		h.metrics.NotificationsTotal.WithLabelValues(outcome).Inc()
	}
}
