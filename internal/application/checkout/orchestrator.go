package checkout

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Config is the merchant policy the orchestrator runs under. Passed in
// explicitly at construction; nothing is read from globals.
type Config struct {
	// CaptureImmediate selects pay (auth+capture) over authorize-only.
	CaptureImmediate bool
	// StepUpEnabled turns on the 3-D Secure enrollment check.
	StepUpEnabled bool
	// StepUpResponseURL is where the ACS posts the cardholder back to.
	StepUpResponseURL string
	// StepUpTTL bounds how long a stored step-up context blocks fresh
	// attempts. Zero disables expiry.
	StepUpTTL time.Duration
	// HostedReturnURL is where the hosted checkout page returns the browser.
	HostedReturnURL string
}

// Orchestrator is the payment state machine. Each public method is one
// stateless invocation; suspension between states is the scratch state
// persisted on the order.
type Orchestrator struct {
	orders  order.Repository
	api     GatewayAPI
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

var _ PaymentGatewayPort = (*Orchestrator)(nil)

func NewOrchestrator(orders order.Repository, api GatewayAPI, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		orders:  orders,
		api:     api,
		cfg:     cfg,
		logger:  logger.With().Str("component", "checkout_orchestrator").Logger(),
		metrics: metrics,
	}
}

// ProcessPayment drives a checkout submission from INIT to a terminal state,
// or suspends awaiting step-up. A replayed submission for an already completed
// order returns success without issuing a new attempt.
func (oc *Orchestrator) ProcessPayment(ctx context.Context, orderID string, in PaymentInput) (Result, error) {
	defer oc.timePath("process_payment")()

	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.Status == order.StatusCompleted {
		return oc.finish("process_payment", succeeded(o)), nil
	}
	if o.StepUpContextID != "" {
		if !o.StepUpExpired(oc.cfg.StepUpTTL) {
			// A step-up round trip is in flight; the ACS return must consume
			// it before a new attempt may start.
			return Result{}, errors.ErrStepUpPending
		}
		// The cardholder never came back from the ACS. Drop the dead context
		// and let this submission start over.
		o.ClearStepUp()
		o.AddNote("expired step-up context discarded")
		oc.logger.Info().Str("order_id", o.ID).Msg("expired step-up context discarded")
	}

	if !oc.cfg.StepUpEnabled {
		return oc.submitPayment(ctx, "process_payment", o, nil, in)
	}

	// ENROLLMENT_CHECK
	enrollment, err := oc.api.CheckEnrollment(ctx, gateway.EnrollmentData{
		ResponseURL: oc.cfg.StepUpResponseURL,
	}, gateway.BuildOrderPayload(o), in.Session)
	if err != nil {
		return oc.handleGatewayError(ctx, "process_payment", o, "enrollment check", err)
	}

	if enrollment.Recommendation != gateway.RecommendationProceed {
		return oc.failOrder(ctx, "process_payment", o,
			fmt.Sprintf("card authentication not recommended (%s)", enrollment.Recommendation)), nil
	}

	if enrollment.Redirect != nil {
		// AWAITING_STEPUP: persist the pending context and suspend. The next
		// inbound request carries the step-up outcome.
		o.BeginStepUp(enrollment.Context.ID)
		o.AddNote("step-up authentication required, context %s", enrollment.Context.ID)
		if err := oc.orders.Update(ctx, o); err != nil {
			return Result{}, err
		}
		if oc.metrics != nil {
			oc.metrics.StepUpRedirects.Inc()
		}
		oc.logger.Info().Str("order_id", o.ID).Str("context_id", enrollment.Context.ID).
			Msg("suspending for step-up authentication")
		return Result{State: StateAwaitingStepUp, Order: o, Redirect: enrollment.Redirect}, nil
	}

	// No interactive step-up needed for this card.
	return oc.submitPayment(ctx, "process_payment", o, &enrollment.Context, in)
}

// ResumeStepUp re-enters the state machine after the cardholder returns from
// the ACS. The stored context is consumed once a definitive step-up outcome is
// obtained; a transient gateway failure leaves it in place so the return can
// be retried.
func (oc *Orchestrator) ResumeStepUp(ctx context.Context, orderID, paRes string, in PaymentInput) (Result, error) {
	defer oc.timePath("resume_stepup")()

	o, err := oc.loadOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.Status == order.StatusCompleted {
		return oc.finish("resume_stepup", succeeded(o)), nil
	}
	if o.StepUpContextID == "" {
		return oc.failOrder(ctx, "resume_stepup", o, errors.ErrNoPendingStepUp.Error()), nil
	}

	contextID := o.StepUpContextID

	// STEPUP_RESULT
	stepUp, err := oc.api.ProcessStepUpResult(ctx, contextID, paRes)
	if err != nil {
		if isTerminalForAttempt(err) {
			o.ClearStepUp()
		}
		return oc.handleGatewayError(ctx, "resume_stepup", o, "step-up result", err)
	}

	o.ClearStepUp()
	if err := oc.orders.Update(ctx, o); err != nil {
		return Result{}, err
	}

	if stepUp.Recommendation != gateway.RecommendationProceed {
		return oc.failOrder(ctx, "resume_stepup", o,
			fmt.Sprintf("card authentication failed (%s)", stepUp.Recommendation)), nil
	}

	return oc.submitPayment(ctx, "resume_stepup", o, &stepUp.Context, in)
}

// submitPayment allocates a fresh transaction reference, submits pay or
// authorize per the merchant capture policy, and reconciles the result.
func (oc *Orchestrator) submitPayment(ctx context.Context, path string, o *order.Order, threeDS *gateway.ThreeDSecureContext, in PaymentInput) (Result, error) {
	// A retried failure is a new logical attempt with a new reference.
	txnRef := o.NextAttemptReference()
	// Persist the counter before the remote call so a crash can never hand
	// the same reference to two attempts.
	if err := oc.orders.Update(ctx, o); err != nil {
		return Result{}, err
	}

	payload := gateway.BuildOrderPayload(o)
	customer := gateway.BuildCustomer(in.Customer)
	billing := gateway.BuildBilling(in.Customer)

	var (
		txn *gateway.Transaction
		err error
	)
	if oc.cfg.CaptureImmediate {
		txn, err = oc.api.Pay(ctx, txnRef, o.ID, payload, threeDS, in.Session, customer, billing)
	} else {
		txn, err = oc.api.Authorize(ctx, txnRef, o.ID, payload, threeDS, in.Session, customer, billing)
	}
	if err != nil {
		return oc.handleGatewayError(ctx, path, o, "payment submission", err)
	}

	oc.logger.Info().Str("order_id", o.ID).Str("txn_ref", txn.Reference).
		Str("type", txn.Type).Msg("payment submitted")

	// Reconcile against the gateway's authoritative order record.
	gwOrder, err := oc.api.RetrieveOrder(ctx, o.ID)
	if err != nil {
		return oc.handleGatewayError(ctx, path, o, "order retrieval", err)
	}
	if err := oc.reconcile(ctx, o, gwOrder); err != nil {
		return oc.handleGatewayError(ctx, path, o, "reconciliation", err)
	}

	return oc.finish(path, succeeded(o)), nil
}

// handleGatewayError converts business declines, shape errors and validation
// mismatches into a terminal FAILED transition; client and server errors
// propagate to the caller boundary.
func (oc *Orchestrator) handleGatewayError(ctx context.Context, path string, o *order.Order, stage string, err error) (Result, error) {
	if isTerminalForAttempt(err) {
		return oc.failOrder(ctx, path, o, fmt.Sprintf("%s: %v", stage, err)), nil
	}
	oc.logger.Error().Err(err).Str("order_id", o.ID).Str("stage", stage).
		Msg("gateway call failed")
	o.AddNote("%s error: %v", stage, err)
	if updateErr := oc.orders.Update(ctx, o); updateErr != nil {
		oc.logger.Error().Err(updateErr).Str("order_id", o.ID).Msg("failed to persist order note")
	}
	return Result{}, err
}

func (oc *Orchestrator) failOrder(ctx context.Context, path string, o *order.Order, reason string) Result {
	if o.Status != order.StatusFailed {
		if err := o.MarkFailed(reason); err != nil {
			oc.logger.Error().Err(err).Str("order_id", o.ID).Msg("failed to mark order failed")
		}
	} else {
		o.AddNote("payment failed: %s", reason)
	}
	if err := oc.orders.Update(ctx, o); err != nil {
		oc.logger.Error().Err(err).Str("order_id", o.ID).Msg("failed to persist failed order")
	}
	oc.logger.Warn().Str("order_id", o.ID).Str("reason", reason).Msg("payment attempt failed")
	return oc.finish(path, failed(o, reason))
}

func (oc *Orchestrator) finish(path string, r Result) Result {
	if oc.metrics != nil {
		oc.metrics.CheckoutOutcomes.WithLabelValues(path, string(r.State)).Inc()
	}
	return r
}

func (oc *Orchestrator) loadOrder(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := oc.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, errors.ErrOrderNotFound
	}
	return o, nil
}

func (oc *Orchestrator) timePath(path string) func() {
	start := time.Now()
	return func() {
		if oc.metrics != nil {
			oc.metrics.CheckoutDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
		}
	}
}

// isTerminalForAttempt reports whether the error ends the attempt rather than
// the invocation: business declines, malformed responses and reconciliation
// mismatches all fail the order; transport-level client/server errors
// propagate.
func isTerminalForAttempt(err error) bool {
	var (
		decline  *errors.BusinessDecline
		shape    *errors.ResponseShapeError
		mismatch *errors.ValidationMismatch
	)
	return stderrors.As(err, &decline) || stderrors.As(err, &shape) || stderrors.As(err, &mismatch)
}
