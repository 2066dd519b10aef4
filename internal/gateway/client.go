package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	"github.com/cassiomorais/cardgateway/pkg/retry"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Config holds the merchant credentials and tuning for the gateway client.
// Passed in explicitly; nothing is read from globals.
type Config struct {
	// BaseURL is the merchant-scoped API root, e.g.
	// https://gateway.example.com/api/rest/version/61/merchant/TESTMERCHANT.
	BaseURL    string
	MerchantID string
	Password   string
	Timeout    time.Duration
	Retry      retry.Config
}

// Client builds authenticated requests against the remote gateway, classifies
// responses and translates transport failures into the typed error taxonomy.
// No business logic lives here.
type Client struct {
	http    *resty.Client
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

func NewClient(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth("merchant."+cfg.MerchantID, cfg.Password).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return &Client{
		http:    http,
		cfg:     cfg,
		logger:  logger.With().Str("component", "gateway_client").Logger(),
		metrics: metrics,
		breaker: breaker,
	}
}

// do performs one logical gateway exchange: request logging, circuit breaker,
// bounded retry for server-class failures, status classification and body
// parsing. Retries reuse the exact same request; the reference in the path is
// what makes the remote mutation idempotent.
func (c *Client) do(ctx context.Context, method, path, operation string, body, out any) error {
	correlationID := uuid.New().String()
	log := c.logger.With().
		Str("correlation_id", correlationID).
		Str("operation", operation).
		Str("method", method).
		Str("path", path).
		Logger()

	if body != nil {
		raw, _ := json.Marshal(body)
		log.Debug().RawJSON("request", raw).Msg("gateway request")
	} else {
		log.Debug().Msg("gateway request")
	}

	start := time.Now()
	attempts := 0
	resp, err := retry.DoWithResult(ctx, c.cfg.Retry, domainErrors.Retryable, func() (*resty.Response, error) {
		attempts++
		if attempts > 1 && c.metrics != nil {
			c.metrics.GatewayRetriesTotal.WithLabelValues(operation).Inc()
		}
		return c.breaker.Execute(func() (*resty.Response, error) {
			req := c.http.R().SetContext(ctx)
			if body != nil {
				req.SetBody(body)
			}
			r, execErr := req.Execute(method, path)
			if execErr != nil {
				return nil, &domainErrors.ServerError{Cause: execErr.Error()}
			}
			if r.StatusCode() >= 500 {
				return r, &domainErrors.ServerError{Status: r.StatusCode(), Cause: upstreamCause(r.Body())}
			}
			return r, nil
		})
	})

	if c.metrics != nil {
		c.metrics.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		// Breaker rejections behave like any other server-side outage.
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = &domainErrors.ServerError{Cause: err.Error()}
		}
		c.observe(operation, "error")
		log.Error().Err(err).Msg("gateway request failed")
		return err
	}

	log.Debug().
		Int("status", resp.StatusCode()).
		RawJSON("response", normalizeJSON(resp.Body())).
		Msg("gateway response")

	if resp.StatusCode() >= 400 {
		cause, explanation := upstreamError(resp.Body())
		c.observe(operation, "client_error")
		return &domainErrors.ClientError{Status: resp.StatusCode(), Cause: cause, Explanation: explanation}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		// A body that fails to parse is a server fault regardless of status.
		c.observe(operation, "error")
		return &domainErrors.ServerError{Status: resp.StatusCode(), Cause: "unparsable response body: " + err.Error()}
	}

	c.observe(operation, "ok")
	return nil
}

func (c *Client) observe(operation, outcome string) {
	if c.metrics != nil {
		c.metrics.GatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

// upstreamError extracts error.cause and error.explanation from a 4xx body.
func upstreamError(body []byte) (string, string) {
	var envelope struct {
		Error apiError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return "INVALID_REQUEST", string(body)
	}
	return envelope.Error.Cause, envelope.Error.Explanation
}

func upstreamCause(body []byte) string {
	cause, explanation := upstreamError(body)
	if explanation != "" {
		return fmt.Sprintf("%s: %s", cause, explanation)
	}
	return cause
}

// normalizeJSON keeps zerolog's RawJSON from choking on empty bodies.
func normalizeJSON(body []byte) []byte {
	if len(body) == 0 || !json.Valid(body) {
		raw, _ := json.Marshal(string(body))
		return raw
	}
	return body
}

// requireSuccess rejects any response lacking the result == SUCCESS marker.
func requireSuccess(operation, result string) error {
	if result == "" {
		return &domainErrors.ResponseShapeError{Operation: operation, Field: "result"}
	}
	if result != ResultSuccess {
		return &domainErrors.BusinessDecline{Operation: operation, Result: result}
	}
	return nil
}

// --- session operations ---

// CreateSession asks the gateway for a new card-collection session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, resty.MethodPost, "/session", "create_session", nil, &resp); err != nil {
		return nil, err
	}
	if err := requireSuccess("create_session", resp.Result); err != nil {
		return nil, err
	}
	if resp.Session.ID == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "create_session", Field: "session.id"}
	}
	return &resp.Session, nil
}

// UpdateSession writes order details onto an existing session.
func (c *Client) UpdateSession(ctx context.Context, session Session, update SessionUpdate) (*Session, error) {
	var resp sessionResponse
	path := "/session/" + session.ID
	if err := c.do(ctx, resty.MethodPut, path, "update_session", update, &resp); err != nil {
		return nil, err
	}
	if err := requireSuccess("update_session", resp.Result); err != nil {
		return nil, err
	}
	if resp.Session.ID == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "update_session", Field: "session.id"}
	}
	return &resp.Session, nil
}

// CreateCheckoutSession opens a hosted-checkout session. The returned success
// indicator is the server-authoritative token the dispatcher later compares
// against the browser's result token.
func (c *Client) CreateCheckoutSession(ctx context.Context, ord OrderPayload, returnURL string) (*CheckoutSession, error) {
	body := map[string]any{
		"apiOperation": opCreateCheckoutSession,
		"order":        ord,
		"interaction": map[string]any{
			"returnUrl": returnURL,
		},
	}
	var resp sessionResponse
	if err := c.do(ctx, resty.MethodPost, "/session", "create_checkout_session", body, &resp); err != nil {
		return nil, err
	}
	if err := requireSuccess("create_checkout_session", resp.Result); err != nil {
		return nil, err
	}
	if resp.Session.ID == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "create_checkout_session", Field: "session.id"}
	}
	if resp.SuccessIndicator == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "create_checkout_session", Field: "successIndicator"}
	}
	return &CheckoutSession{Session: resp.Session, SuccessIndicator: resp.SuccessIndicator}, nil
}

// --- 3-D Secure operations ---

// CheckEnrollment asks whether the card is enrolled for step-up
// authentication. The context id is client-chosen so the call is repeatable.
func (c *Client) CheckEnrollment(ctx context.Context, data EnrollmentData, ord OrderPayload, session *Session) (*EnrollmentResult, error) {
	contextID := uuid.New().String()
	body := map[string]any{
		"apiOperation": opCheckEnrollment,
		"3DSecure":     data,
		"order":        ord,
	}
	if session != nil {
		body["session"] = session
	}

	var resp enrollmentResponse
	if err := c.do(ctx, resty.MethodPut, "/3DSecureId/"+contextID, "check_enrollment", body, &resp); err != nil {
		return nil, err
	}
	if resp.Result == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "check_enrollment", Field: "result"}
	}
	if resp.ThreeDSecureID == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "check_enrollment", Field: "3DSecureId"}
	}

	return &EnrollmentResult{
		Context: ThreeDSecureContext{
			ID:       resp.ThreeDSecureID,
			XID:      resp.ThreeDSecure.XID,
			Enrolled: resp.ThreeDSecure.EnrollmentStatus,
		},
		Recommendation: resp.Response.GatewayRecommendation,
		Redirect:       resp.ThreeDSecure.AuthenticationRedirect,
	}, nil
}

// ProcessStepUpResult submits the cardholder's ACS payload for the stored
// context.
func (c *Client) ProcessStepUpResult(ctx context.Context, contextID, paRes string) (*StepUpResult, error) {
	body := map[string]any{
		"apiOperation": opProcessACSResult,
		"3DSecure": map[string]any{
			"paRes": paRes,
		},
	}

	var resp enrollmentResponse
	if err := c.do(ctx, resty.MethodPost, "/3DSecureId/"+contextID, "process_stepup_result", body, &resp); err != nil {
		return nil, err
	}
	if resp.Result == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "process_stepup_result", Field: "result"}
	}

	return &StepUpResult{
		Context: ThreeDSecureContext{
			ID:                  contextID,
			ECI:                 resp.ThreeDSecure.ECI,
			AuthenticationToken: resp.ThreeDSecure.AuthenticationToken,
			Status:              resp.ThreeDSecure.AuthenticationStatus,
			Enrolled:            resp.ThreeDSecure.EnrollmentStatus,
			XID:                 resp.ThreeDSecure.XID,
		},
		Recommendation: resp.Response.GatewayRecommendation,
	}, nil
}

// --- transaction operations ---

type txnPayload struct {
	Reference           string `json:"reference,omitempty"`
	Amount              string `json:"amount,omitempty"`
	Currency            string `json:"currency,omitempty"`
	TargetTransactionID string `json:"targetTransactionId,omitempty"`
}

type billingPayload struct {
	Address *Billing `json:"address,omitempty"`
}

type txnRequest struct {
	APIOperation   string          `json:"apiOperation"`
	Order          *OrderPayload   `json:"order,omitempty"`
	Session        *Session        `json:"session,omitempty"`
	Customer       *Customer       `json:"customer,omitempty"`
	Billing        *billingPayload `json:"billing,omitempty"`
	ThreeDSecureID string          `json:"3DSecureId,omitempty"`
	Transaction    *txnPayload     `json:"transaction,omitempty"`
}

// Authorize reserves funds without capturing them. txnRef is the
// caller-chosen reference; repeating the call with the same reference is safe.
func (c *Client) Authorize(ctx context.Context, txnRef, orderID string, ord OrderPayload, threeDS *ThreeDSecureContext, session *Session, customer *Customer, billing *Billing) (*Transaction, error) {
	return c.submit(ctx, opAuthorize, "authorize", txnRef, orderID, ord, threeDS, session, customer, billing)
}

// Pay authorizes and captures atomically. Same contract as Authorize.
func (c *Client) Pay(ctx context.Context, txnRef, orderID string, ord OrderPayload, threeDS *ThreeDSecureContext, session *Session, customer *Customer, billing *Billing) (*Transaction, error) {
	return c.submit(ctx, opPay, "pay", txnRef, orderID, ord, threeDS, session, customer, billing)
}

func (c *Client) submit(ctx context.Context, apiOp, operation, txnRef, orderID string, ord OrderPayload, threeDS *ThreeDSecureContext, session *Session, customer *Customer, billing *Billing) (*Transaction, error) {
	req := txnRequest{
		APIOperation: apiOp,
		Order:        &ord,
		Session:      session,
		Customer:     customer,
		Transaction:  &txnPayload{Reference: txnRef},
	}
	if billing != nil {
		req.Billing = &billingPayload{Address: billing}
	}
	if threeDS != nil {
		req.ThreeDSecureID = threeDS.ID
	}

	path := fmt.Sprintf("/order/%s/transaction/%s", orderID, txnRef)
	var resp transactionResponse
	if err := c.do(ctx, resty.MethodPut, path, operation, req, &resp); err != nil {
		return nil, err
	}
	return validateTransaction(operation, &resp)
}

// RetrieveOrder fetches the gateway's authoritative order record.
func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp orderResponse
	if err := c.do(ctx, resty.MethodGet, "/order/"+orderID, "retrieve_order", nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "retrieve_order", Field: "id"}
	}
	return resp.toOrder(), nil
}

// RetrieveTransaction fetches a single transaction by reference.
func (c *Client) RetrieveTransaction(ctx context.Context, orderID, txnRef string) (*Transaction, error) {
	path := fmt.Sprintf("/order/%s/transaction/%s", orderID, txnRef)
	var resp transactionResponse
	if err := c.do(ctx, resty.MethodGet, path, "retrieve_transaction", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Transaction.ID == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "retrieve_transaction", Field: "transaction.id"}
	}
	return txnFromResponse(&resp), nil
}

// VoidTransaction reverses a prior transaction. The new reference is derived
// from the original so a retried void reuses the same reference.
func (c *Client) VoidTransaction(ctx context.Context, orderID, originalTxnRef string) (*Transaction, error) {
	voidRef := "void-" + originalTxnRef
	req := txnRequest{
		APIOperation: opVoid,
		Transaction:  &txnPayload{Reference: voidRef, TargetTransactionID: originalTxnRef},
	}
	path := fmt.Sprintf("/order/%s/transaction/%s", orderID, voidRef)
	var resp transactionResponse
	if err := c.do(ctx, resty.MethodPut, path, "void", req, &resp); err != nil {
		return nil, err
	}
	return validateTransaction("void", &resp)
}

// CaptureTransaction moves previously authorized funds. txnRef is chosen by
// the caller (capture-<attempt>).
func (c *Client) CaptureTransaction(ctx context.Context, orderID, txnRef, amount, currency string) (*Transaction, error) {
	req := txnRequest{
		APIOperation: opCapture,
		Transaction:  &txnPayload{Reference: txnRef, Amount: amount, Currency: currency},
	}
	path := fmt.Sprintf("/order/%s/transaction/%s", orderID, txnRef)
	var resp transactionResponse
	if err := c.do(ctx, resty.MethodPut, path, "capture", req, &resp); err != nil {
		return nil, err
	}
	return validateTransaction("capture", &resp)
}

// Refund returns captured funds against the original transaction.
func (c *Client) Refund(ctx context.Context, orderID, originalTxnRef, amount, currency string) (*Transaction, error) {
	refundRef := "refund-" + originalTxnRef
	req := txnRequest{
		APIOperation: opRefund,
		Transaction: &txnPayload{
			Reference:           refundRef,
			Amount:              amount,
			Currency:            currency,
			TargetTransactionID: originalTxnRef,
		},
	}
	path := fmt.Sprintf("/order/%s/transaction/%s", orderID, refundRef)
	var resp transactionResponse
	if err := c.do(ctx, resty.MethodPut, path, "refund", req, &resp); err != nil {
		return nil, err
	}
	return validateTransaction("refund", &resp)
}

// --- auxiliary operations ---

// ListPaymentOptions returns the payment methods enabled on the merchant
// profile.
func (c *Client) ListPaymentOptions(ctx context.Context) ([]PaymentOption, error) {
	var resp paymentOptionsResponse
	if err := c.do(ctx, resty.MethodGet, "/paymentOptionsInquiry", "list_payment_options", nil, &resp); err != nil {
		return nil, err
	}
	if err := requireSuccess("list_payment_options", resp.Result); err != nil {
		return nil, err
	}
	options := make([]PaymentOption, 0, len(resp.PaymentOptions))
	for _, po := range resp.PaymentOptions {
		options = append(options, PaymentOption{
			PaymentType: po.PaymentType,
			Currencies:  po.Currencies,
			CardSchemes: po.CardSchemes,
		})
	}
	return options, nil
}

// CreateCardToken vaults the card collected on a session.
func (c *Client) CreateCardToken(ctx context.Context, sessionID string) (*CardToken, error) {
	body := map[string]any{
		"session": Session{ID: sessionID},
	}
	var resp tokenResponse
	if err := c.do(ctx, resty.MethodPost, "/token", "create_card_token", body, &resp); err != nil {
		return nil, err
	}
	if err := requireSuccess("create_card_token", resp.Result); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: "create_card_token", Field: "token"}
	}
	return &CardToken{Token: resp.Token}, nil
}

func validateTransaction(operation string, resp *transactionResponse) (*Transaction, error) {
	if err := requireSuccess(operation, resp.Result); err != nil {
		return nil, err
	}
	if resp.Transaction.ID == "" {
		return nil, &domainErrors.ResponseShapeError{Operation: operation, Field: "transaction.id"}
	}
	return txnFromResponse(resp), nil
}

func txnFromResponse(resp *transactionResponse) *Transaction {
	t := resp.Transaction.toTransaction(resp.Result)
	return &t
}
