package controller

import (
	"time"

	"github.com/cassiomorais/cardgateway/internal/application/checkout"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (minor units for money, validation
// tags). Controllers convert these before calling into the orchestrator.

// CreateOrderRequest registers an order with the payment core.
type CreateOrderRequest struct {
	ID          string `json:"id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

// PayRequest is a checkout submission for an order.
type PayRequest struct {
	SessionID      string           `json:"session_id"`
	SessionVersion string           `json:"session_version,omitempty"`
	Customer       *CustomerRequest `json:"customer,omitempty"`
}

// CustomerRequest is the customer/billing slice of a checkout submission.
type CustomerRequest struct {
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`

	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	StateProv   string `json:"state_province,omitempty"`
	PostcodeZip string `json:"postcode_zip,omitempty"`
	Country     string `json:"country,omitempty" validate:"omitempty,len=3"`
}

// VoidRequest targets a prior transaction.
type VoidRequest struct {
	TargetTxnRef string `json:"target_txn_ref" validate:"required"`
}

// RefundRequest targets a prior transaction.
type RefundRequest struct {
	TargetTxnRef string `json:"target_txn_ref" validate:"required"`
}

// NotificationRequest is the asynchronous gateway callback body.
type NotificationRequest struct {
	ID    string             `json:"id"`
	Order NotificationTarget `json:"order"`
	Txn   NotificationTarget `json:"transaction"`
}

// NotificationTarget identifies the order or transaction a notification
// refers to.
type NotificationTarget struct {
	ID string `json:"id"`
}

// --- Response DTOs ---

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID                string    `json:"id"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	Captured          bool      `json:"captured"`
	GatewayTxnRef     string    `json:"gateway_txn_ref,omitempty"`
	AuthorizationCode string    `json:"authorization_code,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PayResponse is the outcome of one orchestrator invocation.
type PayResponse struct {
	State       string                   `json:"state"`
	Order       *OrderResponse           `json:"order,omitempty"`
	Redirect    *gateway.RedirectPayload `json:"redirect,omitempty"`
	CheckoutID  string                   `json:"checkout_session_id,omitempty"`
	RedirectURL string                   `json:"redirect_url,omitempty"`
	Reason      string                   `json:"reason,omitempty"`
}

// TransactionResponse represents a gateway transaction in API responses.
type TransactionResponse struct {
	Reference         string `json:"reference"`
	Type              string `json:"type"`
	Result            string `json:"result"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	TargetReference   string `json:"target_reference,omitempty"`
}

func toOrderResponse(o *order.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	return &OrderResponse{
		ID:                o.ID,
		AmountCents:       o.Amount.ValueCents,
		Currency:          o.Amount.Currency,
		Status:            string(o.Status),
		Captured:          o.Captured,
		GatewayTxnRef:     o.GatewayTxnRef,
		AuthorizationCode: o.AuthorizationCode,
		FailureReason:     o.FailureReason,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toPayResponse(res checkout.Result) PayResponse {
	resp := PayResponse{
		State:    string(res.State),
		Order:    toOrderResponse(res.Order),
		Redirect: res.Redirect,
		Reason:   res.FailureReason,
	}
	if res.Checkout != nil {
		resp.CheckoutID = res.Checkout.Session.ID
	}
	return resp
}

func toTransactionResponse(t *gateway.Transaction) TransactionResponse {
	return TransactionResponse{
		Reference:         t.Reference,
		Type:              t.Type,
		Result:            t.Result,
		Amount:            t.Amount.StringFixed(2),
		Currency:          t.Currency,
		AuthorizationCode: t.AuthorizationCode,
		TargetReference:   t.TargetReference,
	}
}

func toCustomerDetails(c *CustomerRequest) *gateway.CustomerDetails {
	if c == nil {
		return nil
	}
	return &gateway.CustomerDetails{
		Email:       c.Email,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Phone:       c.Phone,
		Street:      c.Street,
		City:        c.City,
		StateProv:   c.StateProv,
		PostcodeZip: c.PostcodeZip,
		Country:     c.Country,
	}
}
