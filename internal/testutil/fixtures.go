package testutil

import (
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/shopspring/decimal"
)

func NewTestOrder(id string, amountCents int64, currency string) *order.Order {
	now := time.Now()
	return &order.Order{
		ID:        id,
		Amount:    order.Amount{ValueCents: amountCents, Currency: currency},
		Status:    order.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewProcessingOrder(id string, amountCents int64, currency string) *order.Order {
	o := NewTestOrder(id, amountCents, currency)
	o.Status = order.StatusProcessing
	o.AttemptCounter = 1
	o.GatewayTxnRef = "1"
	return o
}

func NewCompletedOrder(id string, amountCents int64, currency string) *order.Order {
	o := NewProcessingOrder(id, amountCents, currency)
	o.Status = order.StatusCompleted
	o.Captured = true
	return o
}

// NewGatewayOrder mirrors what RetrieveOrder reports for an order of the
// given amount.
func NewGatewayOrder(id string, amountCents int64, currency, status string) *gateway.Order {
	return &gateway.Order{
		ID:       id,
		Amount:   decimal.New(amountCents, -2),
		Currency: currency,
		Status:   status,
		Transactions: []gateway.Transaction{
			{
				Reference:         "1",
				Type:              gateway.TxnAuthorization,
				Result:            gateway.ResultSuccess,
				Amount:            decimal.New(amountCents, -2),
				Currency:          currency,
				AuthorizationCode: "AUTH123",
			},
		},
	}
}
