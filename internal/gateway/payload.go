package gateway

import (
	"github.com/cassiomorais/cardgateway/internal/domain/order"
)

// CustomerDetails is the minimal customer/billing slice the host storefront
// hands the orchestrator alongside an order.
type CustomerDetails struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string

	Street      string
	City        string
	StateProv   string
	PostcodeZip string
	Country     string
}

// BuildOrderPayload maps a local order into the wire shape the gateway
// expects. Amounts are rendered in the gateway's two-decimal fixed-point form.
func BuildOrderPayload(o *order.Order) OrderPayload {
	return OrderPayload{
		ID:       o.ID,
		Amount:   o.Amount.Decimal().StringFixed(2),
		Currency: o.Amount.Currency,
	}
}

// BuildCustomer maps host customer details into the customer wire slice.
// Returns nil when nothing useful is present.
func BuildCustomer(d *CustomerDetails) *Customer {
	if d == nil {
		return nil
	}
	if d.Email == "" && d.FirstName == "" && d.LastName == "" && d.Phone == "" {
		return nil
	}
	return &Customer{
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Phone:     d.Phone,
	}
}

// BuildBilling maps host billing details into the billing-address wire slice.
// Returns nil when nothing useful is present.
func BuildBilling(d *CustomerDetails) *Billing {
	if d == nil {
		return nil
	}
	if d.Street == "" && d.City == "" && d.PostcodeZip == "" && d.Country == "" {
		return nil
	}
	return &Billing{
		Street:      d.Street,
		City:        d.City,
		StateProv:   d.StateProv,
		PostcodeZip: d.PostcodeZip,
		Country:     d.Country,
	}
}
