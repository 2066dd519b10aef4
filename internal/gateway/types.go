package gateway

import (
	"github.com/shopspring/decimal"
)

// Gateway result markers and advisory verdicts.
const (
	ResultSuccess = "SUCCESS"
	ResultFailure = "FAILURE"
	ResultPending = "PENDING"

	RecommendationProceed      = "PROCEED"
	RecommendationDoNotProceed = "DO_NOT_PROCEED"
)

// Transaction types reported by the gateway.
const (
	TxnAuthorization = "AUTHORIZATION"
	TxnCapture       = "CAPTURE"
	TxnPayment       = "PAYMENT"
	TxnVoid          = "VOID"
	TxnRefund        = "REFUND"
)

// Gateway-side order statuses relevant to reconciliation.
const (
	OrderAuthorized = "AUTHORIZED"
	OrderCaptured   = "CAPTURED"
)

// apiOperation values for the request envelope.
const (
	opCheckEnrollment       = "CHECK_3DS_ENROLLMENT"
	opProcessACSResult      = "PROCESS_ACS_RESULT"
	opAuthorize             = "AUTHORIZE"
	opPay                   = "PAY"
	opVoid                  = "VOID"
	opCapture               = "CAPTURE"
	opRefund                = "REFUND"
	opCreateCheckoutSession = "CREATE_CHECKOUT_SESSION"
)

// Session correlates client-side card collection with a server-side
// transaction. Opaque beyond id and version.
type Session struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// CheckoutSession is a hosted-checkout session plus the server-authoritative
// success indicator the dispatcher later compares against the return token.
type CheckoutSession struct {
	Session          Session
	SuccessIndicator string
}

// RedirectPayload is the interactive step-up redirect: HTTP method, ACS target
// and the opaque fields the browser must post along.
type RedirectPayload struct {
	Method string            `json:"method"`
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ThreeDSecureContext is issued per enrollment check and consumed exactly once
// by the following pay/authorize call.
type ThreeDSecureContext struct {
	ID                  string
	ECI                 string
	AuthenticationToken string
	Status              string
	Enrolled            string
	XID                 string
}

// EnrollmentResult is the gateway's answer to a CHECK_3DS_ENROLLMENT call.
type EnrollmentResult struct {
	Context        ThreeDSecureContext
	Recommendation string
	// Redirect is non-nil when the cardholder must visit the issuer's ACS.
	Redirect *RedirectPayload
}

// StepUpResult is the gateway's answer to a PROCESS_ACS_RESULT call.
type StepUpResult struct {
	Context        ThreeDSecureContext
	Recommendation string
}

// Transaction is immutable once returned by the gateway.
type Transaction struct {
	Reference         string
	Type              string
	Result            string
	Amount            decimal.Decimal
	Currency          string
	AuthorizationCode string
	Receipt           string
	TargetReference   string
}

// Order is the gateway's authoritative record of what actually happened. The
// local order is reconciled against it, never the reverse.
type Order struct {
	ID           string
	Amount       decimal.Decimal
	Currency     string
	Status       string
	Transactions []Transaction
}

// PaymentOption describes one payment method the merchant profile supports.
type PaymentOption struct {
	PaymentType string
	Currencies  []string
	CardSchemes []string
}

// CardToken is a gateway-vaulted card reference created from a session.
type CardToken struct {
	Token string
}

// --- request-side payload shapes ---

// OrderPayload is the order slice of a request body.
type OrderPayload struct {
	ID       string `json:"id,omitempty"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Customer is the customer slice of a request body.
type Customer struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Billing is the billing-address slice of a request body.
type Billing struct {
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	StateProv   string `json:"stateProvince,omitempty"`
	PostcodeZip string `json:"postcodeZip,omitempty"`
	Country     string `json:"country,omitempty"`
}

// EnrollmentData carries the browser context the issuer needs for the
// enrollment check.
type EnrollmentData struct {
	ResponseURL string `json:"responseUrl"`
	PageID      string `json:"pageId,omitempty"`
}

// SessionUpdate is the mutable slice of a session sent on updateSession.
type SessionUpdate struct {
	Order *OrderPayload `json:"order,omitempty"`
}

// --- wire response envelopes ---

type apiError struct {
	Cause       string `json:"cause"`
	Explanation string `json:"explanation"`
}

type sessionResponse struct {
	Result           string   `json:"result"`
	Session          Session  `json:"session"`
	SuccessIndicator string   `json:"successIndicator"`
	Error            apiError `json:"error"`
}

type enrollmentResponse struct {
	Result         string `json:"result"`
	ThreeDSecureID string `json:"3DSecureId"`
	ThreeDSecure   struct {
		XID                    string           `json:"xid"`
		ECI                    string           `json:"eci"`
		AuthenticationToken    string           `json:"authenticationToken"`
		AuthenticationStatus   string           `json:"authenticationStatus"`
		EnrollmentStatus       string           `json:"enrollmentStatus"`
		AuthenticationRedirect *RedirectPayload `json:"authenticationRedirect"`
	} `json:"3DSecure"`
	Response struct {
		GatewayRecommendation string `json:"gatewayRecommendation"`
	} `json:"response"`
	Error apiError `json:"error"`
}

type transactionBody struct {
	ID                  string          `json:"id"`
	Type                string          `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	AuthorizationCode   string          `json:"authorizationCode"`
	Receipt             string          `json:"receipt"`
	TargetTransactionID string          `json:"targetTransactionId"`
}

func (t transactionBody) toTransaction(result string) Transaction {
	return Transaction{
		Reference:         t.ID,
		Type:              t.Type,
		Result:            result,
		Amount:            t.Amount,
		Currency:          t.Currency,
		AuthorizationCode: t.AuthorizationCode,
		Receipt:           t.Receipt,
		TargetReference:   t.TargetTransactionID,
	}
}

type transactionResponse struct {
	Result      string          `json:"result"`
	Transaction transactionBody `json:"transaction"`
	Order       struct {
		ID       string          `json:"id"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Status   string          `json:"status"`
	} `json:"order"`
	Response struct {
		GatewayCode string `json:"gatewayCode"`
	} `json:"response"`
	Error apiError `json:"error"`
}

type orderResponse struct {
	Result      string            `json:"result"`
	ID          string            `json:"id"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	Transaction []transactionBody `json:"transaction"`
	Error       apiError          `json:"error"`
}

func (r orderResponse) toOrder() *Order {
	o := &Order{
		ID:       r.ID,
		Amount:   r.Amount,
		Currency: r.Currency,
		Status:   r.Status,
	}
	for _, t := range r.Transaction {
		o.Transactions = append(o.Transactions, t.toTransaction(r.Result))
	}
	return o
}

type paymentOptionsResponse struct {
	Result         string `json:"result"`
	PaymentOptions []struct {
		PaymentType string   `json:"paymentType"`
		Currencies  []string `json:"currencies"`
		CardSchemes []string `json:"cardSchemes"`
	} `json:"paymentOptions"`
	Error apiError `json:"error"`
}

type tokenResponse struct {
	Result string   `json:"result"`
	Token  string   `json:"token"`
	Error  apiError `json:"error"`
}
