package order

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Status represents the order status in the payment lifecycle
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Decimal returns the amount in the gateway's two-decimal fixed-point form.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.ValueCents, -2)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	if a.ValueCents <= 0 {
		return errors.ErrInvalidAmount
	}
	if len(a.Currency) != 3 {
		return errors.ErrInvalidCurrency
	}
	return nil
}

// Note is an audit entry appended to an order.
type Note struct {
	At   time.Time
	Text string
}

// Order is the minimal order record the checkout core reads and writes. The
// host storefront owns the full order; this holds the payment-relevant slice
// plus the scratch state persisted between dispatcher invocations.
type Order struct {
	ID     string
	Amount Amount
	Status Status

	// AttemptCounter is the transaction-attempt counter. It only ever grows;
	// a counter value, once handed out as a reference, is never reused.
	AttemptCounter int

	// SuccessToken is the server-authoritative success indicator stored when a
	// hosted checkout session is created.
	SuccessToken string

	// StepUpContextID is the pending 3-D Secure context between the enrollment
	// check and the cardholder's return from the ACS. StepUpStartedAt marks
	// when the redirect was issued so an abandoned context can expire.
	StepUpContextID string
	StepUpStartedAt time.Time

	SessionID      string
	SessionVersion string

	Captured          bool
	GatewayTxnRef     string
	AuthorizationCode string
	FailureReason     string

	Notes     []Note
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a pending order handle for the given id and amount.
func New(id string, amount Amount) (*Order, error) {
	if id == "" {
		return nil, errors.ErrInvalidInput
	}
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Order{
		ID:        id,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NextAttemptReference increments the attempt counter and returns the new
// transaction reference. Each call is a new logical payment attempt; retries
// of the same attempt must reuse the reference they already hold.
func (o *Order) NextAttemptReference() string {
	o.AttemptCounter++
	o.UpdatedAt = time.Now()
	return strconv.Itoa(o.AttemptCounter)
}

// AttemptReference returns the reference of the current attempt without
// allocating a new one.
func (o *Order) AttemptReference() string {
	return strconv.Itoa(o.AttemptCounter)
}

// CanTransitionTo checks if the order can transition to the given status
func (o *Order) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {
			StatusProcessing,
			StatusCompleted, // pay (auth+capture) settles in one step
			StatusFailed,
		},
		StatusProcessing: {
			StatusCompleted,
			StatusFailed,
		},
		StatusCompleted: {}, // terminal; never regressed by reloads
		StatusFailed: {
			StatusProcessing, // retry with a fresh attempt
			StatusCompleted,
		},
	}

	allowed, exists := transitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the order to a new status
func (o *Order) TransitionTo(newStatus Status) error {
	if !o.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(o.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	o.Status = newStatus
	o.UpdatedAt = time.Now()
	return nil
}

// MarkProcessing marks a successful authorization that still awaits capture.
func (o *Order) MarkProcessing() error {
	return o.TransitionTo(StatusProcessing)
}

// MarkCompleted marks the order paid and captured.
func (o *Order) MarkCompleted() error {
	if err := o.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	o.Captured = true
	return nil
}

// MarkFailed marks the order failed with a human-readable reason.
func (o *Order) MarkFailed(reason string) error {
	if err := o.TransitionTo(StatusFailed); err != nil {
		return err
	}
	o.FailureReason = reason
	o.AddNote("payment failed: %s", reason)
	return nil
}

// MarkCaptured sets the capture flag after a successful capture call.
func (o *Order) MarkCaptured() error {
	if o.Captured {
		return errors.ErrAlreadyCaptured
	}
	o.Captured = true
	o.UpdatedAt = time.Now()
	return nil
}

// BeginStepUp stores the pending 3-D Secure context id so a later invocation
// can resume the flow.
func (o *Order) BeginStepUp(contextID string) {
	o.StepUpContextID = contextID
	o.StepUpStartedAt = time.Now()
	o.UpdatedAt = o.StepUpStartedAt
}

// ClearStepUp discards the pending 3-D Secure context. Contexts are consumed
// exactly once.
func (o *Order) ClearStepUp() {
	o.StepUpContextID = ""
	o.StepUpStartedAt = time.Time{}
	o.UpdatedAt = time.Now()
}

// StepUpExpired reports whether the pending context has outlived ttl. The
// cardholder abandoned the ACS page; the context will never be consumed. A
// non-positive ttl disables expiry.
func (o *Order) StepUpExpired(ttl time.Duration) bool {
	if o.StepUpContextID == "" || ttl <= 0 {
		return false
	}
	return time.Since(o.StepUpStartedAt) > ttl
}

// StoreSuccessToken records the hosted-checkout success indicator.
func (o *Order) StoreSuccessToken(token string) {
	o.SuccessToken = token
	o.UpdatedAt = time.Now()
}

// RecordGatewayResult records the audit trail of a reconciled transaction.
func (o *Order) RecordGatewayResult(txnRef, authCode string) {
	o.GatewayTxnRef = txnRef
	o.AuthorizationCode = authCode
	o.AddNote("gateway transaction %s authorized (code %s)", txnRef, authCode)
}

// AddNote appends an audit note to the order.
func (o *Order) AddNote(format string, args ...any) {
	o.Notes = append(o.Notes, Note{At: time.Now(), Text: fmt.Sprintf(format, args...)})
	o.UpdatedAt = time.Now()
}
