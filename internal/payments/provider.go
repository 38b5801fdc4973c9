package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

const (
	orderIDMetadataKey = "order_id"

	// Stripe accepts expires_at between 30 minutes and 24 hours ahead.
	minSessionLead = 30 * time.Minute
	maxSessionStep = 24*time.Hour - minSessionLead
)

// Session is a hosted checkout session the customer is redirected to.
type Session struct {
	ID          string
	RedirectURL string
	ExpiresAt   time.Time
}

// EventKind is the provider-neutral meaning of a verified event.
type EventKind string

const (
	EventPaymentCompleted EventKind = "payment_completed"
	EventPaymentFailed    EventKind = "payment_failed"
	EventSessionExpired   EventKind = "session_expired"
	EventIgnored          EventKind = "ignored"
)

// Event is a verified provider event. OrderID is uuid.Nil when the payload
// carried no usable order reference.
type Event struct {
	ID            string
	Type          string
	Kind          EventKind
	OrderID       uuid.UUID
	SessionID     string
	AmountCents   int
	Currency      enums.Currency
	FailureReason string
}

// Provider is the external payment processor.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, order *models.Order) (*Session, error)
	VerifyAndParseEvent(payload []byte, signature string) (*Event, error)
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

type eventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type StripeProviderParams struct {
	Sessions   sessionCreator
	Verifier   eventVerifier
	SuccessURL string
	CancelURL  string
	SessionTTL time.Duration
	Now        func() time.Time
}

// StripeProvider maps orders onto Stripe hosted checkout sessions.
type StripeProvider struct {
	sessions   sessionCreator
	verifier   eventVerifier
	successURL string
	cancelURL  string
	sessionTTL time.Duration
	now        func() time.Time
}

func NewStripeProvider(params StripeProviderParams) (*StripeProvider, error) {
	if params.Verifier == nil {
		return nil, errors.New("stripe event verifier required")
	}
	if params.SessionTTL <= 0 {
		return nil, errors.New("payment session ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &StripeProvider{
		sessions:   params.Sessions,
		verifier:   params.Verifier,
		successURL: params.SuccessURL,
		cancelURL:  params.CancelURL,
		sessionTTL: params.SessionTTL,
		now:        now,
	}, nil
}

// CreateCheckoutSession charges the order total as a single line. The expiry
// and the idempotency key both derive from the order and its expiry window,
// so a repeated request inside one window replays the same Stripe request.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, order *models.Order) (*Session, error) {
	if p.sessions == nil {
		return nil, errors.New("stripe session client not configured")
	}
	if order == nil {
		return nil, errors.New("order required")
	}
	session, err := p.sessions.CreateCheckoutSession(ctx, p.sessionParams(order))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("stripe returned no session")
	}
	out := &Session{ID: session.ID, RedirectURL: session.URL}
	if session.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return out, nil
}

func (p *StripeProvider) sessionParams(order *models.Order) *stripe.CheckoutSessionCreateParams {
	orderID := order.ID.String()
	expiresAt := p.sessionExpiry(order)
	metadata := map[string]string{
		orderIDMetadataKey: orderID,
		"order_number":     order.OrderNumber,
	}
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ExpiresAt:         stripe.Int64(expiresAt),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(order.Currency.Lower()),
					UnitAmount: stripe.Int64(int64(order.TotalCents)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + order.OrderNumber),
					},
				},
			},
		},
	}
	if email := strings.TrimSpace(order.ShippingAddress.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.SetIdempotencyKey(sessionIdempotencyKey(order.ID, expiresAt))
	return params
}

// sessionExpiry returns the first boundary order.CreatedAt + n*ttl that is
// still at least minSessionLead ahead of now.
func (p *StripeProvider) sessionExpiry(order *models.Order) int64 {
	now := p.now()
	anchor := order.CreatedAt
	if anchor.IsZero() || anchor.After(now) {
		anchor = now
	}
	step := p.sessionTTL
	if step < minSessionLead {
		step = minSessionLead
	}
	if step > maxSessionStep {
		step = maxSessionStep
	}
	stepSecs := int64(step / time.Second)
	base := anchor.Unix()
	earliest := now.Add(minSessionLead).Unix()
	n := (earliest - base + stepSecs - 1) / stepSecs
	if n < 1 {
		n = 1
	}
	return base + n*stepSecs
}

func sessionIdempotencyKey(orderID uuid.UUID, expiresAt int64) string {
	return "order-session-" + orderID.String() + "-" + strconv.FormatInt(expiresAt, 10)
}

// VerifyAndParseEvent checks the Stripe-Signature header before decoding any
// part of the payload.
func (p *StripeProvider) VerifyAndParseEvent(payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "stripe signature missing")
	}
	raw, err := p.verifier.ConstructEvent(payload, signature)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify stripe signature")
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type), Kind: EventIgnored}
	switch raw.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return event, nil
	}
	if raw.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data missing")
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	event.SessionID = session.ID
	event.OrderID = orderIDFromSession(&session)
	event.AmountCents = int(session.AmountTotal)
	if session.Currency != "" {
		if c, err := enums.ParseCurrency(string(session.Currency)); err == nil {
			event.Currency = c
		}
	}

	switch raw.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Delayed payment methods complete the session before funds settle;
		// the async_payment_succeeded event follows.
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			event.Kind = EventPaymentCompleted
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		event.Kind = EventPaymentCompleted
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		event.Kind = EventPaymentFailed
		event.FailureReason = "async payment failed"
	case stripe.EventTypeCheckoutSessionExpired:
		event.Kind = EventSessionExpired
	}
	return event, nil
}

func orderIDFromSession(session *stripe.CheckoutSession) uuid.UUID {
	candidates := []string{session.Metadata[orderIDMetadataKey], session.ClientReferenceID}
	for _, candidate := range candidates {
		if id, err := uuid.Parse(strings.TrimSpace(candidate)); err == nil {
			return id
		}
	}
	return uuid.Nil
}
