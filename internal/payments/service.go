package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

const defaultProviderTimeout = 10 * time.Second

// Outcome describes how a verified event was handled. Every outcome is
// acknowledged to the provider.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeNoop         Outcome = "noop"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeOrderMissing Outcome = "order_missing"
)

type orderStore interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	AttachPaymentSession(ctx context.Context, input orders.PaymentSessionInput) (*models.Payment, error)
	MarkPaid(ctx context.Context, input orders.PaymentConfirmation) (*orders.TransitionResult, error)
	RecordPaymentFailure(ctx context.Context, input orders.PaymentFailure) (bool, error)
	Cancel(ctx context.Context, input orders.CancelInput) (*orders.TransitionResult, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Confirm(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Orders          orderStore
	Provider        Provider
	Guard           eventGuard
	ProviderName    enums.PaymentProvider
	ProviderTimeout time.Duration
	Metrics         *metrics.FulfillmentMetrics
	Logger          *logger.Logger
}

// Service creates payment sessions and reconciles provider events against
// the order state machine.
type Service struct {
	orders       orderStore
	provider     Provider
	guard        eventGuard
	providerName enums.PaymentProvider
	timeout      time.Duration
	metrics      *metrics.FulfillmentMetrics
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment provider required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	timeout := params.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	name := params.ProviderName
	if name == "" {
		name = enums.PaymentProviderStripe
	}
	return &Service{
		orders:       params.Orders,
		provider:     params.Provider,
		guard:        params.Guard,
		providerName: name,
		timeout:      timeout,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// CreateCheckoutSession opens a provider session for a PENDING order and
// records it as a PENDING payment. The provider call is made once; a timeout
// is reported as a dependency failure and nothing is compensated.
func (s *Service) CreateCheckoutSession(ctx context.Context, orderID uuid.UUID) (*Session, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s; payment is only accepted while PENDING", order.Status))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	session, err := s.provider.CreateCheckoutSession(callCtx, order)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider timed out; session state unknown")
		} else {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
		}
		s.logg.Error(ctx, "payment session creation failed", err)
		return nil, err
	}

	if _, err := s.orders.AttachPaymentSession(ctx, orders.PaymentSessionInput{
		OrderID:           order.ID,
		Provider:          s.providerName,
		ProviderReference: session.ID,
		AmountCents:       order.TotalCents,
		Currency:          order.Currency,
	}); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "session_id", session.ID), "payment session created")
	return session, nil
}

// HandleWebhook verifies and applies one provider delivery. A returned error
// means the delivery should be retried by the provider; every nil-error
// outcome is acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	event, err := s.provider.VerifyAndParseEvent(payload, signature)
	if err != nil {
		s.metrics.IncPaymentEvent("unverified", "rejected")
		s.logg.Error(ctx, "payment event rejected", err)
		return "", err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": event.Type})

	if s.guard != nil && event.ID != "" {
		seen, guardErr := s.guard.CheckAndMark(ctx, event.ID)
		switch {
		case errors.Is(guardErr, ErrEventInFlight):
			s.metrics.IncPaymentEvent(event.Type, "in_flight")
			return "", pkgerrors.Wrap(pkgerrors.CodeConflict, guardErr, "payment event is still being processed")
		case guardErr != nil:
			// The order state machine still rejects replays.
			s.logg.Warn(ctx, "webhook idempotency check unavailable: "+guardErr.Error())
		case seen:
			s.metrics.IncPaymentEvent(event.Type, string(OutcomeDuplicate))
			s.logg.Info(ctx, "duplicate payment event skipped")
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := s.apply(ctx, event)
	if err != nil {
		if s.guard != nil && event.ID != "" {
			if relErr := s.guard.Release(ctx, event.ID); relErr != nil {
				s.logg.Warn(ctx, "release webhook idempotency key: "+relErr.Error())
			}
		}
		s.metrics.IncPaymentEvent(event.Type, "error")
		if pkgerrors.IsFault(err) {
			s.logg.Error(ctx, "payment event failed", err)
		}
		return "", err
	}
	if s.guard != nil && event.ID != "" {
		if confErr := s.guard.Confirm(ctx, event.ID); confErr != nil {
			s.logg.Warn(ctx, "confirm webhook idempotency key: "+confErr.Error())
		}
	}
	s.metrics.IncPaymentEvent(event.Type, string(outcome))
	s.logg.Info(s.logg.WithField(ctx, "outcome", string(outcome)), "payment event handled")
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, event *Event) (Outcome, error) {
	if event.Kind == EventIgnored {
		return OutcomeIgnored, nil
	}
	if event.OrderID == uuid.Nil {
		s.logg.Warn(ctx, "payment event carries no order reference")
		return OutcomeOrderMissing, nil
	}
	ctx = s.logg.WithOrderID(ctx, event.OrderID.String())

	switch event.Kind {
	case EventPaymentCompleted:
		result, err := s.orders.MarkPaid(ctx, orders.PaymentConfirmation{
			OrderID:           event.OrderID,
			Provider:          s.providerName,
			ProviderReference: event.SessionID,
			AmountCents:       event.AmountCents,
			Currency:          event.Currency,
		})
		return s.transitionOutcome(ctx, result, err)
	case EventSessionExpired:
		result, err := s.orders.Cancel(ctx, orders.CancelInput{
			OrderID: event.OrderID,
			Reason:  enums.CancelReasonSessionExpired,
		})
		return s.transitionOutcome(ctx, result, err)
	case EventPaymentFailed:
		updated, err := s.orders.RecordPaymentFailure(ctx, orders.PaymentFailure{
			OrderID:           event.OrderID,
			ProviderReference: event.SessionID,
			Reason:            event.FailureReason,
		})
		if err != nil {
			return "", err
		}
		if updated {
			return OutcomeApplied, nil
		}
		return OutcomeNoop, nil
	default:
		return OutcomeIgnored, nil
	}
}

func (s *Service) transitionOutcome(ctx context.Context, result *orders.TransitionResult, err error) (Outcome, error) {
	if pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound) {
		// Retrying an event for an order that does not exist never succeeds.
		s.logg.Warn(ctx, "payment event references unknown order")
		return OutcomeOrderMissing, nil
	}
	if err != nil {
		return "", err
	}
	if result != nil && result.Applied {
		return OutcomeApplied, nil
	}
	return OutcomeNoop, nil
}
