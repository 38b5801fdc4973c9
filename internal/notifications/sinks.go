package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const defaultPublishTimeout = 5 * time.Second

// LogSink writes events to the structured log. It is the default transport
// for local development.
type LogSink struct {
	logg *logger.Logger
	now  func() time.Time
}

func NewLogSink(logg *logger.Logger) *LogSink {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogSink{logg: logg, now: time.Now}
}

func (s *LogSink) Notify(ctx context.Context, event enums.OrderEvent, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	envelope := newEnvelope(event, order, s.now())
	fields := make(map[string]any, len(envelope.attributes()))
	for key, value := range envelope.attributes() {
		fields[key] = value
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "order event")
	return nil
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubSink publishes events to a Pub/Sub topic and waits for the server
// acknowledgement. Messages carry the order id as ordering key so a
// subscriber with ordering enabled sees one order's events in commit order.
type PubSubSink struct {
	pub     publisher
	timeout time.Duration
	now     func() time.Time
}

// NewPubSubSink wraps a Pub/Sub publisher handle.
func NewPubSubSink(p *gcppubsub.Publisher) (*PubSubSink, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return newPubSubSink(&gcpPublisher{Publisher: p}), nil
}

func newPubSubSink(pub publisher) *PubSubSink {
	return &PubSubSink{pub: pub, timeout: defaultPublishTimeout, now: time.Now}
}

func (s *PubSubSink) Notify(ctx context.Context, event enums.OrderEvent, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	envelope := newEnvelope(event, order, s.now())
	data, err := envelope.marshal()
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	key := order.ID.String()
	result := s.pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        data,
		Attributes:  envelope.attributes(),
		OrderingKey: key,
	})
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		s.pub.ResumePublish(key)
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces events keyed by order id so every event of one order
// lands on the same partition in commit order.
type KafkaSink struct {
	w   messageWriter
	now func() time.Time
}

// NewKafkaSink builds an async writer. Delivery failures surface through the
// completion callback and are logged there.
func NewKafkaSink(brokers []string, topic string, logg *logger.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			ctx := logg.WithFields(context.Background(), map[string]any{
				"topic":    topic,
				"messages": len(messages),
			})
			logg.Error(ctx, "kafka delivery failed", err)
		},
	}
	return newKafkaSink(w), nil
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{w: w, now: time.Now}
}

func (s *KafkaSink) Notify(ctx context.Context, event enums.OrderEvent, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	envelope := newEnvelope(event, order, s.now())
	data, err := envelope.marshal()
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := envelope.attributes()
	headers := make([]kafka.Header, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(order.ID.String()),
		Value:   data,
		Headers: headers,
		Time:    envelope.OccurredAt,
	})
}

// Close flushes buffered messages.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
