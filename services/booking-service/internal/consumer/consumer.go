package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicportal/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one message. A nil error settles the message (its offset is committed);
// an error is treated as transient and the same message is retried.
type Handler func(ctx context.Context, msg kafka.Message) error

// IdentifyFunc names the event a message carries for deduplication.
type IdentifyFunc func(msg kafka.Message) kafkax.EventMeta

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   MessageReader
	logger   *slog.Logger
	inbox    Inbox
	handler  Handler
	identify IdentifyFunc
	backoff  time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// Identify defaults to kafkax.ExtractEventMeta (event_id header, else topic:key).
	Identify IdentifyFunc
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newWithReader(reader, logger, inbox, handler, cfg.Identify)
}

func newWithReader(reader MessageReader, logger *slog.Logger, inbox Inbox, handler Handler, identify IdentifyFunc) *Consumer {
	if identify == nil {
		identify = kafkax.ExtractEventMeta
	}
	return &Consumer{reader: reader, logger: logger, inbox: inbox, handler: handler, identify: identify, backoff: time.Second}
}

// Run fetches messages until ctx ends. Offsets are committed only once a message is settled,
// so a crash mid-processing redelivers it and the inbox absorbs the repeat.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !c.wait(ctx) {
				return
			}
			continue
		}
		for c.process(ctx, msg) != nil {
			if !c.wait(ctx) {
				return
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	meta := c.identify(msg)

	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox record failed")
		return err
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error; will retry", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		if rerr := c.inbox.Release(ctxSpan, meta.EventID); rerr != nil {
			c.logger.Error("inbox release failed", "err", rerr, "event_id", meta.EventID)
		}
		return err
	}
	return nil
}
