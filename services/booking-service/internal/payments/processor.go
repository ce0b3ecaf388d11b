// Package payments turns payment gateway signals into appointment transitions.
package payments

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/md-rashed-zaman/clinicportal/libs/kafkax"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type ResultSink interface {
	OnPaymentResult(ctx context.Context, appointmentID string, signal lifecycle.PaymentSignal) (model.Appointment, error)
}

// Deduper records processed event ids. Release undoes Record when applying the event failed.
type Deduper interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Recorder interface {
	PaymentEvent(source, outcome string)
}

type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

// ResultMessage is the mobile-money result carried by the signed callback and by Kafka.
type ResultMessage struct {
	EventID       string `json:"event_id"`
	AppointmentID string `json:"appointment_id"`
	Outcome       string `json:"outcome"`
}

type Processor struct {
	sink    ResultSink
	inbox   Deduper
	logger  *slog.Logger
	metrics Recorder
}

func NewProcessor(sink ResultSink, inbox Deduper, logger *slog.Logger, metrics Recorder) *Processor {
	return &Processor{sink: sink, inbox: inbox, logger: logger, metrics: metrics}
}

// Apply delivers one outcome at most once per eventID. Outcomes the appointment can no longer
// accept (unknown id, already settled) are acknowledged as ignored; infrastructure errors
// release the event id so the sender's retry is processed.
func (p *Processor) Apply(ctx context.Context, source, eventID, eventType, appointmentID string, signal lifecycle.PaymentSignal) (Result, error) {
	fresh, err := p.inbox.Record(ctx, eventID, eventType)
	if err != nil {
		return "", err
	}
	if !fresh {
		p.logger.Info("duplicate payment event ignored", "source", source, "event_id", eventID, "event_type", eventType)
		return ResultDuplicate, nil
	}
	res, err := p.deliver(ctx, source, appointmentID, signal)
	if err != nil {
		if rerr := p.inbox.Release(ctx, eventID); rerr != nil {
			p.logger.Error("inbox release failed", "err", rerr, "event_id", eventID)
		}
		return "", err
	}
	return res, nil
}

func (p *Processor) deliver(ctx context.Context, source, appointmentID string, signal lifecycle.PaymentSignal) (Result, error) {
	outcome := signal.Outcome
	appt, err := p.sink.OnPaymentResult(ctx, appointmentID, signal)
	if err != nil {
		if kind := model.KindOf(err); kind != "" {
			p.logger.Warn("payment result not applied",
				"source", source,
				"appointment_id", appointmentID,
				"outcome", string(outcome),
				"reason", string(kind),
			)
			return ResultIgnored, nil
		}
		return "", err
	}
	if p.metrics != nil {
		p.metrics.PaymentEvent(source, string(outcome))
	}
	p.logger.Info("payment result applied",
		"source", source,
		"appointment_id", appt.ID,
		"outcome", string(outcome),
		"status", string(appt.Status),
	)
	return ResultApplied, nil
}

// HandleMessage applies a ResultMessage read from Kafka. The consumer has already recorded the
// event id (see MessageMeta); malformed messages and rejected outcomes return nil so their
// offset is committed, since a redelivery cannot fix them.
func (p *Processor) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var m ResultMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		p.logger.Error("invalid payment result payload", "err", err, "topic", msg.Topic)
		return nil
	}
	outcome, err := lifecycle.ParseOutcome(m.Outcome)
	if err != nil || m.AppointmentID == "" {
		p.logger.Error("payment result missing required fields", "topic", msg.Topic, "event_id", m.EventID)
		return nil
	}
	_, err = p.deliver(ctx, "kafka", m.AppointmentID, lifecycle.PaymentSignal{Outcome: outcome, Channel: model.PaymentMobileMoney})
	return err
}

// MessageMeta identifies a payment result for the consumer inbox. The event_id header wins;
// header-less messages fall back to the event_id in the body, then to topic:key.
func MessageMeta(msg kafka.Message) kafkax.EventMeta {
	meta := kafkax.ExtractEventMeta(msg)
	if kafkax.HeaderValue(msg.Headers, "event_id") != "" {
		return meta
	}
	var m ResultMessage
	if err := json.Unmarshal(msg.Value, &m); err == nil && m.EventID != "" {
		meta.EventID = m.EventID
	}
	return meta
}
