package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicportal/libs/kafkax"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultTopic = "payments.mobile_money.result.v1"

// sliceReader hands out msgs in order and records committed offsets. It cancels ctx once drained.
type sliceReader struct {
	msgs      []kafka.Message
	cancel    context.CancelFunc
	committed []int64
	closed    bool
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func message(offset int64, eventID, value string) kafka.Message {
	return kafka.Message{
		Topic:   resultTopic,
		Offset:  offset,
		Value:   []byte(value),
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: eventID, EventType: resultTopic}),
	}
}

func testLogger() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

func TestConsumerDedupesAndRetriesInPlace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{cancel: cancel, msgs: []kafka.Message{
		message(1, "e1", "first"),
		message(2, "e1", "first again"),
		message(3, "e2", "boom"),
		message(4, "e3", "after"),
	}}

	var seen []string
	failed := false
	handler := func(_ context.Context, msg kafka.Message) error {
		seen = append(seen, string(msg.Value))
		if string(msg.Value) == "boom" && !failed {
			failed = true
			return errors.New("transient")
		}
		return nil
	}

	c := newWithReader(reader, testLogger(), inbox.NewMemory(), handler, nil)
	c.backoff = time.Millisecond
	c.Run(ctx)

	require.True(t, reader.closed)
	assert.Equal(t, []string{"first", "boom", "boom", "after"}, seen, "a failed message is retried before the next one is fetched")
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed, "every settled message is committed exactly once")
}

func TestConsumerDoesNotCommitUnsettledMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{cancel: cancel, msgs: []kafka.Message{message(7, "e1", "never")}}
	attempts := 0
	handler := func(context.Context, kafka.Message) error {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errors.New("db down")
	}

	c := newWithReader(reader, testLogger(), inbox.NewMemory(), handler, nil)
	c.backoff = time.Millisecond
	c.Run(ctx)

	assert.GreaterOrEqual(t, attempts, 3)
	assert.Empty(t, reader.committed)
}

func bodyID(msg kafka.Message) kafkax.EventMeta {
	var body struct {
		EventID string `json:"event_id"`
	}
	meta := kafkax.ExtractEventMeta(msg)
	if json.Unmarshal(msg.Value, &body) == nil && body.EventID != "" {
		meta.EventID = body.EventID
	}
	return meta
}

func TestConsumerIdentifiesHeaderlessMessagesByBody(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{cancel: cancel, msgs: []kafka.Message{
		{Topic: resultTopic, Offset: 1, Value: []byte(`{"event_id":"ev-1","appointment_id":"a1","outcome":"success"}`)},
		{Topic: resultTopic, Offset: 2, Value: []byte(`{"event_id":"ev-2","appointment_id":"a2","outcome":"success"}`)},
		{Topic: resultTopic, Offset: 3, Value: []byte(`{"event_id":"ev-1","appointment_id":"a1","outcome":"success"}`)},
	}}

	handled := 0
	handler := func(context.Context, kafka.Message) error {
		handled++
		return nil
	}

	c := newWithReader(reader, testLogger(), inbox.NewMemory(), handler, bodyID)
	c.Run(ctx)

	assert.Equal(t, 2, handled, "distinct body ids are distinct events; a repeated id is a duplicate")
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}
