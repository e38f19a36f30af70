package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/outbox"
)

var failedAt = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

// deadLetter кодирует сообщение так, как его пишет в DLQ outbox worker.
func deadLetter(t *testing.T, aggregateType, aggregateID, eventType string) []byte {
	t.Helper()
	letter, err := json.Marshal(outbox.DeadLetter{
		OutboxID:       "outbox-" + aggregateID,
		AggregateType:  aggregateType,
		AggregateID:    aggregateID,
		EventType:      eventType,
		Payload:        json.RawMessage(`{"status":"Confirmed"}`),
		PublishError:   "kafka: client has run out of available brokers",
		DLQPublishedAt: failedAt,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(kafka.Envelope{
		ID:            "outbox-" + aggregateID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       letter,
	})
	require.NoError(t, err)
	return raw
}

func baseOptions() options {
	return options{
		brokers:     []string{"broker:9092"},
		source:      kafka.TopicDeadLetterQueue,
		limit:       10,
		idleTimeout: 20 * time.Millisecond,
	}
}

func TestParseOptions(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	opts, err := parseOptions([]string{
		"-brokers=broker-1:9092, ,broker-2:9092",
		"-target-topic= ticketing.replay ",
		"-aggregate=transaction",
		"-limit=10",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, opts.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, opts.source)
	assert.Equal(t, "ticketing.replay", opts.target)
	assert.Equal(t, kafka.AggregateTransaction, opts.aggregate)
	assert.Equal(t, 10, opts.limit)
	assert.True(t, opts.execute)
	assert.True(t, opts.fromNewest)
	assert.Equal(t, 3*time.Second, opts.idleTimeout)

	opts, err = parseOptions(nil, env(map[string]string{"KAFKA_BROKERS": "env-broker:9092"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"env-broker:9092"}, opts.brokers)
	assert.Equal(t, defaultLimit, opts.limit)
	assert.False(t, opts.execute)
}

func TestParseOptions_Validation(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-brokers="}, "kafka brokers are required"},
		{[]string{"-brokers=b:9092", "-source-topic= "}, "source-topic is required"},
		{[]string{"-brokers=b:9092", "-aggregate=order"}, "unsupported aggregate"},
		{[]string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
		{[]string{"-no-such-flag"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := parseOptions(tt.args, func(string) string { return "" })
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := parseOptions([]string{"-h"}, func(string) string { return "" })
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestRebuild_RoutesByAggregate(t *testing.T) {
	tests := []struct {
		name      string
		aggregate string
		target    string
		wantTopic string
	}{
		{"transaction", kafka.AggregateTransaction, "", kafka.TopicTransactions},
		{"action", kafka.AggregateAction, "", kafka.TopicActions},
		{"override", kafka.AggregateAction, "ticketing.replay", "ticketing.replay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := baseOptions()
			opts.target = tt.target
			rp, ok, err := rebuild(&sarama.ConsumerMessage{Value: deadLetter(t, tt.aggregate, "id-1", "x.y")}, opts)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantTopic, rp.topic)
			assert.Equal(t, "id-1", rp.key)
			assert.Equal(t, "outbox-id-1", rp.envelope.ID)
			assert.Equal(t, tt.aggregate, rp.envelope.AggregateType)
			assert.JSONEq(t, `{"status":"Confirmed"}`, string(rp.envelope.Payload))
			assert.NotEmpty(t, rp.letter.PublishError)
		})
	}
}

func TestRebuild_Filters(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: deadLetter(t, kafka.AggregateTransaction, "tx-1", string(kafka.EventTypeTransactionConfirmed))}

	opts := baseOptions()
	opts.aggregate = kafka.AggregateAction
	_, ok, err := rebuild(msg, opts)
	require.NoError(t, err)
	assert.False(t, ok, "aggregate filter must skip transaction events")

	opts = baseOptions()
	opts.eventType = string(kafka.EventTypeTransactionExpired)
	_, ok, err = rebuild(msg, opts)
	require.NoError(t, err)
	assert.False(t, ok, "event-type filter must skip other events")

	opts.aggregate = kafka.AggregateTransaction
	opts.eventType = string(kafka.EventTypeTransactionConfirmed)
	_, ok, err = rebuild(msg, opts)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRebuild_RejectsMalformed(t *testing.T) {
	_, ok, err := rebuild(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, baseOptions())
	assert.NoError(t, err, "foreign messages are skipped silently")
	assert.False(t, ok)

	_, ok, err = rebuild(&sarama.ConsumerMessage{Value: []byte(`not json`)}, baseOptions())
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = rebuild(&sarama.ConsumerMessage{Value: []byte(`{"id":"x","payload":"not-an-object"}`)}, baseOptions())
	assert.Error(t, err)
	assert.False(t, ok)

	_, ok, err = rebuild(&sarama.ConsumerMessage{Value: []byte(`{"id":"x","payload":{"outbox_id":"x"}}`)}, baseOptions())
	assert.ErrorContains(t, err, "no original payload")
	assert.False(t, ok)
}

func TestReplayHeaders(t *testing.T) {
	rp, ok, err := rebuild(&sarama.ConsumerMessage{Value: deadLetter(t, kafka.AggregateAction, "a-1", "action.completed")}, baseOptions())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, map[string]string{
		kafka.HeaderEventType:     "action.completed",
		kafka.HeaderAggregateType: kafka.AggregateAction,
		kafka.HeaderOriginalTopic: kafka.TopicDeadLetterQueue,
		kafka.HeaderErrorMessage:  "kafka: client has run out of available brokers",
		kafka.HeaderFailedAt:      "2030-01-02T03:04:05Z",
	}, rp.headers(kafka.TopicDeadLetterQueue))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "x", coalesce("", "  ", "x", "y"))
	assert.Empty(t, coalesce("", " "))
}

func TestNewReplayer_RequiresBackends(t *testing.T) {
	_, err := newReplayer(baseOptions(), nil)
	assert.Error(t, err)

	broker := newFakeBroker()
	_, err = newReplayer(baseOptions(), &backends{offsets: broker})
	assert.Error(t, err)

	opts := baseOptions()
	opts.execute = true
	_, err = newReplayer(opts, &backends{offsets: broker, streams: broker})
	assert.ErrorContains(t, err, "producer is required")
}

func TestReplayer_DryRunOnlyCounts(t *testing.T) {
	broker := newFakeBroker()
	broker.add(0, deadLetter(t, kafka.AggregateTransaction, "tx-1", string(kafka.EventTypeTransactionConfirmed)))
	publisher := &fakePublisher{}

	r, err := newReplayer(baseOptions(), &backends{offsets: broker, streams: broker, publisher: publisher})
	require.NoError(t, err)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, summary{scanned: 1, replayed: 1}, sum)
	assert.Empty(t, publisher.calls)
	assert.Equal(t, []openCall{{partition: 0, offset: 0}}, broker.opened)
}

func TestReplayer_ExecutePublishesOriginalEnvelope(t *testing.T) {
	broker := newFakeBroker()
	broker.add(0,
		deadLetter(t, kafka.AggregateTransaction, "tx-1", string(kafka.EventTypeTransactionConfirmed)),
		[]byte(`{"id":"x","payload":"not-an-object"}`),
		deadLetter(t, kafka.AggregateAction, "a-1", string(kafka.EventTypeActionCompleted)),
	)
	publisher := &fakePublisher{}
	opts := baseOptions()
	opts.execute = true

	r, err := newReplayer(opts, &backends{offsets: broker, streams: broker, publisher: publisher})
	require.NoError(t, err)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, summary{scanned: 3, replayed: 2, skipped: 1}, sum)
	require.Len(t, publisher.calls, 2)
	first := publisher.calls[0]
	assert.Equal(t, kafka.TopicTransactions, first.topic)
	assert.Equal(t, "tx-1", first.key)
	env, ok := first.event.(kafka.Envelope)
	require.True(t, ok)
	assert.Equal(t, "outbox-tx-1", env.ID)
	assert.Equal(t, kafka.TopicDeadLetterQueue, first.headers[kafka.HeaderOriginalTopic])
	assert.Equal(t, kafka.TopicActions, publisher.calls[1].topic)
	assert.True(t, broker.streams[0].closed)
}

func TestReplayer_LimitSpansPartitionsInOrder(t *testing.T) {
	broker := newFakeBroker()
	broker.add(2, deadLetter(t, kafka.AggregateAction, "a-2", string(kafka.EventTypeActionCompleted)))
	broker.add(0, deadLetter(t, kafka.AggregateTransaction, "tx-1", string(kafka.EventTypeTransactionConfirmed)))
	opts := baseOptions()
	opts.limit = 1

	r, err := newReplayer(opts, &backends{offsets: broker, streams: broker})
	require.NoError(t, err)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.scanned)
	assert.Equal(t, []openCall{{partition: 0, offset: 0}}, broker.opened)
}

func TestReplayer_FromNewestStartsAtTail(t *testing.T) {
	broker := newFakeBroker()
	values := make([][]byte, 10)
	for i := range values {
		values[i] = deadLetter(t, kafka.AggregateTransaction, "tx", string(kafka.EventTypeTransactionConfirmed))
	}
	broker.add(0, values...)
	opts := baseOptions()
	opts.limit = 3
	opts.fromNewest = true

	r, err := newReplayer(opts, &backends{offsets: broker, streams: broker})
	require.NoError(t, err)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, summary{scanned: 3, replayed: 3}, sum)
	assert.Equal(t, []openCall{{partition: 0, offset: 7}}, broker.opened)
}

func TestReplayer_EmptyTopic(t *testing.T) {
	broker := newFakeBroker()
	r, err := newReplayer(baseOptions(), &backends{offsets: broker, streams: broker})
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum)
	assert.Empty(t, broker.opened)
}

func TestReplayer_Failures(t *testing.T) {
	value := deadLetter(t, kafka.AggregateTransaction, "tx-1", string(kafka.EventTypeTransactionConfirmed))
	opts := baseOptions()
	opts.execute = true

	tests := []struct {
		name    string
		setup   func(*fakeBroker, *fakePublisher)
		wantErr string
	}{
		{"partitions", func(b *fakeBroker, _ *fakePublisher) { b.partitionsErr = errors.New("metadata") }, "list partitions"},
		{"offsets", func(b *fakeBroker, _ *fakePublisher) { b.offsetErr = errors.New("offsets") }, "oldest offset"},
		{"open", func(b *fakeBroker, _ *fakePublisher) { b.openErr = errors.New("open") }, "consume partition 0"},
		{"stream", func(b *fakeBroker, _ *fakePublisher) { b.streamErr = errors.New("boom") }, "boom"},
		{"publish", func(_ *fakeBroker, p *fakePublisher) { p.err = errors.New("send failed") }, "send failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := newFakeBroker()
			broker.add(0, value)
			publisher := &fakePublisher{}
			tt.setup(broker, publisher)

			r, err := newReplayer(opts, &backends{offsets: broker, streams: broker, publisher: publisher})
			require.NoError(t, err)
			_, err = r.Run(context.Background())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReplayer_IdleTimeoutAndCancel(t *testing.T) {
	broker := newFakeBroker()
	broker.add(0, deadLetter(t, kafka.AggregateTransaction, "tx-1", string(kafka.EventTypeTransactionConfirmed)))
	broker.hang = true

	r, err := newReplayer(baseOptions(), &backends{offsets: broker, streams: broker})
	require.NoError(t, err)

	// Partition объявляет offsets, но сообщений не отдаёт.
	sum, err := r.partition(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Zero(t, sum.scanned)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.partition(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_ClosesBackends(t *testing.T) {
	original := connect
	t.Cleanup(func() { connect = original })

	connect = func(options) (*backends, error) { return nil, errors.New("dial failed") }
	assert.ErrorContains(t, run(context.Background(), baseOptions()), "dial failed")

	broker := newFakeBroker()
	broker.add(0, deadLetter(t, kafka.AggregateTransaction, "tx-1", string(kafka.EventTypeTransactionConfirmed)))
	var closed []string
	connect = func(options) (*backends, error) {
		return &backends{
			offsets: broker,
			streams: broker,
			closers: []io.Closer{closerFunc(func() { closed = append(closed, "client") }), closerFunc(func() { closed = append(closed, "consumer") })},
		}, nil
	}
	require.NoError(t, run(context.Background(), baseOptions()))
	assert.Equal(t, []string{"consumer", "client"}, closed)
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

type openCall struct {
	partition int32
	offset    int64
}

// fakeBroker держит partitions в памяти и отдаёт их как offsetReader и streamOpener.
type fakeBroker struct {
	messages      map[int32][][]byte
	partitionsErr error
	offsetErr     error
	openErr       error
	streamErr     error
	hang          bool
	opened        []openCall
	streams       []*fakeStream
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{messages: map[int32][][]byte{}}
}

func (b *fakeBroker) add(partition int32, values ...[]byte) {
	b.messages[partition] = append(b.messages[partition], values...)
}

func (b *fakeBroker) Partitions(string) ([]int32, error) {
	if b.partitionsErr != nil {
		return nil, b.partitionsErr
	}
	out := make([]int32, 0, len(b.messages))
	for p := range b.messages {
		out = append(out, p)
	}
	return out, nil
}

func (b *fakeBroker) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if b.offsetErr != nil {
		return 0, b.offsetErr
	}
	if at == sarama.OffsetOldest {
		return 0, nil
	}
	return int64(len(b.messages[partition])), nil
}

func (b *fakeBroker) Open(_ string, partition int32, offset int64) (messageStream, error) {
	b.opened = append(b.opened, openCall{partition: partition, offset: offset})
	if b.openErr != nil {
		return nil, b.openErr
	}

	values := b.messages[partition]
	s := &fakeStream{
		messages: make(chan *sarama.ConsumerMessage, len(values)),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	b.streams = append(b.streams, s)
	if b.streamErr != nil {
		s.errors <- &sarama.ConsumerError{Partition: partition, Err: b.streamErr}
		return s, nil
	}
	if b.hang {
		return s, nil
	}
	for i := offset; i < int64(len(values)); i++ {
		s.messages <- &sarama.ConsumerMessage{Partition: partition, Offset: i, Value: values[i]}
	}
	close(s.messages)
	return s, nil
}

type fakeStream struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *fakeStream) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *fakeStream) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type publishCall struct {
	topic   string
	key     string
	event   any
	headers map[string]string
}

type fakePublisher struct {
	err   error
	calls []publishCall
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic, key string, event any, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, publishCall{topic: topic, key: key, event: event, headers: headers})
	return nil
}
