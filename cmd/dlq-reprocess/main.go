// Command dlq-reprocess перечитывает DLQ outbox и возвращает исходные события в их topics.
// По умолчанию работает в dry-run режиме и только логирует кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/outbox"
)

const (
	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
	clientID           = "ticketing-dlq-reprocess"
)

type options struct {
	brokers []string
	source  string
	// target, если задан, отменяет выбор topic по типу агрегата.
	target string
	// aggregate и eventType сужают выборку, пустые значения пропускают всё.
	aggregate   string
	eventType   string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// offsetReader: часть sarama.Client, нужная для выбора окна чтения.
type offsetReader interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, at int64) (int64, error)
}

type messageStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamOpener interface {
	Open(topic string, partition int32, offset int64) (messageStream, error)
}

type eventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any, headers map[string]string) error
}

type consumerStreams struct {
	consumer sarama.Consumer
}

func (c consumerStreams) Open(topic string, partition int32, offset int64) (messageStream, error) {
	pc, err := c.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// backends: зависимости одного запуска. closers закрываются в обратном порядке.
type backends struct {
	offsets   offsetReader
	streams   streamOpener
	publisher eventPublisher
	closers   []io.Closer
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].Close()
	}
}

var connect = func(opts options) (*backends, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	b := &backends{offsets: client, closers: []io.Closer{client}}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	b.streams = consumerStreams{consumer: consumer}
	b.closers = append(b.closers, consumer)

	if opts.execute {
		producer, err := kafka.NewProducer(opts.brokers, clientID)
		if err != nil {
			b.close()
			return nil, err
		}
		b.publisher = producer
		b.closers = append(b.closers, producer)
	}
	return b, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.WithError(err).Fatal("invalid options")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts    options
		brokers string
	)
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (default $KAFKA_BROKERS)")
	fs.StringVar(&opts.source, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to read")
	fs.StringVar(&opts.target, "target-topic", "", "publish every replay here instead of routing by aggregate")
	fs.StringVar(&opts.aggregate, "aggregate", "", "only replay this aggregate type: action|transaction")
	fs.StringVar(&opts.eventType, "event-type", "", "only replay this event type, e.g. transaction.confirmed")
	fs.IntVar(&opts.limit, "limit", defaultLimit, "max messages to scan across all partitions")
	fs.BoolVar(&opts.execute, "execute", false, "publish replays; without it the run is a dry-run")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan the newest messages of each partition")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv("KAFKA_BROKERS")
	}
	opts.brokers = splitList(brokers)
	opts.source = strings.TrimSpace(opts.source)
	opts.target = strings.TrimSpace(opts.target)

	switch {
	case len(opts.brokers) == 0:
		return options{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case opts.source == "":
		return options{}, errors.New("source-topic is required")
	case opts.aggregate != "" && opts.aggregate != kafka.AggregateAction && opts.aggregate != kafka.AggregateTransaction:
		return options{}, fmt.Errorf("unsupported aggregate %q (use action|transaction)", opts.aggregate)
	case opts.limit <= 0:
		return options{}, errors.New("limit must be > 0")
	case opts.idleTimeout <= 0:
		return options{}, errors.New("idle-timeout must be > 0")
	}
	return opts, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func run(ctx context.Context, opts options) error {
	b, err := connect(opts)
	if err != nil {
		return err
	}
	defer b.close()

	r, err := newReplayer(opts, b)
	if err != nil {
		return err
	}
	sum, err := r.Run(ctx)
	entry := log.WithFields(log.Fields{
		"source_topic": opts.source,
		"execute":      opts.execute,
		"scanned":      sum.scanned,
		"replayed":     sum.replayed,
		"skipped":      sum.skipped,
	})
	if err != nil {
		entry.WithError(err).Error("dlq replay stopped")
		return err
	}
	entry.Info("dlq replay finished")
	return nil
}

// summary считает сообщения за запуск. replayed в dry-run означает найденных кандидатов.
type summary struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *summary) add(o summary) {
	s.scanned += o.scanned
	s.replayed += o.replayed
	s.skipped += o.skipped
}

type replayer struct {
	opts      options
	offsets   offsetReader
	streams   streamOpener
	publisher eventPublisher
	logger    *log.Entry
}

func newReplayer(opts options, b *backends) (*replayer, error) {
	if b == nil || b.offsets == nil || b.streams == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if opts.execute && b.publisher == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	return &replayer{
		opts:      opts,
		offsets:   b.offsets,
		streams:   b.streams,
		publisher: b.publisher,
		logger:    log.WithField("component", "dlq-reprocess"),
	}, nil
}

// Run обходит partitions по возрастанию номера, пока не исчерпан общий лимит.
func (r *replayer) Run(ctx context.Context) (summary, error) {
	var total summary

	partitions, err := r.offsets.Partitions(r.opts.source)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.opts.source, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.opts.source).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, p := range partitions {
		budget := r.opts.limit - total.scanned
		if budget <= 0 {
			break
		}
		sum, err := r.partition(ctx, p, budget)
		total.add(sum)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// window возвращает полуинтервал [from, to) offsets для чтения.
func (r *replayer) window(partition int32, budget int) (from, to int64, err error) {
	from, err = r.offsets.GetOffset(r.opts.source, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	to, err = r.offsets.GetOffset(r.opts.source, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if r.opts.fromNewest && to-int64(budget) > from {
		from = to - int64(budget)
	}
	return from, to, nil
}

func (r *replayer) partition(ctx context.Context, partition int32, budget int) (summary, error) {
	var sum summary

	from, to, err := r.window(partition, budget)
	if err != nil || to <= from {
		return sum, err
	}

	stream, err := r.streams.Open(r.opts.source, partition, from)
	if err != nil {
		return sum, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	for sum.scanned < budget {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		case <-idle.C:
			return sum, nil
		case cerr := <-stream.Errors():
			if cerr != nil {
				return sum, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil || msg.Offset >= to {
				return sum, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.opts.idleTimeout)

			sum.scanned++
			replayed, err := r.handle(ctx, msg)
			if err != nil {
				return sum, err
			}
			if replayed {
				sum.replayed++
			} else {
				sum.skipped++
			}
			if msg.Offset+1 >= to {
				return sum, nil
			}
		}
	}
	return sum, nil
}

// handle разбирает одно DLQ-сообщение. Ошибка возвращается только при сбое публикации.
func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	rp, ok, err := rebuild(msg, r.opts)
	if err != nil {
		entry.WithError(err).Warn("skip unsupported dlq message")
		return false, nil
	}
	if !ok {
		return false, nil
	}

	entry = entry.WithFields(log.Fields{
		"target_topic": rp.topic,
		"key":          rp.key,
		"event_type":   rp.envelope.EventType,
		"error":        rp.letter.PublishError,
	})
	if !r.opts.execute {
		entry.Info("dlq replay candidate")
		return true, nil
	}
	if err := r.publisher.PublishEvent(ctx, rp.topic, rp.key, rp.envelope, rp.headers(r.opts.source)); err != nil {
		return false, fmt.Errorf("replay %s: %w", rp.envelope.ID, err)
	}
	entry.Debug("dlq message replayed")
	return true, nil
}

type replay struct {
	topic    string
	key      string
	envelope kafka.Envelope
	letter   outbox.DeadLetter
}

func (rp replay) headers(source string) map[string]string {
	h := map[string]string{
		kafka.HeaderEventType:     rp.envelope.EventType,
		kafka.HeaderAggregateType: rp.envelope.AggregateType,
		kafka.HeaderOriginalTopic: source,
		kafka.HeaderErrorMessage:  rp.letter.PublishError,
	}
	if !rp.letter.DLQPublishedAt.IsZero() {
		h[kafka.HeaderFailedAt] = rp.letter.DLQPublishedAt.UTC().Format(time.RFC3339)
	}
	return h
}

// rebuild восстанавливает исходный envelope из DLQ-сообщения outbox worker.
// ok=false: сообщение не из outbox или не проходит фильтры.
func rebuild(msg *sarama.ConsumerMessage, opts options) (replay, bool, error) {
	var outer kafka.Envelope
	if err := json.Unmarshal(msg.Value, &outer); err != nil || len(outer.Payload) == 0 {
		return replay{}, false, nil
	}

	var letter outbox.DeadLetter
	if err := json.Unmarshal(outer.Payload, &letter); err != nil {
		return replay{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return replay{}, false, errors.New("dead letter has no original payload")
	}

	env := kafka.Envelope{
		ID:            coalesce(letter.OutboxID, outer.ID),
		AggregateType: coalesce(letter.AggregateType, outer.AggregateType),
		AggregateID:   coalesce(letter.AggregateID, outer.AggregateID),
		EventType:     coalesce(letter.EventType, outer.EventType),
		Payload:       letter.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	if opts.aggregate != "" && env.AggregateType != opts.aggregate {
		return replay{}, false, nil
	}
	if opts.eventType != "" && env.EventType != opts.eventType {
		return replay{}, false, nil
	}

	topic := opts.target
	if topic == "" {
		topic = kafka.TopicForAggregate(env.AggregateType, kafka.TopicTransactions)
	}
	return replay{
		topic:    topic,
		key:      coalesce(env.AggregateID, env.ID),
		envelope: env,
		letter:   letter,
	}, true, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
