package bus

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"sbomflow/internal/config"
	"sbomflow/internal/logging"
)

// ErrClosed is returned by Publish after the broker shut down.
var ErrClosed = errors.New("bus closed")

// Publisher is the narrow interface the pipeline publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, msg Message) error
}

// Delivery is one handed-over message. Attempt starts at 1 and counts
// redeliveries of the same message to the same handler.
type Delivery struct {
	Topic   string
	Key     string
	Message Message
	Attempt int
}

// Handler consumes one delivery. A non-nil error triggers redelivery up to
// the configured attempt budget.
type Handler func(ctx context.Context, delivery Delivery) error

type envelope struct {
	topic string
	key   string
	msg   Message
}

// Broker is the in-process partitioned message bus. Messages sharing a key
// land on the same partition and are handled by a single goroutine, which
// gives per-key ordering; nothing is ordered across partitions. Delivery is
// at-least-once: a failing handler sees the message again until the attempt
// budget runs out.
type Broker struct {
	logger   *slog.Logger
	attempts int
	guard    *ThresholdGuard

	mu       sync.RWMutex
	closed   bool
	handlers map[string][]Handler

	partitions []chan envelope
	wg         sync.WaitGroup
}

const redeliveryDelay = 25 * time.Millisecond

// NewBroker builds and starts a broker sized from configuration.
func NewBroker(cfg *config.Config, logger *slog.Logger) *Broker {
	broker := &Broker{
		logger:   logging.NewComponentLogger(logger, "bus"),
		attempts: cfg.Bus.DeliveryAttempts,
		guard: NewThresholdGuard(
			time.Duration(cfg.Alerting.ThresholdWindowSeconds)*time.Second,
			cfg.Alerting.ThresholdCount,
		),
		handlers:   make(map[string][]Handler),
		partitions: make([]chan envelope, cfg.Bus.Partitions),
	}
	for i := range broker.partitions {
		broker.partitions[i] = make(chan envelope, cfg.Bus.BufferSize)
		broker.wg.Add(1)
		go broker.runPartition(broker.partitions[i])
	}
	return broker
}

// Subscribe registers a handler for a topic. Handlers registered after
// messages were published still see later messages only.
func (b *Broker) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish enqueues a message onto the partition owning key. Blocks when the
// partition buffer is full; the context bounds the wait.
func (b *Broker) Publish(ctx context.Context, topic, key string, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	partition := b.partitions[partitionFor(key, len(b.partitions))]
	select {
	case partition <- envelope{topic: topic, key: key, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting publishes, drains the partitions and waits for the
// partition goroutines to exit.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	for _, partition := range b.partitions {
		close(partition)
	}
	b.wg.Wait()
}

func (b *Broker) runPartition(partition <-chan envelope) {
	defer b.wg.Done()
	ctx := context.Background()
	for env := range partition {
		b.deliver(ctx, env)
	}
}

func (b *Broker) deliver(ctx context.Context, env envelope) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[env.topic]))
	copy(handlers, b.handlers[env.topic])
	b.mu.RUnlock()

	for _, handler := range handlers {
		var err error
		for attempt := 1; attempt <= b.attempts; attempt++ {
			err = handler(ctx, Delivery{Topic: env.topic, Key: env.key, Message: env.msg, Attempt: attempt})
			if err == nil {
				break
			}
			if attempt < b.attempts {
				time.Sleep(redeliveryDelay)
			}
		}
		if err != nil {
			b.logDeliveryFailure(env, err)
		}
	}
}

// logDeliveryFailure reports an exhausted delivery. Once the threshold guard
// trips the report drops to debug so a poison message cannot flood the log.
func (b *Broker) logDeliveryFailure(env envelope, err error) {
	attrs := []any{
		logging.String(logging.FieldTopic, env.topic),
		logging.String("key", env.key),
		logging.Int("attempts", b.attempts),
		logging.Error(err),
	}
	if b.guard.RecordAndCheck() {
		b.logger.Debug("message delivery failed (alerting suppressed)", attrs...)
		return
	}
	b.logger.Error("message delivery failed", attrs...)
}

func partitionFor(key string, partitions int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}
