// Package bus is the in-process publish/subscribe fabric connecting
// transponder nodes to transceivers, either directly or through the gRPC
// bridge in internal/transport.
//
// Every subscription owns a FIFO queue drained by its own goroutine, so a slow
// handler on one topic never delays delivery on another.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/logging"
	"github.com/signalsfoundry/usbl-simulator/internal/observability"
	"github.com/signalsfoundry/usbl-simulator/internal/topics"
)

// DefaultQueueSize is the per-subscription buffer used when Options leaves it unset.
const DefaultQueueSize = 64

// Directions recorded on usbl_bus_messages_total.
const (
	DirectionPublished = "published"
	DirectionDelivered = "delivered"
	DirectionDropped   = "dropped"
)

var (
	// ErrClosed is returned by operations on a closed Broker.
	ErrClosed = errors.New("bus closed")
	// ErrInvalidTopic wraps topic validation failures.
	ErrInvalidTopic = errors.New("invalid topic")
)

// Message is one payload published on a topic.
type Message struct {
	Topic   string
	Payload *structpb.Struct
}

// Handler consumes messages for one subscription. The context carries the
// publisher's request and logger values but is never cancelled.
type Handler func(ctx context.Context, msg Message)

// Options configures a Broker.
type Options struct {
	QueueSize int
	Logger    logging.Logger
	Metrics   *observability.Collector
}

// Broker fans published messages out to topic subscribers.
type Broker struct {
	queueSize int
	log       logging.Logger
	metrics   *observability.Collector

	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription // topic -> id -> sub
	closed bool
	wg     sync.WaitGroup
}

// New constructs a Broker.
func New(opts Options) *Broker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	return &Broker{
		queueSize: opts.QueueSize,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		subs:      make(map[string]map[string]*Subscription),
	}
}

type envelope struct {
	ctx context.Context
	msg Message
}

// Subscription is one registered handler on one topic.
type Subscription struct {
	ID    string
	Topic string

	broker  *Broker
	queue   chan envelope
	done    chan struct{}
	handler Handler
	once    sync.Once
}

// Subscribe registers h for topic and starts its delivery goroutine.
func (b *Broker) Subscribe(topic string, h Handler) (*Subscription, error) {
	if err := topics.Validate(topic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	if h == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", topic)
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Topic:   topic,
		broker:  b,
		queue:   make(chan envelope, b.queueSize),
		done:    make(chan struct{}),
		handler: h,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]*Subscription)
	}
	b.subs[topic][sub.ID] = sub
	b.wg.Add(1)
	go sub.run()
	return sub, nil
}

func (s *Subscription) run() {
	defer s.broker.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case env := <-s.queue:
			s.deliver(env)
		}
	}
}

func (s *Subscription) deliver(env envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.broker.log.Error(env.ctx, "bus handler panicked",
				logging.String("topic", s.Topic),
				logging.String("subscription_id", s.ID),
				logging.Any("panic", r),
			)
		}
	}()
	s.handler(env.ctx, env.msg)
	s.broker.metrics.ObserveBusMessage(DirectionDelivered)
}

// Unsubscribe stops delivery. Messages still queued are discarded. It is safe
// to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		if m := b.subs[s.Topic]; m != nil {
			delete(m, s.ID)
			if len(m) == 0 {
				delete(b.subs, s.Topic)
			}
		}
		b.mu.Unlock()
		close(s.done)
	})
}

// Publish enqueues payload for every current subscriber of topic. It blocks
// while a subscriber's queue is full, until ctx is done. Publishing to a
// topic nobody listens to is not an error.
func (b *Broker) Publish(ctx context.Context, topic string, payload *structpb.Struct) error {
	if err := topics.Validate(topic); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*Subscription, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	b.metrics.ObserveBusMessage(DirectionPublished)
	env := envelope{
		ctx: context.WithoutCancel(ctx),
		msg: Message{Topic: topic, Payload: payload},
	}
	if logging.LoggerFromContext(ctx) == nil {
		env.ctx = logging.ContextWithLogger(env.ctx, b.log)
	}

	var dropped int
	for _, s := range targets {
		select {
		case s.queue <- env:
		case <-s.done:
		case <-ctx.Done():
			dropped++
			b.metrics.ObserveBusMessage(DirectionDropped)
		}
	}
	if dropped > 0 {
		b.log.Warn(ctx, "bus publish interrupted",
			logging.String("topic", topic),
			logging.Int("dropped", dropped),
			logging.Err(ctx.Err()),
		)
		return fmt.Errorf("publish %s: %d subscriber(s) not reached: %w", topic, dropped, ctx.Err())
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close stops every subscription and waits for in-flight handlers to return.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, m := range b.subs {
		for _, s := range m {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		s.Unsubscribe()
	}
	b.wg.Wait()
}
