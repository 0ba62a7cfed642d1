// Package node binds a Transponder to the message bus: it subscribes the four
// inbound topics, decodes their payloads and publishes the transponder's
// telemetry and command responses.
package node

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/logging"
	"github.com/signalsfoundry/usbl-simulator/internal/msgs"
	"github.com/signalsfoundry/usbl-simulator/internal/observability"
	"github.com/signalsfoundry/usbl-simulator/internal/sched"
	"github.com/signalsfoundry/usbl-simulator/internal/topics"
	"github.com/signalsfoundry/usbl-simulator/internal/transponder"
	"github.com/signalsfoundry/usbl-simulator/model"
)

// DefaultPublishTimeout bounds how long one outbound message may wait for a
// full subscriber queue before it is dropped.
const DefaultPublishTimeout = 100 * time.Millisecond

// Deps are the shared services a node is attached to.
type Deps struct {
	Broker    *bus.Broker
	Probe     transponder.PositionProbe
	Scheduler sched.EventScheduler
	Logger    logging.Logger
	Metrics   *observability.Collector

	// PublishTimeout defaults to DefaultPublishTimeout. Delayed responses
	// publish from the scheduler goroutine, so this also bounds how long a
	// slow subscriber can hold the simulation clock.
	PublishTimeout time.Duration
}

// Node is one running transponder on the bus.
type Node struct {
	tp             *transponder.Transponder
	broker         *bus.Broker
	topics         topics.Set
	log            logging.Logger
	subs           []*bus.Subscription
	publishTimeout time.Duration
}

// New builds the transponder for cfg. Nothing is subscribed until Start.
func New(cfg transponder.Config, deps Deps) (*Node, error) {
	if deps.Broker == nil {
		return nil, fmt.Errorf("%w: broker is required", transponder.ErrConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Noop()
	}
	if deps.PublishTimeout <= 0 {
		deps.PublishTimeout = DefaultPublishTimeout
	}
	n := &Node{
		broker:         deps.Broker,
		topics:         topics.For(cfg.Identity),
		publishTimeout: deps.PublishTimeout,
	}
	tdeps := transponder.Deps{
		Probe:     deps.Probe,
		Publisher: n,
		Scheduler: deps.Scheduler,
		Logger:    deps.Logger,
	}
	if deps.Metrics != nil {
		name := cfg.Identity.TransponderDevice + "_" + cfg.Identity.TransponderID
		tdeps.Metrics = deps.Metrics.NodeMetrics(name)
	}
	tp, err := transponder.New(cfg, tdeps)
	if err != nil {
		return nil, err
	}
	n.tp = tp
	n.log = deps.Logger.With(logging.String("transponder", tp.Name()))
	return n, nil
}

// Transponder exposes the underlying model.
func (n *Node) Transponder() *transponder.Transponder { return n.tp }

// Topics returns the node's topic layout.
func (n *Node) Topics() topics.Set { return n.topics }

// Start subscribes the inbound topics. On failure any subscriptions already
// made are released.
func (n *Node) Start() error {
	handlers := []struct {
		topic string
		h     bus.Handler
	}{
		{n.topics.IndividualPing, n.pingHandler(transponder.Individual)},
		{n.topics.CommonPing, n.pingHandler(transponder.Common)},
		{n.topics.Temperature, n.handleTemperature},
		{n.topics.CommandRequest, n.handleCommand},
	}
	for _, h := range handlers {
		sub, err := n.broker.Subscribe(h.topic, h.h)
		if err != nil {
			n.Close()
			return fmt.Errorf("subscribe %s: %w", h.topic, err)
		}
		n.subs = append(n.subs, sub)
	}
	n.log.Info(context.Background(), "transponder node started",
		logging.String("individual_ping", n.topics.IndividualPing),
		logging.String("common_ping", n.topics.CommonPing),
		logging.String("temperature", n.topics.Temperature),
		logging.String("command_request", n.topics.CommandRequest),
		logging.Float64("sound_speed_mps", n.tp.Environment().SoundSpeed),
		logging.Float64("noise_mu", n.tp.Noise().Mu),
		logging.Float64("noise_sigma", n.tp.Noise().Sigma),
	)
	return nil
}

// Close unsubscribes every inbound topic. Responses already scheduled still
// fire and publish.
func (n *Node) Close() {
	for _, s := range n.subs {
		s.Unsubscribe()
	}
	n.subs = nil
}

func (n *Node) pingHandler(kind transponder.InterrogationKind) bus.Handler {
	return func(ctx context.Context, msg bus.Message) {
		command, peer, err := msgs.DecodePing(msg.Payload)
		if err != nil {
			n.malformed(ctx, msg, err)
			return
		}
		n.tp.OnInterrogationPing(ctx, kind, command, peer)
	}
}

func (n *Node) handleTemperature(ctx context.Context, msg bus.Message) {
	t, err := msgs.DecodeFloat64(msg.Payload)
	if err != nil {
		n.malformed(ctx, msg, err)
		return
	}
	n.tp.OnTemperatureUpdate(ctx, t)
}

func (n *Node) handleCommand(ctx context.Context, msg bus.Message) {
	cmd, err := msgs.DecodeCommand(msg.Payload)
	if err != nil {
		n.malformed(ctx, msg, err)
		return
	}
	// Publish failures are already logged by the transponder.
	_, _ = n.tp.OnCommandRequest(ctx, cmd)
}

func (n *Node) malformed(ctx context.Context, msg bus.Message, err error) {
	n.log.Warn(ctx, "dropping malformed message", logging.String("topic", msg.Topic), logging.Err(err))
}

// PublishGlobalPosition implements transponder.Publisher.
func (n *Node) PublishGlobalPosition(ctx context.Context, pos model.Position) error {
	return n.publish(ctx, n.topics.GlobalPosition, msgs.Vector3d(pos))
}

// PublishCommandResponse implements transponder.Publisher.
func (n *Node) PublishCommandResponse(ctx context.Context, resp transponder.Response) error {
	return n.publish(ctx, n.topics.CommandResponse, msgs.Response(resp))
}

func (n *Node) publish(ctx context.Context, topic string, payload *structpb.Struct) error {
	ctx, cancel := context.WithTimeout(ctx, n.publishTimeout)
	defer cancel()
	if err := n.broker.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
