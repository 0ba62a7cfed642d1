// Package transponder implements the acoustic timing and response model of a
// USBL transponder: it answers interrogation pings with a noisy estimate of
// its own position after the simulated sound propagation delay, and answers
// structured commands immediately.
package transponder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/usbl-simulator/core"
	"github.com/signalsfoundry/usbl-simulator/internal/logging"
	"github.com/signalsfoundry/usbl-simulator/internal/observability"
	"github.com/signalsfoundry/usbl-simulator/internal/sched"
	"github.com/signalsfoundry/usbl-simulator/model"
)

const tracerName = "github.com/signalsfoundry/usbl-simulator/internal/transponder"

// PingCommand is the only interrogation payload a transponder answers.
const PingCommand = "ping"

// InitialTemperature is the water temperature assumed until the first update.
const InitialTemperature = core.ReferenceTemperature

// InterrogationKind distinguishes the channel a ping arrived on. Both kinds
// are answered identically.
type InterrogationKind int

const (
	// Individual pings are addressed to exactly one transponder.
	Individual InterrogationKind = iota
	// Common pings are broadcast to every transponder in a namespace.
	Common
)

func (k InterrogationKind) String() string {
	switch k {
	case Individual:
		return "individual"
	case Common:
		return "common"
	default:
		return "unknown"
	}
}

// PositionProbe answers live position queries against the host world.
type PositionProbe interface {
	SelfPosition() (model.Position, error)
	PeerPosition(name string) (model.Position, error)
}

// Publisher accepts the transponder's outbound payloads.
type Publisher interface {
	PublishGlobalPosition(ctx context.Context, pos model.Position) error
	PublishCommandResponse(ctx context.Context, resp Response) error
}

// Metrics records transponder activity. *observability.NodeMetrics satisfies it.
type Metrics interface {
	ObserveInterrogation(kind, outcome string)
	ObservePropagationDelay(d time.Duration)
	SetEnvironment(temperatureC, soundSpeed float64)
	IncCommandResponses()
}

// Deps are the collaborators a Transponder needs.
type Deps struct {
	Probe     PositionProbe
	Publisher Publisher
	Scheduler sched.EventScheduler
	Logger    logging.Logger
	Metrics   Metrics

	// NoiseSource overrides the noise generator; nil derives one from Config.Seed.
	NoiseSource rand.Source
}

// Transponder is one simulated transponder node.
type Transponder struct {
	identity  model.Identity
	peer      string
	txNumber  int
	name      string
	probe     PositionProbe
	pub       Publisher
	scheduler sched.EventScheduler
	noise     *core.NoiseModel
	env       *environment
	log       logging.Logger
	metrics   Metrics
	tracer    trace.Tracer
}

// New validates cfg and constructs a Transponder. Configuration errors wrap
// ErrConfiguration and are fatal for this node.
//
// The initial sound speed is computed at InitialTemperature and the current
// self depth; when the body cannot be located yet, depth 0 is assumed.
func New(cfg Config, deps Deps) (*Transponder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Probe == nil || deps.Publisher == nil || deps.Scheduler == nil {
		return nil, fmt.Errorf("%w: probe, publisher and scheduler are required", ErrConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Noop()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}

	var noise *core.NoiseModel
	var err error
	if deps.NoiseSource == nil && cfg.Seed != 0 {
		noise, err = core.NewSeededNoiseModel(cfg.Noise, cfg.Seed)
	} else {
		noise, err = core.NewNoiseModel(cfg.Noise, deps.NoiseSource)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	txNumber, _ := transceiverNumber(cfg.Identity.TransceiverID)
	peer := cfg.Peer
	if peer == "" {
		peer = DefaultPeer
	}
	name := cfg.Identity.TransponderDevice + "_" + cfg.Identity.TransponderID

	t := &Transponder{
		identity:  cfg.Identity,
		peer:      peer,
		txNumber:  txNumber,
		name:      name,
		probe:     deps.Probe,
		pub:       deps.Publisher,
		scheduler: deps.Scheduler,
		noise:     noise,
		log:       deps.Logger.With(logging.String("transponder", name)),
		metrics:   deps.Metrics,
		tracer:    otel.Tracer(tracerName),
	}

	depth := 0.0
	if pos, err := deps.Probe.SelfPosition(); err == nil {
		depth = pos.Z
	} else {
		t.log.Warn(context.Background(), "transponder body not found at startup; assuming surface depth", logging.Err(err))
	}
	t.env = newEnvironment(InitialTemperature, depth)
	snap := t.env.snapshot()
	t.metrics.SetEnvironment(snap.TemperatureC, snap.SoundSpeed)
	return t, nil
}

// Name returns "<transponderDevice>_<transponderID>".
func (t *Transponder) Name() string { return t.name }

// Identity returns the node's immutable identity.
func (t *Transponder) Identity() model.Identity { return t.identity }

// Peer returns the default peer body name.
func (t *Transponder) Peer() string { return t.peer }

// Noise returns the parameters of the position noise added to telemetry.
func (t *Transponder) Noise() model.NoiseParameters { return t.noise.Params() }

// Environment returns a snapshot of the current acoustic environment.
func (t *Transponder) Environment() Environment { return t.env.snapshot() }

// OnTemperatureUpdate stores a new water temperature and recomputes the sound
// speed once, at the current self depth. If the body cannot be located the
// depth of the previous computation is reused.
func (t *Transponder) OnTemperatureUpdate(ctx context.Context, temperatureC float64) Environment {
	depth := t.env.snapshot().Depth
	if pos, err := t.probe.SelfPosition(); err == nil {
		depth = pos.Z
	} else {
		t.log.Warn(ctx, "self position unavailable; reusing previous depth",
			logging.Float64("depth", depth), logging.Err(err))
	}

	env := t.env.update(temperatureC, depth)
	t.metrics.SetEnvironment(env.TemperatureC, env.SoundSpeed)
	t.log.Info(ctx, "detected change of temperature",
		logging.Float64("temperature_c", env.TemperatureC),
		logging.Float64("depth", env.Depth),
		logging.Float64("sound_speed_mps", env.SoundSpeed),
	)
	if env.SoundSpeed <= 0 {
		t.log.Warn(ctx, "sound speed is not positive; pings will be dropped until the next temperature update",
			logging.Float64("sound_speed_mps", env.SoundSpeed))
	}
	return env
}

// OnInterrogationPing handles one interrogation ping. Only "ping" is answered;
// anything else is logged and dropped. An accepted ping is answered with a
// noisy self position after the propagation delay to peer (DefaultPeer or the
// configured peer when peer is empty). Failures are contained to this cycle
// and only surface in logs and metrics.
func (t *Transponder) OnInterrogationPing(ctx context.Context, kind InterrogationKind, command, peer string) {
	ctx, _ = logging.NewCycleContext(ctx)
	if err := t.interrogate(ctx, kind, command, peer); err != nil {
		t.metrics.ObserveInterrogation(kind.String(), outcomeFor(err))
		switch {
		case errors.Is(err, ErrUnknownCommand):
			t.log.Info(ctx, "unknown command, ignore",
				logging.String("kind", kind.String()), logging.String("command", command))
		default:
			t.log.Warn(ctx, "interrogation dropped",
				logging.String("kind", kind.String()), logging.Err(err))
		}
	}
}

// interrogate validates the ping, measures the distance once and schedules
// the response. It returns nil once the response is scheduled.
func (t *Transponder) interrogate(ctx context.Context, kind InterrogationKind, command, peer string) error {
	if command != PingCommand {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	if peer == "" {
		peer = t.peer
	}

	ctx, span := t.tracer.Start(ctx, "transponder.interrogation", trace.WithAttributes(
		attribute.String("transponder", t.name),
		attribute.String("interrogation.kind", kind.String()),
		attribute.String("peer", peer),
	))

	delay, err := t.propagationDelay(peer, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return err
	}

	t.metrics.ObservePropagationDelay(delay)
	at := t.scheduler.Now().Add(delay)
	t.log.Info(ctx, "received ping, responding after propagation delay",
		logging.String("kind", kind.String()),
		logging.String("peer", peer),
		logging.Float64("delay_s", delay.Seconds()),
	)

	// The ping's delivery context may end before the response is due.
	respondCtx := context.WithoutCancel(ctx)
	t.scheduler.Schedule(at, func() {
		defer span.End()
		if err := t.respond(respondCtx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			t.metrics.ObserveInterrogation(kind.String(), outcomeFor(err))
			t.log.Warn(respondCtx, "response not sent", logging.String("kind", kind.String()), logging.Err(err))
			return
		}
		t.metrics.ObserveInterrogation(kind.String(), observability.OutcomeResponded)
	})
	return nil
}

// propagationDelay queries self and peer once and converts their distance
// into a delay at the cached sound speed.
func (t *Transponder) propagationDelay(peer string, span trace.Span) (time.Duration, error) {
	self, err := t.probe.SelfPosition()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSelfNotFound, err)
	}
	other, err := t.probe.PeerPosition(peer)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrPeerNotFound, peer, err)
	}

	distance := core.Distance(self, other)
	env := t.env.snapshot()
	span.SetAttributes(
		attribute.Float64("distance_m", distance),
		attribute.Float64("sound_speed_mps", env.SoundSpeed),
	)

	delay, err := core.PropagationDelay(distance, env.SoundSpeed)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidEnvironment, err)
	}
	span.SetAttributes(attribute.Float64("delay_s", delay.Seconds()))
	return delay, nil
}

// respond re-samples the self position, perturbs it and publishes it.
func (t *Transponder) respond(ctx context.Context) error {
	truth, err := t.probe.SelfPosition()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSelfNotFound, err)
	}
	reported := t.noise.Perturb(truth)
	if err := t.pub.PublishGlobalPosition(ctx, reported); err != nil {
		return fmt.Errorf("publish global position: %w", err)
	}
	t.log.Debug(ctx, "sent global position",
		logging.Float64("x", reported.X),
		logging.Float64("y", reported.Y),
		logging.Float64("z", reported.Z),
	)
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return observability.OutcomeIgnored
	case errors.Is(err, ErrPeerNotFound):
		return observability.OutcomePeerNotFound
	case errors.Is(err, ErrSelfNotFound):
		return observability.OutcomeSelfNotFound
	case errors.Is(err, ErrInvalidEnvironment):
		return observability.OutcomeInvalidEnvironment
	default:
		return observability.OutcomePublishFailed
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveInterrogation(string, string)   {}
func (noopMetrics) ObservePropagationDelay(time.Duration) {}
func (noopMetrics) SetEnvironment(float64, float64)       {}
func (noopMetrics) IncCommandResponses()                  {}
