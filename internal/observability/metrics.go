package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Interrogation outcomes recorded on usbl_interrogations_total.
const (
	OutcomeResponded          = "responded"
	OutcomeIgnored            = "ignored"
	OutcomePeerNotFound       = "peer_not_found"
	OutcomeInvalidEnvironment = "invalid_environment"
	OutcomeSelfNotFound       = "self_not_found"
	OutcomePublishFailed      = "publish_failed"
)

// Collector bundles Prometheus metrics for transponder nodes, the message bus
// and the gRPC surface, and provides helpers to wire them into servers.
type Collector struct {
	gatherer prometheus.Gatherer

	Interrogations    *prometheus.CounterVec
	PropagationDelays *prometheus.HistogramVec
	SoundSpeed        *prometheus.GaugeVec
	Temperature       *prometheus.GaugeVec
	CommandResponses  *prometheus.CounterVec
	BusMessages       *prometheus.CounterVec
	BodyPositions     *prometheus.GaugeVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewCollector registers metrics against the provided registerer, defaulting
// to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	interrogations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usbl_interrogations_total",
		Help: "Interrogation pings handled by transponders, labeled by node, kind and outcome.",
	}, []string{"node", "kind", "outcome"}), "usbl_interrogations_total")
	if err != nil {
		return nil, err
	}

	delays, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usbl_propagation_delay_seconds",
		Help:    "Simulated one-way acoustic propagation delay applied before a response.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"node"}), "usbl_propagation_delay_seconds")
	if err != nil {
		return nil, err
	}

	soundSpeed, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "usbl_sound_speed_meters_per_second",
		Help: "Sound speed most recently computed by each transponder.",
	}, []string{"node"}), "usbl_sound_speed_meters_per_second")
	if err != nil {
		return nil, err
	}

	temperature, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "usbl_temperature_celsius",
		Help: "Water temperature most recently reported to each transponder.",
	}, []string{"node"}), "usbl_temperature_celsius")
	if err != nil {
		return nil, err
	}

	responses, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usbl_command_responses_total",
		Help: "Structured command responses sent by transponders.",
	}, []string{"node"}), "usbl_command_responses_total")
	if err != nil {
		return nil, err
	}

	busMessages, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usbl_bus_messages_total",
		Help: "Messages passing through the in-process bus, labeled by direction (published, delivered, dropped).",
	}, []string{"direction"}), "usbl_bus_messages_total")
	if err != nil {
		return nil, err
	}

	bodyPositions, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "usbl_body_position_meters",
		Help: "Latest world position of each simulated body, labeled by body and axis.",
	}, []string{"body", "axis"}), "usbl_body_position_meters")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usbl_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "usbl_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usbl_rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "usbl_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Interrogations:    interrogations,
		PropagationDelays: delays,
		SoundSpeed:        soundSpeed,
		Temperature:       temperature,
		CommandResponses:  responses,
		BusMessages:       busMessages,
		BodyPositions:     bodyPositions,
		RPCRequests:       requests,
		RPCDurations:      durations,
	}, nil
}

// NodeMetrics returns a recorder bound to one transponder node.
func (c *Collector) NodeMetrics(node string) *NodeMetrics {
	return &NodeMetrics{c: c, node: node}
}

// NodeMetrics records per-transponder metrics. A nil *NodeMetrics is valid
// and records nothing.
type NodeMetrics struct {
	c    *Collector
	node string
}

// ObserveInterrogation counts one ping by kind and outcome.
func (m *NodeMetrics) ObserveInterrogation(kind, outcome string) {
	if m == nil || m.c == nil {
		return
	}
	m.c.Interrogations.WithLabelValues(m.node, kind, outcome).Inc()
}

// ObservePropagationDelay records the delay applied to an accepted ping.
func (m *NodeMetrics) ObservePropagationDelay(d time.Duration) {
	if m == nil || m.c == nil {
		return
	}
	m.c.PropagationDelays.WithLabelValues(m.node).Observe(d.Seconds())
}

// SetEnvironment publishes the node's current temperature and sound speed.
func (m *NodeMetrics) SetEnvironment(temperatureC, soundSpeed float64) {
	if m == nil || m.c == nil {
		return
	}
	m.c.Temperature.WithLabelValues(m.node).Set(temperatureC)
	m.c.SoundSpeed.WithLabelValues(m.node).Set(soundSpeed)
}

// IncCommandResponses counts one structured command response.
func (m *NodeMetrics) IncCommandResponses() {
	if m == nil || m.c == nil {
		return
	}
	m.c.CommandResponses.WithLabelValues(m.node).Inc()
}

// ObserveBusMessage counts one bus message in the given direction.
func (c *Collector) ObserveBusMessage(direction string) {
	if c == nil || c.BusMessages == nil {
		return
	}
	c.BusMessages.WithLabelValues(direction).Inc()
}

// ObserveBodyPosition records where a body currently is.
func (c *Collector) ObserveBodyPosition(body string, x, y, z float64) {
	if c == nil || c.BodyPositions == nil {
		return
	}
	c.BodyPositions.WithLabelValues(body, "x").Set(x)
	c.BodyPositions.WithLabelValues(body, "y").Set(y)
	c.BodyPositions.WithLabelValues(body, "z").Set(z)
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observeRPC(fullMethod, err, start)
		return resp, err
	}
}

// StreamServerInterceptor records request counts and durations for streams.
// The duration covers the whole life of the stream.
func (c *Collector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		if c == nil {
			return err
		}
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observeRPC(fullMethod, err, start)
		return err
	}
}

func (c *Collector) observeRPC(fullMethod string, err error, start time.Time) {
	service, method := SplitMethod(fullMethod)
	code := status.Code(err).String()

	if c.RPCRequests != nil {
		c.RPCRequests.WithLabelValues(service, method, code).Inc()
	}
	if c.RPCDurations != nil {
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
