package transport

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/logging"
	"github.com/signalsfoundry/usbl-simulator/internal/observability"
)

// NewServer returns a grpc.Server with usbl.v1.Bus registered against broker,
// instrumented with request IDs, tracing and (when collector is non-nil)
// Prometheus RPC metrics.
func NewServer(broker *bus.Broker, log logging.Logger, collector *observability.Collector) *grpc.Server {
	if log == nil {
		log = logging.Noop()
	}
	unary := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	stream := []grpc.StreamServerInterceptor{
		RequestIDStreamServerInterceptor(log),
		TracingStreamServerInterceptor(),
	}
	if collector != nil {
		unary = append(unary, collector.UnaryServerInterceptor())
		stream = append(stream, collector.StreamServerInterceptor())
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)
	server.RegisterService(&ServiceDesc, NewBusService(broker, log, collector))
	return server
}
