// Package transport exposes the in-process bus over gRPC so that
// transceiver-side tools in other processes can interrogate transponders and
// receive their telemetry.
//
// The service is declared by hand on top of google.protobuf.Struct and
// google.protobuf.Empty:
//
//	service usbl.v1.Bus {
//	  rpc Publish(Struct{topic, payload}) returns (Empty);
//	  rpc Subscribe(Struct{topic}) returns (stream Struct{topic, payload});
//	}
package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/logging"
	"github.com/signalsfoundry/usbl-simulator/internal/observability"
)

const (
	ServiceName = "usbl.v1.Bus"

	PublishMethod   = "/" + ServiceName + "/Publish"
	SubscribeMethod = "/" + ServiceName + "/Subscribe"

	fieldTopic   = "topic"
	fieldPayload = "payload"

	// subscriptionBuffer bounds messages waiting to be written to one stream.
	subscriptionBuffer = 64
)

// BusServer is the server API of usbl.v1.Bus.
type BusServer interface {
	Publish(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes usbl.v1.Bus for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "usbl/v1/bus.proto",
}

func publishHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BusServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublishMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BusServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BusServer).Subscribe(in, stream)
}

// BusService implements BusServer on top of a bus.Broker.
type BusService struct {
	broker  *bus.Broker
	log     logging.Logger
	metrics *observability.Collector
}

// NewBusService returns a BusService publishing to and subscribing on broker.
// collector may be nil.
func NewBusService(broker *bus.Broker, log logging.Logger, collector *observability.Collector) *BusService {
	if log == nil {
		log = logging.Noop()
	}
	return &BusService{broker: broker, log: log, metrics: collector}
}

// Publish forwards one message onto the bus.
func (s *BusService) Publish(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	topic, payload, err := decodeEnvelope(req, true)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.broker.Publish(ctx, topic, payload); err != nil {
		return nil, ToStatusError(err)
	}
	s.logger(ctx).Debug(ctx, "published message", logging.String("topic", topic))
	return &emptypb.Empty{}, nil
}

// Subscribe streams every message published on the requested topic until
// the client goes away or the bus closes. A stream that falls more than
// subscriptionBuffer messages behind loses the overflow; the bus delivery
// goroutine never waits on a remote client.
func (s *BusService) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	topic, _, err := decodeEnvelope(req, false)
	if err != nil {
		return ToStatusError(err)
	}

	out := make(chan bus.Message, subscriptionBuffer)
	sub, err := s.broker.Subscribe(topic, func(_ context.Context, m bus.Message) {
		select {
		case out <- m:
		default:
			s.metrics.ObserveBusMessage(bus.DirectionDropped)
			s.logger(ctx).Warn(ctx, "remote subscriber lagging, message dropped", logging.String("topic", m.Topic))
		}
	})
	if err != nil {
		return ToStatusError(err)
	}
	defer sub.Unsubscribe()

	// Headers tell the client the subscription is live.
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	log := s.logger(ctx)
	log.Info(ctx, "remote subscriber attached", logging.String("topic", topic), logging.String("subscription_id", sub.ID))
	defer log.Info(ctx, "remote subscriber detached", logging.String("topic", topic), logging.String("subscription_id", sub.ID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-out:
			if err := stream.SendMsg(encodeEnvelope(m.Topic, m.Payload)); err != nil {
				return err
			}
		}
	}
}

func (s *BusService) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func encodeEnvelope(topic string, payload *structpb.Struct) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldTopic: structpb.NewStringValue(topic),
	}
	if payload != nil {
		fields[fieldPayload] = structpb.NewStructValue(payload)
	}
	return &structpb.Struct{Fields: fields}
}

func decodeEnvelope(st *structpb.Struct, wantPayload bool) (string, *structpb.Struct, error) {
	topicVal, ok := st.GetFields()[fieldTopic]
	if !ok {
		return "", nil, fmt.Errorf("%w: missing %q", ErrInvalidRequest, fieldTopic)
	}
	topic, ok := topicVal.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q must be a string", ErrInvalidRequest, fieldTopic)
	}
	if !wantPayload {
		return topic.StringValue, nil, nil
	}
	payload := st.GetFields()[fieldPayload].GetStructValue()
	if payload == nil {
		return "", nil, fmt.Errorf("%w: missing %q object", ErrInvalidRequest, fieldPayload)
	}
	return topic.StringValue, payload, nil
}
