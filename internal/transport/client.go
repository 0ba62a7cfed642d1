package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/logging"
)

// Client calls a remote usbl.v1.Bus.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target without transport security. Extra options are
// appended after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(RequestIDUnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(target, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Publish sends payload on topic.
func (c *Client) Publish(ctx context.Context, topic string, payload *structpb.Struct) error {
	return c.conn.Invoke(ctx, PublishMethod, encodeEnvelope(topic, payload), new(emptypb.Empty))
}

// Subscribe opens a stream of messages on topic. The returned channel is
// closed when ctx ends or the stream fails; the error channel then carries
// the terminal error, if any.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan bus.Message, <-chan error, error) {
	ctx, id := logging.EnsureRequestID(ctx)
	ctx = metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, id)

	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeMethod)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if err := stream.SendMsg(encodeEnvelope(topic, nil)); err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	// Wait for the server to accept the subscription so that messages
	// published after Subscribe returns are not missed.
	if _, err := stream.Header(); err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan bus.Message, subscriptionBuffer)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for {
			env := new(structpb.Struct)
			if err := stream.RecvMsg(env); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					errc <- err
				}
				return
			}
			t, payload, err := decodeEnvelope(env, true)
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- bus.Message{Topic: t, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc, nil
}
