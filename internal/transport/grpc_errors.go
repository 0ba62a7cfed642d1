package transport

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/msgs"
)

// ErrInvalidRequest marks a request envelope that is missing its topic or payload.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps bus and payload errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, bus.ErrInvalidTopic),
		errors.Is(err, msgs.ErrMalformed):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, bus.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
