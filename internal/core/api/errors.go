package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/solatis/oasconform/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// invalid wraps a request validation failure.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// toStatus maps service errors onto gRPC status codes.
// Auth errors are mapped in the auth interceptor.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrStoreIO), errors.Is(err, types.ErrQueueIO):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
