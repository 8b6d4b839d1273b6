package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/parley/internal/backend"
)

// toStatus maps an error from the query layer to a gRPC status.
func toStatus(op string, err error) error {
	code := codes.Internal
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.As(err, &apiErr):
		code = httpCode(apiErr.Status)
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}

func httpCode(status int) codes.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	}
	if status >= 500 {
		return codes.Unavailable
	}
	return codes.Unknown
}

func requireChat(chatID string) error {
	if chatID == "" {
		return grpcstatus.Error(codes.InvalidArgument, "chat id is required")
	}
	return nil
}
