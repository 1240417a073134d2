package grpcweb

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProtocolError indicates the peer violated the gRPC-Web framing or call
// shape: an invalid compression flag, a truncated trailing frame, or the
// wrong number of messages for a unary-shaped response. It is fatal to the
// call and never retried.
type ProtocolError struct {
	Code   codes.Code
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// GRPCStatus lets status.FromError classify the failure.
func (e *ProtocolError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Error())
}

func protocolErrorf(code codes.Code, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a failure of the underlying HTTP exchange: a network
// error or a non-2xx response. The cause is preserved for unwrapping.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Cause.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.FromError classify the failure.
func (e *TransportError) GRPCStatus() *status.Status {
	return status.New(codes.Unavailable, e.Error())
}

// normalizeErr maps context cancellation onto the matching gRPC status so
// callers can tell "I asked for this" apart from "it broke". Other errors
// pass through unchanged.
func normalizeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return err
}
