package grpcweb

import (
	"context"
	"errors"
	"io"
)

// MessageSource is a pull-based sequence of request messages, used as the
// request side of client-streaming and bidi calls. Next blocks until the
// next message is available and returns io.EOF once the sequence is
// exhausted. Implementations must honor cancellation of ctx.
type MessageSource interface {
	Next(ctx context.Context) (any, error)
}

// SourceFromSlice returns a MessageSource yielding the given messages in
// order.
func SourceFromSlice(msgs ...any) MessageSource {
	return &sliceSource{msgs: msgs}
}

type sliceSource struct {
	msgs []any
}

func (s *sliceSource) Next(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.msgs) == 0 {
		return nil, io.EOF
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

// SourceFromChan returns a MessageSource reading from ch until it is
// closed.
func SourceFromChan(ch <-chan any) MessageSource {
	return &chanSource{ch: ch}
}

type chanSource struct {
	ch <-chan any
}

func (s *chanSource) Next(ctx context.Context) (any, error) {
	select {
	case m, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pumpRequests drains src into the call's request body, one encoded frame
// per message, until the source is exhausted or the call is cancelled.
// Cancellation stops the pull and closes the body without an error: the
// call's outcome is decided by the cancellation path, not the body. A pull
// failure is terminal for the whole call.
func (st *callStream) pumpRequests(src MessageSource) {
	for {
		m, err := src.Next(st.ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			_ = st.CloseSend()
			return
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			_ = st.pw.Close()
			return
		default:
			st.pw.CloseWithError(err)
			st.finish(err, nil)
			return
		}
		if err := st.SendMsg(m); err != nil {
			return
		}
	}
}
