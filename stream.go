package grpcweb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jhump/grpcweb/codec"
)

// callStream carries the state of one RPC invocation: the outgoing request
// pipe, the response decode loop, header/trailer capture, and the call's
// own cancellation scope. It implements grpc.ClientStream.
//
// All of this state is allocated per call; nothing here is shared between
// concurrent calls on the same channel.
type callStream struct {
	ctx          context.Context
	cancel       context.CancelCauseFunc
	stopDeadline func()
	ch           *Channel
	method       string

	isClientStream bool
	isServerStream bool

	// request body, consumed by the transport
	pw *io.PipeWriter

	headersTargets  []*metadata.MD
	trailersTargets []*metadata.MD

	// for delivering decoded frames from the exchange goroutine
	deliverMu        sync.Mutex
	frames           chan []byte
	gotHeaders       bool
	gotHeadersSignal chan struct{}
	header           metadata.MD
	done             error
	doneSignal       chan struct{}
	trailer          metadata.MD

	// for reading frames, to decode response messages
	readMu   sync.Mutex
	readErr  error
	numRecvd int

	// for sending request messages
	writeMu    sync.Mutex
	numSent    int
	halfClosed bool
}

func (st *callStream) Context() context.Context {
	return st.ctx
}

func (st *callStream) Header() (metadata.MD, error) {
	// if we've already received headers, return them
	select {
	case <-st.gotHeadersSignal:
		return st.header, nil
	default:
	}

	select {
	case <-st.gotHeadersSignal:
		return st.header, nil
	case <-st.ctx.Done():
		// in the event of a race, always respect getting headers first
		select {
		case <-st.gotHeadersSignal:
			return st.header, nil
		default:
		}
		return nil, normalizeErr(context.Cause(st.ctx))
	}
}

func (st *callStream) Trailer() metadata.MD {
	// Unlike Header(), this method does not block and should only be
	// used after the call has ended.
	select {
	case <-st.doneSignal:
		return st.trailer
	default:
		return nil
	}
}

func (st *callStream) CloseSend() error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	select {
	case <-st.doneSignal:
		if st.done == io.EOF {
			return nil
		}
		return st.done
	default:
		// don't block since we are holding writeMu
	}

	if st.halfClosed {
		return errors.New("already half-closed")
	}
	st.halfClosed = true
	return st.pw.Close()
}

func (st *callStream) SendMsg(m any) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	select {
	case <-st.doneSignal:
		if st.done == io.EOF {
			return io.EOF
		}
		return st.done
	default:
	}

	if st.halfClosed {
		return errors.New("already half-closed")
	}
	if !st.isClientStream && st.numSent == 1 {
		return status.Errorf(codes.Internal, "already sent request for non-client-streaming method %s", st.method)
	}
	st.numSent++

	b, err := st.ch.codec.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := st.pw.Write(codec.EncodeFrame(b)); err != nil {
		// the pipe was torn down because the call terminated; surface
		// the call's outcome rather than the pipe error
		select {
		case <-st.doneSignal:
			if st.done != io.EOF {
				return st.done
			}
		default:
		}
		return err
	}
	return nil
}

func (st *callStream) RecvMsg(m any) error {
	st.readMu.Lock()
	defer st.readMu.Unlock()

	data, err := st.recvFrame()
	if err != nil {
		if err == io.EOF && st.numRecvd == 0 && !st.isServerStream {
			err = protocolErrorf(codes.Internal, "response contained no messages for non-server-streaming method %s", st.method)
			st.readErr = err
		}
		return err
	}
	st.numRecvd++

	if !st.isServerStream {
		// eagerly confirm the body holds no further message; more than
		// one response for a unary-shaped method is a protocol violation
		if _, extraErr := st.recvFrame(); extraErr == nil {
			err := protocolErrorf(codes.Internal, "received multiple response messages for non-server-streaming method %s", st.method)
			st.readErr = err
			st.finish(err, nil)
			return err
		} else if extraErr != io.EOF {
			return extraErr
		}
	}

	return st.ch.codec.Unmarshal(data, m)
}

func (st *callStream) recvFrame() ([]byte, error) {
	if st.readErr != nil {
		return nil, st.readErr
	}
	frame, ok := <-st.frames
	if !ok {
		// observing the channel close provides safe visibility of done
		st.readErr = st.done
		return nil, st.readErr
	}
	return frame, nil
}

// exchange runs in its own goroutine and performs the call's single HTTP
// round trip, then drives the response body through the decoder.
func (st *callStream) exchange(req *Request) {
	st.ch.logger.Debug("starting exchange", zap.String("method", st.method))
	resp, err := st.ch.transport.RoundTrip(st.ctx, req)
	if err != nil {
		if cause := context.Cause(st.ctx); cause != nil {
			err = cause
		} else {
			err = &TransportError{Cause: err}
		}
		st.ch.logger.Debug("exchange failed", zap.String("method", st.method), zap.Error(err))
		st.finish(err, nil)
		return
	}
	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		_ = resp.Body.Close()
		st.finish(&TransportError{Cause: fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)}, nil)
		return
	}

	// headers have arrived: the deadline's work is done, the caller's own
	// context governs from here
	st.stopDeadline()
	st.setHeader(metadataFromHeader(resp.Header))

	// a server reports failure in headers when there is no body to frame
	if err := statusFromHeaders(resp.Header); err != nil {
		_ = resp.Body.Close()
		st.finish(err, nil)
		return
	}

	st.readBody(resp)
}

func (st *callStream) readBody(resp *Response) {
	var dec codec.Decoder
	buf := make([]byte, 32*1024)
	var failure error

loop:
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			frames, derr := dec.Decode(buf[:n])
			for _, frame := range frames {
				if !st.deliver(frame) {
					break loop
				}
			}
			if derr != nil {
				failure = decodeError(derr)
				break
			}
		}
		if rerr == io.EOF {
			if cerr := dec.Close(); cerr != nil {
				failure = decodeError(cerr)
			}
			break
		}
		if rerr != nil {
			if cause := context.Cause(st.ctx); cause != nil {
				failure = cause
			} else {
				failure = &TransportError{Cause: rerr}
			}
			break
		}
	}

	var trailerHdr http.Header
	if resp.Trailer != nil {
		trailerHdr = resp.Trailer()
	}
	if cerr := resp.Body.Close(); cerr != nil {
		if failure == nil {
			failure = &TransportError{Cause: cerr}
		} else {
			failure = multierr.Append(failure, cerr)
		}
	}
	if failure == nil {
		failure = statusFromHeaders(trailerHdr)
	}
	if failure != nil {
		st.ch.logger.Debug("call failed", zap.String("method", st.method), zap.Error(failure))
	}
	st.finish(failure, metadataFromHeader(trailerHdr))
}

// deliver hands a decoded frame to the reader, blocking until it is
// consumed or the call is torn down.
func (st *callStream) deliver(frame []byte) bool {
	st.deliverMu.Lock()
	defer st.deliverMu.Unlock()

	if st.done != nil {
		return false
	}
	select {
	case st.frames <- frame:
		return true
	case <-st.ctx.Done():
		return false
	}
}

// finish terminates the call exactly once, on every path: normal body end
// (err == nil), transport or protocol failure, and cancellation. It
// releases the deadline watcher, the cancellation scope, and the request
// pipe, and wakes everything blocked on the call.
func (st *callStream) finish(err error, trailers metadata.MD) {
	err = normalizeErr(err)
	if err == nil {
		err = io.EOF
	}

	// unblock a delivery in progress before taking deliverMu
	st.cancel(err)
	st.stopDeadline()

	st.deliverMu.Lock()
	defer st.deliverMu.Unlock()

	if st.done != nil {
		return
	}
	st.done = err
	st.trailer = trailers
	for _, tlrs := range st.trailersTargets {
		*tlrs = trailers
	}
	if !st.gotHeaders {
		st.gotHeaders = true
		close(st.gotHeadersSignal)
	}
	close(st.frames)
	close(st.doneSignal)
	_ = st.pw.CloseWithError(err)
}

func (st *callStream) setHeader(md metadata.MD) {
	st.deliverMu.Lock()
	defer st.deliverMu.Unlock()

	if st.done != nil || st.gotHeaders {
		return
	}
	st.gotHeaders = true
	st.header = md
	for _, hdrs := range st.headersTargets {
		*hdrs = md
	}
	close(st.gotHeadersSignal)
}

func decodeError(err error) *ProtocolError {
	code := codes.Internal
	if errors.Is(err, codec.ErrCompressed) {
		code = codes.Unimplemented
	}
	return &ProtocolError{Code: code, Reason: err.Error()}
}

// MessageStream is the lazy response sequence of a server-streaming or
// bidi call. It is single-pass: Recv yields messages in wire order and
// ends with io.EOF on normal completion, or with the terminal error.
// Messages already received are never retracted by a later failure.
type MessageStream struct {
	st *callStream
}

// Recv decodes the next response message into m.
func (s *MessageStream) Recv(m any) error {
	return s.st.RecvMsg(m)
}

// Header returns the response metadata, captured once when response
// headers arrived and shared by every message of the sequence. It blocks
// until headers are available or the call ends.
func (s *MessageStream) Header() (metadata.MD, error) {
	return s.st.Header()
}

// Trailer returns the trailing metadata, if any. Only valid after the
// sequence has ended.
func (s *MessageStream) Trailer() metadata.MD {
	return s.st.Trailer()
}

// Close releases the call. Closing an already-ended stream is a no-op.
func (s *MessageStream) Close() error {
	s.st.finish(status.Error(codes.Canceled, "stream closed by caller"), nil)
	return nil
}
