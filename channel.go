package grpcweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fullstorydev/grpchan"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	"github.com/jhump/grpcweb/signals"
)

// Codec marshals request messages to bytes and unmarshals response bytes
// into messages. The channel never inspects messages beyond these two
// operations.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type protoCodec struct{}

func (protoCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("message of type %T does not implement proto.Message", v)
	}
	return proto.Marshal(m)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("message of type %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}

// Channel issues gRPC-Web calls over a Transport. It implements
// [grpc.ClientConnInterface], so it can be used to create stubs and issue
// RPCs, all carried over HTTP exchanges against the given base URL.
//
// A Channel is safe for concurrent use: every call owns its cancellation
// scope, deadline timer, and decode state.
type Channel struct {
	transport Transport
	baseURL   string
	codec     Codec
	logger    *zap.Logger
}

var (
	_ grpc.ClientConnInterface = (*Channel)(nil)
	_ grpchan.Channel          = (*Channel)(nil)
)

// NewChannel creates a channel issuing calls against baseURL through the
// given transport. A nil transport uses an HTTPTransport backed by
// http.DefaultClient.
func NewChannel(baseURL string, transport Transport, opts ...ChannelOption) *Channel {
	var co channelOpts
	for _, opt := range opts {
		opt.apply(&co)
	}
	if co.codec == nil {
		co.codec = protoCodec{}
	}
	if co.logger == nil {
		co.logger = zap.NewNop()
	}
	if transport == nil {
		transport = &HTTPTransport{}
	}
	return &Channel{
		transport: transport,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		codec:     co.codec,
		logger:    co.logger,
	}
}

// UnaryCall sends req as the call's only message and decodes the call's
// only response message into resp. The returned metadata is the response
// header set paired with the reply. A response carrying zero messages or
// more than one is a protocol violation, surfaced as an error.
func (c *Channel) UnaryCall(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) (metadata.MD, error) {
	st, err := c.newStream(ctx, false, false, method, opts...)
	if err != nil {
		return nil, err
	}
	if err := st.SendMsg(req); err != nil {
		st.finish(err, nil)
		return nil, err
	}
	if err := st.CloseSend(); err != nil {
		st.finish(err, nil)
		return nil, err
	}
	if err := st.RecvMsg(resp); err != nil {
		st.finish(err, nil)
		return nil, err
	}
	return st.Header()
}

// ClientStreamingCall drains src into the request body, one frame per
// message, then decodes the call's only response message into resp.
func (c *Channel) ClientStreamingCall(ctx context.Context, method string, src MessageSource, resp any, opts ...grpc.CallOption) (metadata.MD, error) {
	st, err := c.newStream(ctx, true, false, method, opts...)
	if err != nil {
		return nil, err
	}
	st.pumpRequests(src)
	if err := st.RecvMsg(resp); err != nil {
		st.finish(err, nil)
		return nil, err
	}
	return st.Header()
}

// ServerStreamingCall sends req as the call's only message and returns the
// response sequence. The sequence is lazy and single-pass; the caller must
// drain it or Close it to release the call.
func (c *Channel) ServerStreamingCall(ctx context.Context, method string, req any, opts ...grpc.CallOption) (*MessageStream, error) {
	st, err := c.newStream(ctx, false, true, method, opts...)
	if err != nil {
		return nil, err
	}
	if err := st.SendMsg(req); err != nil {
		st.finish(err, nil)
		return nil, err
	}
	if err := st.CloseSend(); err != nil {
		st.finish(err, nil)
		return nil, err
	}
	return &MessageStream{st: st}, nil
}

// BidiStreamingCall bridges src into the request body and returns the
// response sequence. Request pumping and response reading proceed
// concurrently: responses are readable before src is exhausted.
func (c *Channel) BidiStreamingCall(ctx context.Context, method string, src MessageSource, opts ...grpc.CallOption) (*MessageStream, error) {
	st, err := c.newStream(ctx, true, true, method, opts...)
	if err != nil {
		return nil, err
	}
	go st.pumpRequests(src)
	return &MessageStream{st: st}, nil
}

// Invoke satisfies grpc.ClientConnInterface for unary RPCs.
func (c *Channel) Invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	_, err := c.UnaryCall(ctx, method, req, resp, opts...)
	return err
}

// NewStream satisfies grpc.ClientConnInterface for streaming RPCs. The
// returned stream is caller-driven: Send produces request messages and
// CloseSend ends the request side.
func (c *Channel) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return c.newStream(ctx, desc.ClientStreams, desc.ServerStreams, method, opts...)
}

func (c *Channel) newStream(ctx context.Context, clientStreams, serverStreams bool, method string, opts ...grpc.CallOption) (*callStream, error) {
	var hdrs, tlrs []*metadata.MD
	var deadline *deadlineCallOption
	for _, opt := range opts {
		switch opt := opt.(type) {
		case grpc.HeaderCallOption:
			hdrs = append(hdrs, opt.HeaderAddr)
		case grpc.TrailerCallOption:
			tlrs = append(tlrs, opt.TrailerAddr)
		case *deadlineCallOption:
			deadline = opt
		}
	}

	// cancellation state is allocated per call, never on the channel, so
	// concurrent calls cannot cancel or outrace each other's deadlines
	parents := []context.Context{ctx}
	stopDeadline := func() {}
	if deadline != nil {
		// the deadline only aborts when the timer actually fires;
		// releasing it must not itself cancel the call
		dctx, dcancel := context.WithCancelCause(context.Background())
		timer := time.AfterFunc(deadline.remaining(), func() {
			dcancel(context.DeadlineExceeded)
		})
		parents = append(parents, dctx)
		stopDeadline = func() { timer.Stop() }
	}
	effCtx, cancel := signals.Race(parents...)

	pr, pw := io.Pipe()
	st := &callStream{
		ctx:              effCtx,
		cancel:           cancel,
		stopDeadline:     stopDeadline,
		ch:               c,
		method:           method,
		isClientStream:   clientStreams,
		isServerStream:   serverStreams,
		pw:               pw,
		frames:           make(chan []byte, 1),
		gotHeadersSignal: make(chan struct{}),
		doneSignal:       make(chan struct{}),
		headersTargets:   hdrs,
		trailersTargets:  tlrs,
	}

	md, _ := metadata.FromOutgoingContext(ctx)
	header := headerFromMetadata(md)
	header.Set("Content-Type", contentType)
	req := &Request{
		URL:    c.baseURL + method,
		Method: http.MethodPost,
		Header: header,
		Body:   pr,
	}

	go st.exchange(req)
	go func() {
		// if the effective signal fires, make sure the call is torn down
		select {
		case <-st.ctx.Done():
			st.finish(context.Cause(st.ctx), nil)
		case <-st.doneSignal:
		}
	}()
	return st, nil
}
