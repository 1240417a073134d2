package grpcweb

import (
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ChannelOption configures the behavior of a Channel.
type ChannelOption interface {
	apply(*channelOpts)
}

type channelOpts struct {
	codec  Codec
	logger *zap.Logger
}

type channelOptFunc func(*channelOpts)

func (f channelOptFunc) apply(opts *channelOpts) {
	f(opts)
}

// WithCodec returns an option that sets the codec used to marshal request
// messages and unmarshal response messages. The default codec handles
// proto.Message values.
func WithCodec(c Codec) ChannelOption {
	return channelOptFunc(func(opts *channelOpts) {
		opts.codec = c
	})
}

// WithLogger returns an option that sets the logger used for call
// lifecycle events. The default is a no-op logger.
func WithLogger(logger *zap.Logger) ChannelOption {
	return channelOptFunc(func(opts *channelOpts) {
		opts.logger = logger
	})
}

// WithDeadline returns a call option that cancels the call when the given
// absolute time is reached, exactly as if the caller's context had been
// cancelled. A deadline already in the past cancels the call immediately.
//
// The deadline competes with the caller's own context cancellation: the
// call is cancelled by whichever fires first.
func WithDeadline(deadline time.Time) grpc.CallOption {
	return &deadlineCallOption{deadline: deadline}
}

// WithTimeout is WithDeadline with a duration relative to the start of the
// call.
func WithTimeout(timeout time.Duration) grpc.CallOption {
	return &deadlineCallOption{timeout: timeout, relative: true}
}

type deadlineCallOption struct {
	grpc.EmptyCallOption
	deadline time.Time
	timeout  time.Duration
	relative bool
}

func (o *deadlineCallOption) remaining() time.Duration {
	d := o.timeout
	if !o.relative {
		d = time.Until(o.deadline)
	}
	if d < 0 {
		d = 0
	}
	return d
}
