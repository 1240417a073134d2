// Package grpcweb is a client for the gRPC-Web protocol: it frames
// serialized messages into the length-delimited wire format, carries them
// over a pluggable HTTP transport, and exposes the four RPC shapes (unary,
// client-streaming, server-streaming, bidi) both as explicit call methods
// and as a [grpc.ClientConnInterface] usable with generated stubs.
//
// The channel handles framing, per-call cancellation (caller context raced
// against an optional deadline), and response metadata capture. Retries,
// load balancing, authentication, and TLS policy belong to the transport,
// not this package. Compressed frames are recognized but not supported:
// decoding one fails explicitly rather than desynchronizing the stream.
package grpcweb
