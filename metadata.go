package grpcweb

import (
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// metadataFromHeader converts HTTP headers into gRPC metadata, lowercasing
// keys the way metadata.New does. Returns nil for an empty header set.
func metadataFromHeader(h http.Header) metadata.MD {
	if len(h) == 0 {
		return nil
	}
	md := make(metadata.MD, len(h))
	for k, vs := range h {
		md[strings.ToLower(k)] = append([]string(nil), vs...)
	}
	return md
}

// headerFromMetadata converts outgoing gRPC metadata into HTTP headers.
func headerFromMetadata(md metadata.MD) http.Header {
	h := make(http.Header, len(md)+1)
	for k, vs := range md {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

// statusFromHeaders interprets a grpc-status (and grpc-message) pair
// carried in HTTP headers or trailers. Absent or "0" means OK and yields
// nil.
func statusFromHeaders(h http.Header) error {
	v := h.Get("Grpc-Status")
	if v == "" {
		return nil
	}
	code, err := strconv.Atoi(v)
	if err != nil {
		return protocolErrorf(codes.Internal, "malformed grpc-status value %q", v)
	}
	if codes.Code(code) == codes.OK {
		return nil
	}
	return status.Error(codes.Code(code), h.Get("Grpc-Message"))
}
