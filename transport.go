package grpcweb

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"

	"golang.org/x/net/http2"
)

// contentType is sent on every exchange and identifies the framing used in
// both request and response bodies.
const contentType = "application/grpc"

// Request describes one HTTP exchange to be performed by a Transport. The
// body is a stream: for client-streaming and bidi calls it stays open while
// the caller is still producing messages.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   io.Reader
}

// Response is the transport's answer to a Request. Header must be complete
// when RoundTrip returns; Body may still be streaming. Trailer, when
// non-nil, reports the HTTP trailers and is only valid once Body has been
// read to EOF.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Trailer    func() http.Header
}

// Transport performs a single HTTP exchange. Implementations must honor
// cancellation of ctx by aborting the exchange, including any in-flight
// request or response body.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// RoundTrip calls f.
func (f TransportFunc) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport is a Transport backed by net/http. The zero value uses
// http.DefaultClient.
//
// Note that an HTTP/1.1 client only flushes the request body once it is
// closed, so bidirectional calls require an HTTP/2 client; see
// NewH2CTransport for one that works without TLS.
type HTTPTransport struct {
	Client *http.Client
}

// NewH2CTransport returns an HTTPTransport speaking HTTP/2 over cleartext
// TCP, which supports full-duplex request/response bodies.
func NewH2CTransport() *HTTPTransport {
	return &HTTPTransport{
		Client: &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		},
	}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		hreq.Header[k] = vs
	}
	hresp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header,
		Body:       hresp.Body,
		Trailer:    func() http.Header { return hresp.Trailer },
	}, nil
}
