package runner

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/server"
)

// Runner executes one command against one server using one wire protocol.
// Execute makes a single attempt and reports every failure as an ERROR Result.
type Runner interface {
	Execute(ctx context.Context, srv server.Descriptor, cmd command.Command) result.Result
}

// MaxBodySize caps how much of a response body is read.
const MaxBodySize = 8 << 20

const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID attaches a correlation id that Do sends as X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Request is one HTTP exchange with an admin endpoint.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Body        []byte
	ContentType string
}

// Response is the fully read reply.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Do performs req against srv on a dedicated connection that is closed before
// it returns. Errors are *TimeoutError or *TransportError.
func Do(ctx context.Context, srv server.Descriptor, req Request) (*Response, error) {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: srv.InsecureSkipVerify},
	}
	if srv.Tunnel != nil {
		transport.DialContext = srv.Tunnel.DialContext
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if srv.User != "" {
		httpReq.SetBasicAuth(srv.User, srv.Password)
	}
	if id := RequestID(ctx); id != "" {
		httpReq.Header.Set(RequestIDHeader, id)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("read response body: %w", err))
	}
	if len(data) > MaxBodySize {
		return nil, &TransportError{Err: fmt.Errorf("response body exceeds %d bytes", MaxBodySize)}
	}

	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &CanceledError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &TransportError{Err: err}
}

// FailureFromError converts an exchange error into an ERROR Result.
func FailureFromError(err error) result.Result {
	return result.Failure(err.Error(), err)
}

// StatusText returns a short description for an HTTP status line.
func StatusText(resp *Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return fmt.Sprintf("%d %s", resp.StatusCode, text)
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

// IsHTTPFailure reports 4xx and 5xx codes.
func IsHTTPFailure(code int) bool {
	return code >= 400
}

// IsHTTPSuccess reports 2xx codes.
func IsHTTPSuccess(code int) bool {
	return code >= 200 && code < 300
}
