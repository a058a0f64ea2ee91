package runner

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpodg/fleetadmin/internal/server"
)

func descriptor(t *testing.T, rawURL string) server.Descriptor {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return server.Descriptor{Host: u.Hostname(), Port: port}
}

func TestDoSendsRequestIDAndContentType(t *testing.T) {
	var gotID, gotType string
	var gotClose bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(RequestIDHeader)
		gotType = r.Header.Get("Content-Type")
		gotClose = r.Close
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	ctx := WithRequestID(context.Background(), "abc")
	resp, err := Do(ctx, descriptor(t, ts.URL), Request{
		Method:      http.MethodPost,
		URL:         ts.URL + "/x",
		Body:        []byte("a=b"),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, "abc", gotID)
	assert.Equal(t, "text/plain", gotType)
	assert.True(t, gotClose)
}

func TestDoDoesNotFollowRedirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			http.Redirect(w, r, "/target", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("followed"))
	}))
	defer ts.Close()

	resp, err := Do(context.Background(), descriptor(t, ts.URL), Request{Method: http.MethodGet, URL: ts.URL + "/moved"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "302 Found", StatusText(resp))
}

func TestDoBodyCap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := []byte(strings.Repeat("x", 1<<20))
		for i := 0; i < 9; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	_, err := Do(context.Background(), descriptor(t, ts.URL), Request{Method: http.MethodGet, URL: ts.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestDoClassifiesFailures(t *testing.T) {
	t.Run("refused", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		_, err = Do(context.Background(), server.Descriptor{Host: "127.0.0.1"}, Request{Method: http.MethodGet, URL: "http://" + addr})
		var transportErr *TransportError
		require.True(t, errors.As(err, &transportErr), "got %T: %v", err, err)
		assert.True(t, strings.HasPrefix(err.Error(), "connection failed:"))
		assert.True(t, Retryable(err))
	})

	t.Run("deadline", func(t *testing.T) {
		done := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-done:
			case <-r.Context().Done():
			}
		}))
		defer ts.Close()
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := Do(ctx, descriptor(t, ts.URL), Request{Method: http.MethodGet, URL: ts.URL})
		var timeoutErr *TimeoutError
		require.True(t, errors.As(err, &timeoutErr), "got %T: %v", err, err)
		assert.True(t, errors.Is(err, ErrTimeout))
		assert.False(t, errors.Is(err, ErrTransport))
	})

	t.Run("canceled by caller", func(t *testing.T) {
		started := make(chan struct{})
		done := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			select {
			case <-done:
			case <-r.Context().Done():
			}
		}))
		defer ts.Close()
		defer close(done)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()
		_, err := Do(ctx, descriptor(t, ts.URL), Request{Method: http.MethodGet, URL: ts.URL})
		var canceledErr *CanceledError
		require.True(t, errors.As(err, &canceledErr), "got %T: %v", err, err)
		assert.True(t, errors.Is(err, ErrCanceled))
		assert.False(t, errors.Is(err, ErrTimeout))
		assert.False(t, errors.Is(err, ErrTransport))
		assert.False(t, Retryable(err))
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Do(context.Background(), server.Descriptor{}, Request{Method: "BAD METHOD", URL: "http://x"})
		assert.True(t, errors.Is(err, ErrTransport))
		assert.False(t, Retryable(&DecodeError{}))
	})
}
