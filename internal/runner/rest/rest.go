// Package rest speaks the JSON admin protocol served under /management/domain.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/runner"
	"github.com/tpodg/fleetadmin/internal/server"
	"github.com/tpodg/fleetadmin/internal/strutil"
)

const (
	pathPrefix     = "/management/domain/"
	requestedBy    = "fleetadmin"
	propertyPrefix = "property."
	maxMessageLen  = 512
)

// Encoding selects how a POST body is built.
type Encoding int

const (
	Form Encoding = iota
	Multipart
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// Runner executes one operation over the REST protocol.
type Runner struct {
	Method string
	// Path is relative to /management/domain and may contain {target},
	// {name}, or {<param>} placeholders.
	Path     string
	Encoding Encoding
	Kind     result.Kind
}

var _ runner.Runner = (*Runner)(nil)

func Get(path string, kind result.Kind) *Runner {
	return &Runner{Method: http.MethodGet, Path: path, Kind: kind}
}

func Post(path string, kind result.Kind) *Runner {
	return &Runner{Method: http.MethodPost, Path: path, Kind: kind}
}

// PostMultipart sends the body as multipart/form-data.
func PostMultipart(path string, kind result.Kind) *Runner {
	return &Runner{Method: http.MethodPost, Path: path, Encoding: Multipart, Kind: kind}
}

func Delete(path string, kind result.Kind) *Runner {
	return &Runner{Method: http.MethodDelete, Path: path, Kind: kind}
}

func (r *Runner) Execute(ctx context.Context, srv server.Descriptor, cmd command.Command) result.Result {
	req, err := r.buildRequest(srv, cmd)
	if err != nil {
		return result.Failure(err.Error(), err)
	}
	resp, err := runner.Do(ctx, srv, req)
	if err != nil {
		return runner.FailureFromError(err)
	}
	return r.interpret(resp)
}

func (r *Runner) buildRequest(srv server.Descriptor, cmd command.Command) (runner.Request, error) {
	fields := cmd.Params()
	if cmd.Target() != "" {
		fields["target"] = cmd.Target()
	}
	if cmd.Name() != "" {
		fields["name"] = cmd.Name()
	}

	var missing []string
	path := placeholder.ReplaceAllStringFunc(r.Path, func(m string) string {
		key := m[1 : len(m)-1]
		value, ok := fields[key]
		if !ok || value == "" {
			missing = append(missing, key)
			return m
		}
		delete(fields, key)
		return url.PathEscape(value)
	})
	if len(missing) > 0 {
		return runner.Request{}, fmt.Errorf("%s route %q needs %s", cmd.Operation(), r.Path, strings.Join(missing, ", "))
	}

	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	for _, p := range cmd.Properties() {
		values.Add(propertyPrefix+p.Key, p.Value)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req := runner.Request{
		Method: method,
		URL:    srv.BaseURL() + pathPrefix + strings.TrimPrefix(path, "/"),
		Header: http.Header{
			"Accept":         []string{"application/json"},
			"X-Requested-By": []string{requestedBy},
		},
	}

	if method != http.MethodPost && method != http.MethodPut {
		if len(values) > 0 {
			req.URL += "?" + values.Encode()
		}
		return req, nil
	}

	switch r.Encoding {
	case Multipart:
		body, contentType, err := encodeMultipart(values)
		if err != nil {
			return runner.Request{}, err
		}
		req.Body = body
		req.ContentType = contentType
	default:
		req.Body = []byte(values.Encode())
		req.ContentType = "application/x-www-form-urlencoded"
	}
	return req, nil
}

func encodeMultipart(values url.Values) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range values[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("write multipart field %s: %w", k, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (r *Runner) interpret(resp *runner.Response) result.Result {
	switch {
	case runner.IsHTTPFailure(resp.StatusCode):
		return httpFailure(resp)
	case !runner.IsHTTPSuccess(resp.StatusCode):
		return result.Unknown(runner.StatusText(resp))
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return result.Unknown("empty response")
	}

	env, err := parseEnvelope(resp.Body)
	if err != nil {
		return result.Failure("", &runner.DecodeError{Err: err})
	}
	status, err := env.verdict()
	if err != nil {
		return result.Failure("", &runner.DecodeError{Err: err})
	}

	msg := env.message()
	if status == result.StatusError {
		return result.Failure(msg, nil)
	}
	value, err := decodePayload(r.Kind, env.Payload)
	if err != nil {
		return result.Failure("", &runner.DecodeError{Err: err})
	}
	kind := r.Kind
	if kind == "" {
		kind = result.KindNone
	}
	return result.Success(kind, value, msg)
}

func httpFailure(resp *runner.Response) result.Result {
	statusErr := &runner.StatusError{Code: resp.StatusCode, Status: runner.StatusText(resp)}
	if env, err := parseEnvelope(resp.Body); err == nil {
		if msg := env.message(); msg != "" {
			return result.Failure(msg, statusErr)
		}
	}
	if text := strings.TrimSpace(string(resp.Body)); text != "" {
		return result.Failure(strutil.Truncate(text, maxMessageLen), statusErr)
	}
	return result.Failure(statusErr.Status, statusErr)
}
