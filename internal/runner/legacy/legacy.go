// Package legacy speaks the query-string admin protocol served under /__asadmin.
package legacy

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/runner"
	"github.com/tpodg/fleetadmin/internal/server"
	"github.com/tpodg/fleetadmin/internal/strutil"
)

const (
	pathPrefix = "/__asadmin/"
	userAgent  = "fleetadmin-admin"

	targetParam   = "target"
	nameParam     = "DEFAULT"
	propertyParam = "property"

	// maxMessageLen bounds how much of an unstructured error body lands in a message.
	maxMessageLen = 512
)

// Runner executes commands over the legacy protocol.
type Runner struct {
	// Kind selects how the reply payload is decoded.
	Kind result.Kind
	// BodyProperties sends properties as "key=value" lines in a POST body
	// instead of the property query parameter.
	BodyProperties bool
}

var _ runner.Runner = (*Runner)(nil)

func New(kind result.Kind) *Runner {
	return &Runner{Kind: kind}
}

// NewBodyProperties returns a runner for property mutation commands.
func NewBodyProperties(kind result.Kind) *Runner {
	return &Runner{Kind: kind, BodyProperties: true}
}

func (r *Runner) Execute(ctx context.Context, srv server.Descriptor, cmd command.Command) result.Result {
	req := r.buildRequest(srv, cmd)
	resp, err := runner.Do(ctx, srv, req)
	if err != nil {
		return runner.FailureFromError(err)
	}
	return r.interpret(resp)
}

func (r *Runner) buildRequest(srv server.Descriptor, cmd command.Command) runner.Request {
	req := runner.Request{
		Method: http.MethodGet,
		URL:    srv.BaseURL() + pathPrefix + url.PathEscape(cmd.Operation()),
		Header: http.Header{
			"User-Agent": []string{userAgent},
			"Accept":     []string{"text/plain"},
		},
	}

	query := encodeQuery(cmd, !r.BodyProperties)
	if query != "" {
		req.URL += "?" + query
	}

	if r.BodyProperties {
		req.Method = http.MethodPost
		req.ContentType = "text/plain; charset=utf-8"
		var body bytes.Buffer
		for _, p := range cmd.Properties() {
			// Written verbatim; the receiving side splits on the first '='.
			body.WriteString(p.Key)
			body.WriteByte('=')
			body.WriteString(p.Value)
			body.WriteByte('\n')
		}
		req.Body = body.Bytes()
	}
	return req
}

// encodeQuery keeps target and DEFAULT first, then the remaining params in key order.
func encodeQuery(cmd command.Command, withProperties bool) string {
	var parts []string
	add := func(key, value string) {
		parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}

	if cmd.Target() != "" {
		add(targetParam, cmd.Target())
	}
	if cmd.Name() != "" {
		add(nameParam, cmd.Name())
	}

	params := cmd.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, params[k])
	}

	if withProperties {
		if props := cmd.Properties(); len(props) > 0 {
			pairs := make([]string, 0, len(props))
			for _, p := range props {
				pairs = append(pairs, p.Key+"="+p.Value)
			}
			add(propertyParam, strings.Join(pairs, ":"))
		}
	}
	return strings.Join(parts, "&")
}

func (r *Runner) interpret(resp *runner.Response) result.Result {
	body := string(resp.Body)

	switch {
	case runner.IsHTTPFailure(resp.StatusCode):
		return httpFailure(resp, body)
	case !runner.IsHTTPSuccess(resp.StatusCode):
		return result.Unknown(runner.StatusText(resp))
	}

	if strings.TrimSpace(body) == "" {
		return result.Unknown("empty response")
	}

	if !isTagged(body) {
		value, err := decodePayload(r.Kind, strutil.SplitLines(body))
		if err != nil {
			return result.Failure("", &runner.DecodeError{Err: err})
		}
		return result.Success(r.kind(), value, "")
	}

	m, err := parseManifest(body)
	if err != nil {
		return result.Failure("", &runner.DecodeError{Err: err})
	}
	status, err := m.verdict()
	if err != nil {
		return result.Failure("", &runner.DecodeError{Err: err})
	}

	msg := m.message()
	if status == result.StatusError {
		return result.Failure(msg, nil)
	}
	value, err := decodePayload(r.Kind, m.payload)
	if err != nil {
		return result.Failure("", &runner.DecodeError{Err: err})
	}
	return result.Success(r.kind(), value, msg)
}

func (r *Runner) kind() result.Kind {
	if r.Kind == "" {
		return result.KindNone
	}
	return r.Kind
}

func httpFailure(resp *runner.Response, body string) result.Result {
	statusErr := &runner.StatusError{Code: resp.StatusCode, Status: runner.StatusText(resp)}
	if isTagged(body) {
		if m, err := parseManifest(body); err == nil {
			if msg := m.message(); msg != "" {
				return result.Failure(msg, statusErr)
			}
		}
	}
	if text := strings.TrimSpace(body); text != "" {
		return result.Failure(strutil.Truncate(text, maxMessageLen), statusErr)
	}
	return result.Failure(statusErr.Status, statusErr)
}
