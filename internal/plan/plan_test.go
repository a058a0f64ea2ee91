package plan_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/command/catalog"
	"github.com/tpodg/fleetadmin/internal/config"
	"github.com/tpodg/fleetadmin/internal/dispatch"
	"github.com/tpodg/fleetadmin/internal/plan"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/runner"
	"github.com/tpodg/fleetadmin/internal/server"
)

type mockDispatcher struct {
	mu      sync.Mutex
	calls   []string
	results []result.Result
	err     error
}

func (m *mockDispatcher) Dispatch(_ context.Context, _ server.Descriptor, cmd command.Command, _ ...dispatch.CallOption) (result.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd.Operation())
	if m.err != nil {
		return result.Result{}, m.err
	}
	if len(m.results) == 0 {
		return result.Success(result.KindNone, nil, ""), nil
	}
	res := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return res, nil
}

func (m *mockDispatcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var srv = server.Descriptor{Name: "das", Host: "127.0.0.1"}

func TestBuild(t *testing.T) {
	defaults := map[string]any{
		"deploy": map[string]any{
			"properties": map[string]any{"keepSessions": "true", "preserveAppScopedResources": "false"},
		},
	}

	t.Run("merges defaults under args", func(t *testing.T) {
		cmds, err := plan.Build(defaults, []config.CommandConfig{
			{Op: "deploy", Args: map[string]any{
				"target": "c1", "name": "shop", "path": "/srv/shop.war",
				"properties": map[string]any{"preserveAppScopedResources": "true"},
			}},
			{Op: "enable", Args: map[string]any{"target": "c1", "name": "shop"}},
		})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if len(cmds) != 2 {
			t.Fatalf("expected 2 commands, got %d", len(cmds))
		}
		got := map[string]string{}
		for _, p := range cmds[0].Properties() {
			got[p.Key] = p.Value
		}
		if got["keepSessions"] != "true" || got["preserveAppScopedResources"] != "true" {
			t.Fatalf("unexpected merged properties: %+v", got)
		}
		if cmds[1].Operation() != catalog.OpEnable {
			t.Fatalf("expected enable, got %s", cmds[1].Operation())
		}
	})

	t.Run("defaults are not mutated", func(t *testing.T) {
		_, err := plan.Build(defaults, []config.CommandConfig{
			{Op: "deploy", Args: map[string]any{"name": "a", "path": "/a.war", "properties": map[string]any{"keepSessions": "false"}}},
		})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		props := defaults["deploy"].(map[string]any)["properties"].(map[string]any)
		if props["keepSessions"] != "true" {
			t.Fatalf("defaults were mutated: %+v", props)
		}
	})

	t.Run("unknown operation names the step", func(t *testing.T) {
		_, err := plan.Build(nil, []config.CommandConfig{
			{Op: "version"},
			{Op: "reboot"},
		})
		if !errors.Is(err, catalog.ErrUnknownOperation) {
			t.Fatalf("expected ErrUnknownOperation, got %v", err)
		}
		if !strings.Contains(err.Error(), "step 2") {
			t.Fatalf("expected step number in %q", err)
		}
	})
}

func TestRunner_Run(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	version, _ := catalog.Version()
	clusters, _ := catalog.StartCluster("c1")
	undeploy, _ := catalog.Undeploy("c1", "shop")

	t.Run("all commands succeed", func(t *testing.T) {
		d := &mockDispatcher{}
		results, err := plan.NewRunner(d, logger).Run(context.Background(), srv, version, clusters, undeploy)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
	})

	t.Run("stops at first error", func(t *testing.T) {
		d := &mockDispatcher{results: []result.Result{
			result.Success(result.KindText, "7.0.2", ""),
			result.Failure("cluster c1 not found", nil),
		}}
		results, err := plan.NewRunner(d, logger).Run(context.Background(), srv, version, clusters, undeploy)
		if !errors.Is(err, plan.ErrStepFailed) {
			t.Fatalf("expected ErrStepFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "cluster c1 not found") {
			t.Fatalf("expected failure message in %q", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if calls := d.Calls(); len(calls) != 2 {
			t.Fatalf("expected 2 dispatches, got %v", calls)
		}
	})

	t.Run("unknown continues", func(t *testing.T) {
		d := &mockDispatcher{results: []result.Result{result.Unknown("empty response"), result.Success(result.KindNone, nil, "")}}
		results, err := plan.NewRunner(d, logger).Run(context.Background(), srv, version, clusters)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Status != result.StatusUnknown || results[1].Status != result.StatusSuccess {
			t.Fatalf("unexpected results: %v", results)
		}
	})

	t.Run("rejection stops the run", func(t *testing.T) {
		rejected := errors.New("unsupported")
		d := &mockDispatcher{err: rejected}
		_, err := plan.NewRunner(d, logger).Run(context.Background(), srv, version, clusters)
		if !errors.Is(err, rejected) {
			t.Fatalf("expected %v, got %v", rejected, err)
		}
	})
}

func TestRetrier(t *testing.T) {
	version, _ := catalog.Version()
	transportErr := &runner.TransportError{Err: fmt.Errorf("dial tcp: connection refused")}

	t.Run("retries transport errors", func(t *testing.T) {
		d := &mockDispatcher{results: []result.Result{
			runner.FailureFromError(transportErr),
			runner.FailureFromError(transportErr),
			result.Success(result.KindText, "7.0.2", ""),
		}}
		r := &plan.Retrier{Dispatcher: d, Retries: 3, InitialInterval: time.Millisecond}
		res, err := r.Dispatch(context.Background(), srv, version)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != result.StatusSuccess {
			t.Fatalf("expected SUCCESS, got %s", res)
		}
		if calls := d.Calls(); len(calls) != 3 {
			t.Fatalf("expected 3 dispatches, got %d", len(calls))
		}
	})

	t.Run("gives up after retries", func(t *testing.T) {
		d := &mockDispatcher{results: []result.Result{runner.FailureFromError(transportErr)}}
		r := &plan.Retrier{Dispatcher: d, Retries: 2, InitialInterval: time.Millisecond}
		res, err := r.Dispatch(context.Background(), srv, version)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !errors.Is(res.Err, runner.ErrTransport) {
			t.Fatalf("expected transport error, got %v", res.Err)
		}
		if calls := d.Calls(); len(calls) != 3 {
			t.Fatalf("expected 3 dispatches, got %d", len(calls))
		}
	})

	t.Run("body failures are final", func(t *testing.T) {
		d := &mockDispatcher{results: []result.Result{result.Failure("application shop not found", nil)}}
		r := &plan.Retrier{Dispatcher: d, Retries: 5, InitialInterval: time.Millisecond}
		res, _ := r.Dispatch(context.Background(), srv, version)
		if res.Status != result.StatusError {
			t.Fatalf("expected ERROR, got %s", res)
		}
		if calls := d.Calls(); len(calls) != 1 {
			t.Fatalf("expected 1 dispatch, got %d", len(calls))
		}
	})

	t.Run("rejections are not retried", func(t *testing.T) {
		d := &mockDispatcher{err: command.ErrInvalidCommand}
		r := &plan.Retrier{Dispatcher: d, Retries: 5, InitialInterval: time.Millisecond}
		_, err := r.Dispatch(context.Background(), srv, version)
		if !errors.Is(err, command.ErrInvalidCommand) {
			t.Fatalf("expected ErrInvalidCommand, got %v", err)
		}
		if calls := d.Calls(); len(calls) != 1 {
			t.Fatalf("expected 1 dispatch, got %d", len(calls))
		}
	})
}
