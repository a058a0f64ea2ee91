// Package dispatch is the single entry point for executing administrative
// commands against a server.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/metrics"
	"github.com/tpodg/fleetadmin/internal/registry"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/runner"
	"github.com/tpodg/fleetadmin/internal/server"
	"github.com/tpodg/fleetadmin/internal/tracing"
)

// DefaultTimeout bounds one dispatch unless overridden.
const DefaultTimeout = 2 * time.Minute

const tracerName = "github.com/tpodg/fleetadmin/internal/dispatch"

// ErrInvalidServer is returned for descriptors that cannot be contacted at all.
var ErrInvalidServer = errors.New("invalid server descriptor")

// Dispatcher resolves a runner for each command and executes it.
// It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	logger   *slog.Logger
	timeout  time.Duration
	tracer   trace.Tracer
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTimeout sets the default per-call timeout. Zero or negative disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// New creates a Dispatcher over reg. A nil registry uses registry.Default().
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	if reg == nil {
		reg = registry.Default()
	}
	d := &Dispatcher{
		registry: reg,
		logger:   slog.New(slog.DiscardHandler),
		timeout:  DefaultTimeout,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type callConfig struct {
	timeout time.Duration
}

// CallOption adjusts a single Dispatch call.
type CallOption func(*callConfig)

// Timeout overrides the dispatcher timeout for one call.
func Timeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// Dispatch validates cmd, resolves the runner for the server's protocol
// generation, and runs it once under the call deadline.
//
// The returned error is non-nil only when the command was rejected before any
// network I/O: a *command.ValidationError, a *registry.UnsupportedCommandError,
// or ErrInvalidServer. Every execution outcome, including transport failures
// and timeouts, is reported through the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, srv server.Descriptor, cmd command.Command, opts ...CallOption) (result.Result, error) {
	call := callConfig{timeout: d.timeout}
	for _, opt := range opts {
		opt(&call)
	}

	requestID := uuid.NewString()
	gen := srv.Generation()
	logger := d.logger.With(
		"server", srv.ID(),
		"operation", cmd.Operation(),
		"protocol", string(gen),
		"request_id", requestID,
	)

	if err := cmd.Validate(); err != nil {
		metrics.Rejected.WithLabelValues("invalid").Inc()
		logger.Warn("Rejected invalid command", "error", err)
		return result.Result{}, err
	}
	if err := srv.Validate(); err != nil {
		metrics.Rejected.WithLabelValues("server").Inc()
		logger.Warn("Rejected invalid server", "error", err)
		return result.Result{}, fmt.Errorf("%w: %w", ErrInvalidServer, err)
	}
	rn, err := d.registry.Resolve(cmd.Operation(), gen)
	if err != nil {
		metrics.Rejected.WithLabelValues("unsupported").Inc()
		logger.Warn("Rejected unsupported command", "error", err)
		return result.Result{}, err
	}

	ctx, span := d.tracer.Start(ctx, "dispatch "+cmd.Operation(), trace.WithAttributes(
		attribute.String("fleetadmin.server", srv.ID()),
		attribute.String("fleetadmin.operation", cmd.Operation()),
		attribute.String("fleetadmin.protocol", string(gen)),
		attribute.String("fleetadmin.request_id", requestID),
	))
	defer span.End()
	if traceID := tracing.TraceID(ctx); traceID != "" {
		logger = logger.With("trace_id", traceID)
	}

	if call.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.timeout)
		defer cancel()
	}
	ctx = runner.WithRequestID(ctx, requestID)

	logger.Debug("Dispatching command", "target", cmd.Target(), "name", cmd.Name(), "timeout", call.timeout)
	start := time.Now()
	res := rn.Execute(ctx, srv, cmd)
	elapsed := time.Since(start)

	metrics.DispatchDuration.WithLabelValues(cmd.Operation(), string(gen)).Observe(elapsed.Seconds())
	metrics.DispatchTotal.WithLabelValues(cmd.Operation(), string(gen), res.Status.String()).Inc()
	span.SetAttributes(attribute.String("fleetadmin.status", res.Status.String()))

	switch res.Status {
	case result.StatusSuccess:
		logger.Info("Command succeeded", "status", res.Status.String(), "duration", elapsed)
	case result.StatusError:
		span.SetStatus(codes.Error, res.Message)
		if res.Err != nil {
			span.RecordError(res.Err)
			if reason := failureReason(res.Err); reason != "" {
				metrics.TransportFailures.WithLabelValues(cmd.Operation(), reason).Inc()
			}
		}
		logger.Warn("Command failed", "status", res.Status.String(), "error", res.Message, "duration", elapsed)
	default:
		logger.Warn("Command outcome unknown", "status", res.Status.String(), "message", res.Message, "duration", elapsed)
	}

	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, runner.ErrTimeout):
		return "timeout"
	case errors.Is(err, runner.ErrTransport):
		return "transport"
	case errors.Is(err, runner.ErrCanceled):
		return "canceled"
	default:
		return ""
	}
}
