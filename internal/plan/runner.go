package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/dispatch"
	"github.com/tpodg/fleetadmin/internal/metrics"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/runner"
	"github.com/tpodg/fleetadmin/internal/server"
)

// ErrStepFailed is returned by Run when a command reports ERROR.
var ErrStepFailed = errors.New("command failed")

// Dispatcher executes one command against one server.
type Dispatcher interface {
	Dispatch(ctx context.Context, srv server.Descriptor, cmd command.Command, opts ...dispatch.CallOption) (result.Result, error)
}

// Runner is responsible for executing a command list on a server.
type Runner struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewRunner creates a new Runner with the given dispatcher and logger.
func NewRunner(d Dispatcher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		dispatcher: d,
		logger:     logger,
	}
}

// Run executes cmds on srv in order and returns the result of every command
// that ran. It stops at the first rejected command or ERROR result; UNKNOWN
// results are logged and the run continues.
func (r *Runner) Run(ctx context.Context, srv server.Descriptor, cmds ...command.Command) ([]result.Result, error) {
	results := make([]result.Result, 0, len(cmds))
	for i, cmd := range cmds {
		step := i + 1
		r.logger.Info("Processing command", "step", step, "command", cmd.String(), "server", srv.ID())

		res, err := r.dispatcher.Dispatch(ctx, srv, cmd)
		if err != nil {
			return results, fmt.Errorf("failed to dispatch step %d (%s): %w", step, cmd.Operation(), err)
		}
		results = append(results, res)

		switch res.Status {
		case result.StatusError:
			return results, fmt.Errorf("%w: step %d (%s): %s", ErrStepFailed, step, cmd.Operation(), res.Message)
		case result.StatusUnknown:
			r.logger.Warn("Command outcome unknown", "step", step, "command", cmd.Operation(), "server", srv.ID(), "message", res.Message)
		default:
			r.logger.Info("Command applied successfully", "step", step, "command", cmd.Operation(), "server", srv.ID())
		}
	}
	return results, nil
}

// Retrier re-dispatches commands whose ERROR result carries a transport or
// timeout error, with exponential backoff. Body-level failures are final.
type Retrier struct {
	Dispatcher      Dispatcher
	Retries         int
	InitialInterval time.Duration
	Logger          *slog.Logger
}

var _ Dispatcher = (*Retrier)(nil)

func (r *Retrier) Dispatch(ctx context.Context, srv server.Descriptor, cmd command.Command, opts ...dispatch.CallOption) (result.Result, error) {
	if r.Retries <= 0 {
		return r.Dispatcher.Dispatch(ctx, srv, cmd, opts...)
	}

	var (
		res         result.Result
		rejectedErr error
	)
	operation := func() error {
		out, err := r.Dispatcher.Dispatch(ctx, srv, cmd, opts...)
		if err != nil {
			rejectedErr = err
			return backoff.Permanent(err)
		}
		res = out
		if out.Status == result.StatusError && runner.Retryable(out.Err) {
			return out.Err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		metrics.Retries.WithLabelValues(cmd.Operation()).Inc()
		if r.Logger != nil {
			r.Logger.Warn("Retrying command", "server", srv.ID(), "operation", cmd.Operation(), "error", err, "wait", wait)
		}
	}

	_ = backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(r.backOff(), uint64(r.Retries)), ctx), notify)
	if rejectedErr != nil {
		return result.Result{}, rejectedErr
	}
	return res, nil
}

func (r *Retrier) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	b.MaxElapsedTime = 0
	return b
}
