package cli

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/config"
	"github.com/tpodg/fleetadmin/internal/dispatch"
	"github.com/tpodg/fleetadmin/internal/plan"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/server"
)

// report is one printed line of output: the outcome of a command on a server.
type report struct {
	Server    string        `json:"server" yaml:"server"`
	Operation string        `json:"operation" yaml:"operation"`
	Status    result.Status `json:"status" yaml:"status"`
	Kind      result.Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Value     any           `json:"value,omitempty" yaml:"value,omitempty"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty"`
}

func newReport(srv, op string, res result.Result) report {
	return report{
		Server:    srv,
		Operation: op,
		Status:    res.Status,
		Kind:      res.Kind,
		Value:     res.Value,
		Message:   res.Message,
	}
}

// selectServers returns the descriptors for names, or every configured server when names is empty.
func selectServers(cfg *config.Config, names []string) ([]server.Descriptor, error) {
	entries := cfg.Servers
	if len(names) > 0 {
		entries = make([]config.ServerConfig, 0, len(names))
		for _, name := range names {
			s, ok := cfg.Server(name)
			if !ok {
				return nil, fmt.Errorf("unknown server %q", name)
			}
			entries = append(entries, s)
		}
	}

	out := make([]server.Descriptor, 0, len(entries))
	for _, s := range entries {
		desc, err := s.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

// runFleet dispatches cmd to every server with at most limit calls in flight.
// Rejections are reported as ERROR for that server so one unsupported pairing
// does not hide the others.
func runFleet(ctx context.Context, d plan.Dispatcher, servers []server.Descriptor, cmd command.Command, limit int, opts ...dispatch.CallOption) ([]report, result.Status) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	tracker := result.NewTracker()
	reports := make([]report, len(servers))
	for i, srv := range servers {
		g.Go(func() error {
			res, err := d.Dispatch(ctx, srv, cmd, opts...)
			if err != nil {
				res = result.Failure(err.Error(), err)
			}
			tracker.Signal(srv.ID(), res.Status)
			reports[i] = newReport(srv.ID(), cmd.Operation(), res)
			return nil
		})
	}
	_ = g.Wait()
	return reports, tracker.Overall()
}
