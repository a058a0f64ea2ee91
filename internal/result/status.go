package result

import (
	"fmt"
	"strings"
	"sync"
)

// Status is the outcome category of one administrative call.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// priority is independent of declaration order.
var priority = map[Status]int{
	StatusUnknown: 0,
	StatusSuccess: 1,
	StatusError:   2,
}

// Priority returns the aggregation weight of s. Unrecognised values weigh as StatusUnknown.
func (s Status) Priority() int {
	return priority[s]
}

func (s Status) String() string {
	if s == "" {
		return string(StatusUnknown)
	}
	return string(s)
}

// Merge returns whichever of a and b has the higher priority.
func Merge(a, b Status) Status {
	if b.Priority() > a.Priority() {
		return b
	}
	if a.Priority() == 0 {
		return StatusUnknown
	}
	return a
}

// Aggregate folds signals starting from StatusUnknown. Order does not matter.
func Aggregate(signals ...Status) Status {
	overall := StatusUnknown
	for _, s := range signals {
		overall = Merge(overall, s)
	}
	return overall
}

// ParseExitCode maps a wire exit-code tag to a Status.
func ParseExitCode(tag string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "SUCCESS", "WARNING":
		return StatusSuccess, nil
	case "FAILURE", "ERROR":
		return StatusError, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown exit code %q", tag)
	}
}

// Tracker accumulates status signals from independent channels.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	overall  Status
	channels map[string]Status
}

func NewTracker() *Tracker {
	return &Tracker{overall: StatusUnknown, channels: make(map[string]Status)}
}

// Signal records status for channel and folds it into the overall verdict.
func (t *Tracker) Signal(channel string, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.channels == nil {
		t.channels = make(map[string]Status)
	}
	t.channels[channel] = Merge(t.channels[channel], status)
	t.overall = Merge(t.overall, status)
}

func (t *Tracker) Overall() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.overall == "" {
		return StatusUnknown
	}
	return t.overall
}

// Channels returns a snapshot of the per-channel verdicts.
func (t *Tracker) Channels() map[string]Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Status, len(t.channels))
	for k, v := range t.channels {
		out[k] = v
	}
	return out
}
