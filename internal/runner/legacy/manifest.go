package legacy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/strutil"
)

const (
	exitCodeKey = "exit-code"
	messageKey  = "message"
)

// manifest is a parsed legacy reply: a block of "key: value" headers, a
// blank line, then the payload.
type manifest struct {
	headers map[string]string
	// keys keeps header order for deterministic child lookups.
	keys    []string
	payload []string
}

// isTagged reports whether body opens with a header block that carries at
// least one exit-code signal. Untagged bodies are plain text.
func isTagged(body string) bool {
	for _, line := range strutil.SplitLines(body) {
		if strings.TrimSpace(line) == "" {
			return false
		}
		key, _, ok := strings.Cut(line, ":")
		if ok && isSignalKey(normalizeKey(key)) {
			return true
		}
	}
	return false
}

func isSignalKey(key string) bool {
	return key == exitCodeKey || strings.HasSuffix(key, "."+exitCodeKey)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func parseManifest(body string) (*manifest, error) {
	m := &manifest{headers: make(map[string]string)}
	lines := strutil.SplitLines(body)

	last := ""
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			m.payload = lines[i+1:]
			break
		}
		// A leading space continues the previous header value.
		if strings.HasPrefix(line, " ") && last != "" {
			m.headers[last] += strings.TrimPrefix(line, " ")
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("header line %d has no separator", i+1)
		}
		key = normalizeKey(key)
		if key == "" {
			return nil, fmt.Errorf("header line %d has an empty key", i+1)
		}
		if _, seen := m.headers[key]; !seen {
			m.keys = append(m.keys, key)
		}
		m.headers[key] = strings.TrimSpace(value)
		last = key
	}
	return m, nil
}

// verdict aggregates every exit-code signal in the header block.
func (m *manifest) verdict() (result.Status, error) {
	signals := make([]result.Status, 0, 1)
	for _, key := range m.keys {
		if !isSignalKey(key) {
			continue
		}
		status, err := result.ParseExitCode(m.headers[key])
		if err != nil {
			return result.StatusUnknown, fmt.Errorf("%s: %w", key, err)
		}
		signals = append(signals, status)
	}
	return result.Aggregate(signals...), nil
}

// message returns the top-level diagnostic, or the message of the first
// failing child when the top level has none.
func (m *manifest) message() string {
	if msg := m.headers[messageKey]; msg != "" {
		return msg
	}
	children := make([]string, 0)
	for _, key := range m.keys {
		if strings.HasSuffix(key, "."+exitCodeKey) {
			children = append(children, strings.TrimSuffix(key, exitCodeKey))
		}
	}
	sort.Strings(children)
	for _, prefix := range children {
		status, err := result.ParseExitCode(m.headers[prefix+exitCodeKey])
		if err == nil && status == result.StatusError {
			if msg := m.headers[prefix+messageKey]; msg != "" {
				return msg
			}
		}
	}
	return ""
}
