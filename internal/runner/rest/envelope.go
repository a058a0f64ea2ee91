package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tpodg/fleetadmin/internal/result"
)

// envelope is the JSON document every REST admin reply is wrapped in.
type envelope struct {
	ExitCode   string          `json:"exit_code"`
	Message    string          `json:"message"`
	Payload    json.RawMessage `json:"payload"`
	SubReports []subReport     `json:"subReports"`
}

type subReport struct {
	ExitCode string `json:"exit_code"`
	Message  string `json:"message"`
}

func parseEnvelope(body []byte) (*envelope, error) {
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("envelope is not a JSON object")
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// verdict aggregates the top-level and sub-report exit codes. A reply that
// carries none leaves the decision to the transport and yields StatusUnknown.
func (e *envelope) verdict() (result.Status, error) {
	var signals []result.Status
	if strings.TrimSpace(e.ExitCode) != "" {
		s, err := result.ParseExitCode(e.ExitCode)
		if err != nil {
			return result.StatusUnknown, fmt.Errorf("exit_code: %w", err)
		}
		signals = append(signals, s)
	}
	for i, sub := range e.SubReports {
		if strings.TrimSpace(sub.ExitCode) == "" {
			continue
		}
		s, err := result.ParseExitCode(sub.ExitCode)
		if err != nil {
			return result.StatusUnknown, fmt.Errorf("subReports[%d].exit_code: %w", i, err)
		}
		signals = append(signals, s)
	}
	return result.Aggregate(signals...), nil
}

// message joins the top-level message with the first failing sub-report message.
func (e *envelope) message() string {
	msg := strings.TrimSpace(e.Message)
	for _, sub := range e.SubReports {
		s, err := result.ParseExitCode(sub.ExitCode)
		if err != nil || s != result.StatusError || strings.TrimSpace(sub.Message) == "" {
			continue
		}
		if msg == "" {
			return strings.TrimSpace(sub.Message)
		}
		return msg + "; " + strings.TrimSpace(sub.Message)
	}
	return msg
}

func decodePayload(kind result.Kind, raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	isNull := len(raw) == 0 || bytes.Equal(raw, []byte("null"))

	switch kind {
	case result.KindNone, "":
		return nil, nil
	case result.KindText:
		if isNull {
			return "", nil
		}
		return scalarString(raw)
	case result.KindList:
		if isNull {
			return []string{}, nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("payload is not a list: %w", err)
		}
		out := make([]string, 0, len(items))
		for i, item := range items {
			s, err := scalarString(item)
			if err != nil {
				return nil, fmt.Errorf("payload[%d]: %w", i, err)
			}
			out = append(out, s)
		}
		return out, nil
	case result.KindProperties:
		if isNull {
			return map[string]string{}, nil
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("payload is not an object: %w", err)
		}
		out := make(map[string]string, len(fields))
		for key, value := range fields {
			s, err := scalarString(value)
			if err != nil {
				return nil, fmt.Errorf("payload.%s: %w", key, err)
			}
			out[key] = s
		}
		return out, nil
	case result.KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("payload is not a boolean: %s", raw)
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", kind)
	}
}

// scalarString renders a JSON string, number, or boolean as text.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("empty value")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("expected a scalar, got %s", raw)
	case 'n':
		return "", nil
	default:
		return string(raw), nil
	}
}
