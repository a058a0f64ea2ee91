package legacy

import (
	"fmt"
	"strings"

	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/strutil"
)

// decodePayload converts payload lines into the value for kind.
func decodePayload(kind result.Kind, lines []string) (any, error) {
	switch kind {
	case result.KindNone, "":
		return nil, nil
	case result.KindText:
		return strings.TrimRight(strings.Join(lines, "\n"), "\n "), nil
	case result.KindList:
		return strutil.CleanList(lines), nil
	case result.KindProperties:
		props := make(map[string]string)
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				return nil, fmt.Errorf("payload line %d is not key=value", i+1)
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, fmt.Errorf("payload line %d has an empty key", i+1)
			}
			props[key] = strings.TrimSpace(value)
		}
		return props, nil
	case result.KindBool:
		value := strings.ToLower(strings.TrimSpace(strings.Join(lines, "")))
		switch value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, fmt.Errorf("expected true or false, got %q", value)
		}
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", kind)
	}
}
