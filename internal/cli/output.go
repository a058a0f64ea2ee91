package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/tpodg/fleetadmin/internal/result"
)

const (
	outputText = "text"
	outputYAML = "yaml"
	outputJSON = "json"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputYAML, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}
}

func writeReports(w io.Writer, format string, reports []report) error {
	switch format {
	case outputYAML:
		data, err := yaml.Marshal(reports)
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	default:
		for _, r := range reports {
			if err := writeText(w, r); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeText(w io.Writer, r report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s\t%s", r.Server, r.Operation, r.Status)
	if r.Message != "" {
		fmt.Fprintf(&b, "\t%s", r.Message)
	}
	b.WriteString("\n")

	switch v := r.Value.(type) {
	case nil:
	case string:
		if v != "" {
			fmt.Fprintf(&b, "  %s\n", v)
		}
	case []string:
		for _, item := range v {
			fmt.Fprintf(&b, "  %s\n", item)
		}
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s=%s\n", k, v[k])
		}
	default:
		fmt.Fprintf(&b, "  %v\n", v)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// verdictError is returned when the fleet verdict is not SUCCESS so the process exits non-zero.
func verdictError(status result.Status) error {
	if status == result.StatusSuccess {
		return nil
	}
	return fmt.Errorf("fleet verdict: %s", status)
}
