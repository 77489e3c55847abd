// Package cli provides output formatting and an HTTP client for the tutor command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/tutor/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteAnswer writes an answer to w in the given format. JSON output is the same
// {answer, links} document the server returns.
func WriteAnswer(w io.Writer, result *models.AnswerResult, format OutputFormat) error {
	if format == OutputJSON {
		result.Normalize()
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(result.Answer))
	if len(result.Links) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, l := range result.Links {
			text := Truncate(l.Text, 100)
			if text == "" {
				fmt.Fprintf(w, "  [%d] %s\n", i+1, l.URL)
				continue
			}
			fmt.Fprintf(w, "  [%d] %s\n      %s\n", i+1, text, l.URL)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// WriteStatus writes a status document (as returned by GET /api/v1/status).
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	writeStatusSection(w, "", status)
	return nil
}

func writeStatusSection(w io.Writer, indent string, section map[string]interface{}) {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := section[k].(map[string]interface{}); ok {
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			writeStatusSection(w, indent+"  ", nested)
			continue
		}
		fmt.Fprintf(w, "%s%-18s %v\n", indent, k+":", formatValue(section[k]))
	}
}

func formatValue(v interface{}) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// Truncate truncates s to maxLen characters and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
