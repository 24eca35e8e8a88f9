package format

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Write writes output in the requested format.
//
// Supported formats:
// - json (default)
// - table
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "table":
		return WriteTable(w, v)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJSON writes strict JSON output for CLI commands.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}

// Tabular values choose their own columns in table output.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// WriteTable renders v for humans. A {"data": x} envelope is unwrapped.
// Tabular values render as-is; lists of objects get one column per key;
// a single object renders as field/value pairs.
func WriteTable(w io.Writer, v any) error {
	if env, ok := v.(map[string]any); ok && len(env) == 1 {
		if d, ok := env["data"]; ok {
			v = d
		}
	}
	if t, ok := v.(Tabular); ok {
		return render(w, t.Header(), t.Rows())
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}

	switch x := generic.(type) {
	case []any:
		header, rows := objectRows(x)
		return render(w, header, rows)
	case map[string]any:
		if d, ok := x["data"]; ok && len(x) == 1 {
			return WriteTable(w, d)
		}
		keys := sortedKeys(x)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, cell(x[k])})
		}
		return render(w, []string{"field", "value"}, rows)
	default:
		_, err := fmt.Fprintln(w, cell(x))
		return err
	}
}

func objectRows(items []any) ([]string, [][]string) {
	seen := map[string]bool{}
	var header []string
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range sortedKeys(m) {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	if len(header) == 0 {
		header = []string{"value"}
	}
	// "id" first, then the rest in first-seen order.
	for i, h := range header {
		if h == "id" && i > 0 {
			header = append([]string{"id"}, append(header[:i:i], header[i+1:]...)...)
			break
		}
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			rows = append(rows, []string{cell(it)})
			continue
		}
		row := make([]string, len(header))
		for i, h := range header {
			row[i] = cell(m[h])
		}
		rows = append(rows, row)
	}
	return header, rows
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64, bool:
		return fmt.Sprint(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, cell(e))
		}
		return strings.Join(parts, "\n")
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func render(w io.Writer, header []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(header...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}
