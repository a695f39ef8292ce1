// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Formats accepted by --output.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	successColor = NewColor(FgGreen, Bold)
	errorColor   = NewColor(FgRed, Bold)
	infoColor    = NewColor(FgCyan)
	warnColor    = NewColor(FgYellow)
	headerColor  = NewColor(FgWhite, Bold)
)

// Printer writes results in one format. NoColor strips ANSI codes, which is
// what tests and pipes want.
type Printer struct {
	Format  string
	Out     io.Writer
	Err     io.Writer
	NoColor bool
}

func New(format string) (*Printer, error) {
	switch format {
	case "", FormatTable:
		format = FormatTable
	case FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q (valid: table, json, yaml)", format)
	}
	return &Printer{Format: format, Out: os.Stdout, Err: os.Stderr}, nil
}

// Structured reports whether results should be emitted as data rather than
// as a table with status lines.
func (p *Printer) Structured() bool {
	return p.Format == FormatJSON || p.Format == FormatYAML
}

// Data writes v as JSON or YAML. Table format falls back to JSON.
func (p *Printer) Data(v any) error {
	if p.Format == FormatYAML {
		// Round-trip through JSON so YAML keys follow the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		enc := yaml.NewEncoder(p.Out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) Success(format string, a ...any) {
	successColor.Fprintf(p.Out, p.NoColor, "✓ "+format+"\n", a...)
}

func (p *Printer) Error(format string, a ...any) {
	errorColor.Fprintf(p.Err, p.NoColor, "✗ "+format+"\n", a...)
}

func (p *Printer) Info(format string, a ...any) {
	infoColor.Fprintf(p.Out, p.NoColor, format+"\n", a...)
}

func (p *Printer) Warn(format string, a ...any) {
	warnColor.Fprintf(p.Out, p.NoColor, "⚠ "+format+"\n", a...)
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers, rows: [][]string{}}
}

// AddRow appends a row. Short rows are padded and extra cells dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int { return len(t.rows) }

// Table renders t with column widths fitted to the widest cell.
func (p *Printer) Table(t *Table) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	for i, h := range t.headers {
		headerColor.Fprintf(p.Out, p.NoColor, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(p.Out)

	for i := range t.headers {
		fmt.Fprint(p.Out, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(p.Out)

	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Fprintf(p.Out, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(p.Out)
	}
}
