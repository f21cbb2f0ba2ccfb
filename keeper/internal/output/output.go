// Package output renders CLI results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how results are rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

var (
	successColor = color{fgGreen, bold}
	errorColor   = color{fgRed, bold}
	infoColor    = color{fgCyan}
	warnColor    = color{fgYellow}
	headerColor  = color{fgWhite, bold}
)

// Printer writes results and status lines.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	format Format
	color  bool
}

// New creates a Printer. Color is used only for table output to a terminal.
func New(out, errOut io.Writer, format Format) *Printer {
	return &Printer{
		out:    out,
		errOut: errOut,
		format: format,
		color:  format == FormatTable && isTerminal(out),
	}
}

// Format returns the selected format.
func (p *Printer) Format() Format {
	return p.format
}

// Success prints a status line. Status lines are suppressed for json and yaml
// so the output stays machine readable.
func (p *Printer) Success(format string, a ...interface{}) {
	if p.format == FormatTable {
		fmt.Fprintln(p.out, successColor.sprintf(p.color, "✓ "+format, a...))
	}
}

func (p *Printer) Info(format string, a ...interface{}) {
	if p.format == FormatTable {
		fmt.Fprintln(p.out, infoColor.sprintf(p.color, format, a...))
	}
}

// Warn and Error always go to the error stream.
func (p *Printer) Warn(format string, a ...interface{}) {
	fmt.Fprintln(p.errOut, warnColor.sprintf(p.color, "⚠ "+format, a...))
}

func (p *Printer) Error(format string, a ...interface{}) {
	fmt.Fprintln(p.errOut, errorColor.sprintf(p.color, "✗ "+format, a...))
}

// Render writes v as JSON or YAML, or calls table for table output.
func (p *Printer) Render(v interface{}, table func() *Table) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		t := table()
		t.render(p.out, p.color)
		return nil
	}
}

// Table is a column-aligned text table.
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

func (t *Table) render(w io.Writer, colored bool) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range t.headers {
		b.WriteString(headerColor.paint(colored, pad(h, widths[i])))
	}
	b.WriteString("\n")
	for i := range t.headers {
		b.WriteString(pad(strings.Repeat("-", widths[i]), widths[i]))
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		for i, cell := range row {
			b.WriteString(pad(cell, widths[i]))
		}
		b.WriteString("\n")
	}
	fmt.Fprint(w, b.String())
}

func pad(s string, width int) string {
	return fmt.Sprintf("%-*s  ", width, s)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
