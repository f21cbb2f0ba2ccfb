package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type row struct {
	Name  string `json:"name" yaml:"name"`
	Block uint64 `json:"block" yaml:"block"`
}

func newPrinter(format Format) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut, format), &out, &errOut
}

func sampleTable() *Table {
	t := NewTable("NAME", "BLOCK")
	t.AddRow("getValues", "1")
	t.AddRow("setAndGetValues", "12")
	return t
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Table(t *testing.T) {
	p, out, _ := newPrinter(FormatTable)
	require.NoError(t, p.Render(nil, sampleTable))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME             BLOCK"))
	assert.True(t, strings.HasPrefix(lines[1], "---------------  -----"))
	assert.True(t, strings.HasPrefix(lines[3], "setAndGetValues  12"))
	assert.NotContains(t, out.String(), "\033[")
}

func TestRender_JSON(t *testing.T) {
	p, out, _ := newPrinter(FormatJSON)
	called := false
	require.NoError(t, p.Render([]row{{"a", 1}}, func() *Table { called = true; return nil }))

	assert.False(t, called)
	var got []row
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []row{{"a", 1}}, got)
	assert.Contains(t, out.String(), "\n  ")
}

func TestRender_YAML(t *testing.T) {
	p, out, _ := newPrinter(FormatYAML)
	require.NoError(t, p.Render([]row{{"a", 7}}, nil))

	var got []row
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []row{{"a", 7}}, got)
}

func TestStatusLines(t *testing.T) {
	p, out, errOut := newPrinter(FormatTable)
	p.Success("dispatched %d", 3)
	p.Info("relay %s", "0xabc")
	p.Warn("slow")
	p.Error("failed: %v", "boom")

	assert.Equal(t, "✓ dispatched 3\nrelay 0xabc\n", out.String())
	assert.Equal(t, "⚠ slow\n✗ failed: boom\n", errOut.String())
}

func TestStatusLines_SuppressedForMachineFormats(t *testing.T) {
	p, out, errOut := newPrinter(FormatJSON)
	p.Success("ok")
	p.Info("info")
	p.Error("bad")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "bad")
}

func TestTable_AddRowNormalizesWidth(t *testing.T) {
	tbl := NewTable("A", "B")
	tbl.AddRow("only")
	tbl.AddRow("x", "y", "extra")

	var b bytes.Buffer
	tbl.render(&b, false)
	assert.NotContains(t, b.String(), "extra")
	assert.Len(t, tbl.rows[0], 2)
}

func TestColorPaint(t *testing.T) {
	assert.Equal(t, "x", successColor.paint(false, "x"))
	assert.Equal(t, "\033[32;1mx\033[0m", successColor.paint(true, "x"))
}
