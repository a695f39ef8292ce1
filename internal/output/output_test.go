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

func newTestPrinter(t *testing.T, format string) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	p, err := New(format)
	require.NoError(t, err)
	var out, errOut bytes.Buffer
	p.Out, p.Err, p.NoColor = &out, &errOut, true
	return p, &out, &errOut
}

func TestNew(t *testing.T) {
	p, err := New("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, p.Format)
	assert.False(t, p.Structured())

	p, err = New("yaml")
	require.NoError(t, err)
	assert.True(t, p.Structured())

	_, err = New("xml")
	assert.ErrorContains(t, err, "unknown output format")
}

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestData_JSON(t *testing.T) {
	p, out, _ := newTestPrinter(t, FormatJSON)
	require.NoError(t, p.Data(sample{Name: "acme", Count: 3}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "acme", got["name"])
	assert.Contains(t, out.String(), "\n  \"count\"")
}

func TestData_YAMLUsesJSONTags(t *testing.T) {
	p, out, _ := newTestPrinter(t, FormatYAML)
	require.NoError(t, p.Data([]sample{{Name: "acme", Count: 3}}))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "acme", got[0]["name"])
	assert.Equal(t, 3, got[0]["count"])
}

func TestStatusLines(t *testing.T) {
	p, out, errOut := newTestPrinter(t, FormatTable)
	p.Success("created %d items", 5)
	p.Warn("careful")
	p.Info("note")
	p.Error("failed: %s", "boom")

	assert.Equal(t, "✓ created 5 items\n⚠ careful\nnote\n", out.String())
	assert.Equal(t, "✗ failed: boom\n", errOut.String())
}

func TestStatusLines_Colored(t *testing.T) {
	p, out, _ := newTestPrinter(t, FormatTable)
	p.NoColor = false
	p.Success("ok")
	assert.True(t, strings.HasPrefix(out.String(), "\033[32;1m"))
	assert.True(t, strings.HasSuffix(out.String(), reset))
}

func TestTable(t *testing.T) {
	p, out, _ := newTestPrinter(t, FormatTable)
	tbl := NewTable("ID", "Rule")
	tbl.AddRow("1", "Multiple Failed Login Attempts")
	tbl.AddRow("22")
	assert.Equal(t, 2, tbl.Len())

	p.Table(tbl)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID  Rule                            ", lines[0])
	assert.Equal(t, "--  ------------------------------  ", lines[1])
	assert.Equal(t, "1   Multiple Failed Login Attempts  ", lines[2])
	assert.Equal(t, "22                                  ", lines[3])
}
