package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var register = Dataset{
	Columns: []Column{{Key: "id", Title: "FIR ID", Weight: 2}, {Key: "status", Title: "Status"}, {Key: "accused"}},
	Rows: []map[string]string{
		{"id": "f-1", "status": "SENT", "accused": "=HYPERLINK(\"x\")"},
		{"id": "f-2", "status": "APPROVED", "accused": "unknown, tall"},
	},
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(register)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "FIR ID,Status,accused", lines[0])
	assert.Equal(t, `f-1,SENT,"'=HYPERLINK(""x"")"`, lines[1])
	assert.Equal(t, `f-2,APPROVED,"unknown, tall"`, lines[2])
}

func TestExportersRequireColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "x")
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	exp := NewPDFExporter()
	exp.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	out, err := exp.Render(register, "FIR Register")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestReadTable(t *testing.T) {
	input := "\ufeffUsername,email,password,role\nalice, a@x.io ,secret1,USER\nbob,b@x.io,secret2\n"
	rows, err := ReadTable(strings.NewReader(input), []string{"username", "email", "password", "role"})
	require.Error(t, err, "csv reader enforces equal field counts")
	assert.Nil(t, rows)

	input = "username,email,password,role\nalice, a@x.io ,secret1,USER\n"
	rows, err = ReadTable(strings.NewReader(input), []string{"username", "email", "password", "role"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a@x.io", rows[0]["email"])

	_, err = ReadTable(strings.NewReader("username\nalice\n"), []string{"username", "email"})
	require.Error(t, err)
	_, err = ReadTable(strings.NewReader(""), nil)
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
}
