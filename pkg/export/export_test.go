package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Table{
		Headers: []string{"slot", "occupancy", "open"},
		Rows:    [][]string{{"1", "120", "true"}, {"2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "slot,occupancy,open\n1,120,true\n2,,\n", string(out))

	_, err = NewCSVExporter().Render(Table{})
	assert.Error(t, err)
	_, err = NewCSVExporter().Render(Table{Headers: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)
}

func TestPDFExporterRenderSpansPages(t *testing.T) {
	rows := make([][]string, 120)
	for i := range rows {
		rows[i] = []string{fmt.Sprint(i + 1), "150", "open"}
	}
	out, err := NewPDFExporter().Render(Document{
		Title:   "Workshop occupancy",
		Summary: []Field{{Label: "Families assigned", Value: "4870"}},
		Table:   Table{Headers: []string{"Day", "Occupancy", "State"}, Rows: rows},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Document{Title: "empty"})
	assert.Error(t, err)
}
