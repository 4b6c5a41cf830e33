package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendarTable() Table {
	t := Table{Columns: []Column{{Name: "Date", Weight: 2}, {Name: "Start"}, {Name: "End"}, {Name: "Kind"}}}
	t.AddRow("2024-01-01 Mon", "18:00", "19:00", "LESSON")
	t.AddRow("2024-01-03 Wed", "09:00")
	return t
}

func TestCSVWritesHeaderAndPaddedRows(t *testing.T) {
	out, err := CSV(calendarTable())
	require.NoError(t, err)
	assert.Equal(t, "Date,Start,End,Kind\n2024-01-01 Mon,18:00,19:00,LESSON\n2024-01-03 Wed,09:00,,\n", string(out))
}

func TestCSVRequiresColumns(t *testing.T) {
	_, err := CSV(Table{})
	assert.Error(t, err)
}

func TestPDFProducesDocument(t *testing.T) {
	out, err := PDF(calendarTable(), "Calendar")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestColumnWidthsFollowWeights(t *testing.T) {
	widths := columnWidths([]Column{{Name: "a", Weight: 3}, {Name: "b"}})
	require.Len(t, widths, 2)
	assert.InDelta(t, pdfPageWidth*0.75, widths[0], 0.001)
	assert.InDelta(t, pdfPageWidth*0.25, widths[1], 0.001)
}
