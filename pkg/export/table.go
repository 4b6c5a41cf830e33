package export

import "fmt"

const (
	ContentTypeCSV = "text/csv"
	ContentTypePDF = "application/pdf"
)

// Column is one export column. Weight sizes the column relative to the others in PDF output.
type Column struct {
	Name   string
	Weight float64
}

// Table holds rows in column order.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// AddRow appends a row, padding or truncating it to the column count.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

func (t Table) headers() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export requires at least one column")
	}
	return nil
}
