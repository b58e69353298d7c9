package features

// Table is a dense feature matrix with named columns. Row i describes the
// i-th listing passed to Engineer.Transform.
type Table struct {
	Columns []string
	Rows    [][]float64

	index map[string]int
}

func newTable(columns []string, rows [][]float64) *Table {
	t := &Table{Columns: columns, Rows: rows, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		t.index[c] = i
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Has reports whether the table carries the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column, or nil when it is absent.
func (t *Table) Column(name string) []float64 {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Select projects the table onto columns in the given order. Columns the
// table does not carry are filled with 0.
func (t *Table) Select(columns []string) [][]float64 {
	out := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		sel := make([]float64, len(columns))
		for j, c := range columns {
			if i, ok := t.index[c]; ok {
				sel[j] = row[i]
			}
		}
		out[r] = sel
	}
	return out
}
