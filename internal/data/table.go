package data

import (
	"fmt"
	"slices"
)

// Table is an immutable set of named float columns of equal length.
type Table struct {
	id      string
	rows    int
	names   []string
	columns map[string][]float64
}

// NewTable creates a table with the given number of rows and no columns.
func NewTable(id string, rows int) *Table {
	return &Table{id: id, rows: rows, columns: make(map[string][]float64)}
}

// Identifier implements Object.
func (t *Table) Identifier() string { return t.id }

// Rows returns the number of rows.
func (t *Table) Rows() int { return t.rows }

// ColumnNames returns the column names in insertion order.
func (t *Table) ColumnNames() []string { return slices.Clone(t.names) }

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	col, ok := t.columns[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(col), true
}

// Value returns one cell.
func (t *Table) Value(name string, row int) (float64, bool) {
	col, ok := t.columns[name]
	if !ok || row < 0 || row >= t.rows {
		return 0, false
	}
	return col[row], true
}

// WithColumn returns a table with the named column set to values.
func (t *Table) WithColumn(name string, values []float64) (*Table, error) {
	if len(values) != t.rows {
		return nil, fmt.Errorf("column %q has %d values, table %q has %d rows", name, len(values), t.id, t.rows)
	}
	out := t.shallowCopy()
	if _, exists := out.columns[name]; !exists {
		out.names = append(out.names, name)
	}
	out.columns[name] = slices.Clone(values)
	return out, nil
}

// Filter returns a table that keeps only the rows where keep is true.
func (t *Table) Filter(keep []bool) (*Table, error) {
	if len(keep) != t.rows {
		return nil, fmt.Errorf("filter mask has %d entries, table %q has %d rows", len(keep), t.id, t.rows)
	}
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	out := &Table{id: t.id, rows: n, names: slices.Clone(t.names), columns: make(map[string][]float64, len(t.columns))}
	for name, col := range t.columns {
		filtered := make([]float64, 0, n)
		for i, v := range col {
			if keep[i] {
				filtered = append(filtered, v)
			}
		}
		out.columns[name] = filtered
	}
	return out, nil
}

func (t *Table) shallowCopy() *Table {
	out := &Table{id: t.id, rows: t.rows, names: slices.Clone(t.names), columns: make(map[string][]float64, len(t.columns)+1)}
	for k, v := range t.columns {
		out.columns[k] = v
	}
	return out
}
