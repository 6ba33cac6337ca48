// pkg/frame/frame.go
package frame

import (
	"fmt"
)

// HeaderRowOffset converts a zero-based row position into the display
// row number a spreadsheet user sees (1-indexed plus the header row).
const HeaderRowOffset = 2

// Frame is an ordered collection of named columns holding heterogeneous
// cell values. Rows are positionally aligned across columns; a column
// shorter than the frame length reads as nil for the missing positions.
type Frame struct {
	order   []string
	columns map[string][]interface{}
	length  int
}

// New creates an empty frame
func New() *Frame {
	return &Frame{
		order:   make([]string, 0),
		columns: make(map[string][]interface{}),
	}
}

// AddColumn appends a named column to the frame. Adding a column whose
// name already exists replaces the existing cells but keeps its position.
func (f *Frame) AddColumn(name string, cells []interface{}) {
	if _, exists := f.columns[name]; !exists {
		f.order = append(f.order, name)
	}
	f.columns[name] = cells
	if len(cells) > f.length {
		f.length = len(cells)
	}
}

// Columns returns the column names in insertion order
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// HasColumn reports whether a column with the given name exists
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the cells of a named column, or nil if absent
func (f *Frame) Column(name string) []interface{} {
	return f.columns[name]
}

// Cell returns the value at (row, column). Positions beyond a short
// column read as nil.
func (f *Frame) Cell(name string, row int) interface{} {
	cells, ok := f.columns[name]
	if !ok || row < 0 || row >= len(cells) {
		return nil
	}
	return cells[row]
}

// SetCell writes a value at (row, column), growing the column with nils
// if needed
func (f *Frame) SetCell(name string, row int, value interface{}) {
	cells, ok := f.columns[name]
	if !ok {
		cells = make([]interface{}, 0, row+1)
		f.order = append(f.order, name)
	}
	for len(cells) <= row {
		cells = append(cells, nil)
	}
	cells[row] = value
	f.columns[name] = cells
	if len(cells) > f.length {
		f.length = len(cells)
	}
}

// Len returns the number of rows in the frame
func (f *Frame) Len() int {
	return f.length
}

// Rename changes a column's name in place, preserving its position.
// Renaming onto an existing name drops the previous holder of that
// name (last-one-wins).
func (f *Frame) Rename(from, to string) {
	if from == to {
		return
	}
	cells, ok := f.columns[from]
	if !ok {
		return
	}

	if _, exists := f.columns[to]; exists {
		// Drop the existing column from the order; the renamed one
		// takes over its data under the canonical name.
		for i, name := range f.order {
			if name == to {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}

	delete(f.columns, from)
	f.columns[to] = cells
	for i, name := range f.order {
		if name == from {
			f.order[i] = to
			break
		}
	}
}

// Row returns one row as a map keyed by column name
func (f *Frame) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(f.order))
	for _, name := range f.order {
		row[name] = f.Cell(name, i)
	}
	return row
}

// DisplayRow converts a zero-based row position to the user-facing
// spreadsheet row number
func DisplayRow(position int) int {
	return position + HeaderRowOffset
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	out := New()
	for _, name := range f.order {
		cells := make([]interface{}, len(f.columns[name]))
		copy(cells, f.columns[name])
		out.AddColumn(name, cells)
	}
	out.length = f.length
	return out
}

// String returns a short human-readable summary of the frame shape
func (f *Frame) String() string {
	return fmt.Sprintf("Frame(%d columns x %d rows)", len(f.order), f.length)
}
