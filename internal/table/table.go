package table

import (
	"database/sql"
	"errors"
	"strconv"
)

var ErrEmptyPayload = errors.New("no columns to parse from result payload")

// Table is a parsed result set. Rows are padded to len(Columns); a NULL cell
// has Valid set to false.
type Table struct {
	Columns []string
	Rows    [][]sql.NullString
}

func New(columns []string, rows [][]sql.NullString) Table {
	return Table{Columns: columns, Rows: rows}
}

func (t Table) NumRows() int {
	return len(t.Rows)
}

func (t Table) NumColumns() int {
	return len(t.Columns)
}

// Value returns the cell at row r and column c, or a NULL cell when out of range.
func (t Table) Value(r, c int) sql.NullString {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Rows[r]) {
		return sql.NullString{}
	}
	return t.Rows[r][c]
}

// Column returns the index of the first column named name.
func (t Table) Column(name string) (int, bool) {
	for i, column := range t.Columns {
		if column == name {
			return i, true
		}
	}
	return -1, false
}

// Equal reports whether both tables have the same columns and cells. Nil and
// empty slices compare equal.
func (t Table) Equal(other Table) bool {
	if len(t.Columns) != len(other.Columns) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for r := range t.Rows {
		if len(t.Rows[r]) != len(other.Rows[r]) {
			return false
		}
		for c := range t.Rows[r] {
			if t.Rows[r][c] != other.Rows[r][c] {
				return false
			}
		}
	}
	return true
}

// Strings returns the rows as plain strings; NULL cells render as null.
func (t Table) Strings(null string) [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		values := make([]string, len(row))
		for i, cell := range row {
			if cell.Valid {
				values[i] = cell.String
			} else {
				values[i] = null
			}
		}
		out = append(out, values)
	}
	return out
}

func positionalColumns(width int) []string {
	columns := make([]string, width)
	for i := range columns {
		columns[i] = strconv.Itoa(i)
	}
	return columns
}

func cellOf(raw string) sql.NullString {
	if raw == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: raw, Valid: true}
}
