package table

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
)

// ParseCSV parses comma-separated data whose first record is the header.
// Empty fields become NULL cells.
func ParseCSV(data []byte) (Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, ErrEmptyPayload
	}

	columns := records[0]
	rows := make([][]sql.NullString, 0, len(records)-1)
	for index, record := range records[1:] {
		if len(record) > len(columns) {
			return Table{}, fmt.Errorf("parse csv: line %d: expected %d fields, saw %d", index+2, len(columns), len(record))
		}
		rows = append(rows, padRow(record, len(columns)))
	}
	return Table{Columns: columns, Rows: rows}, nil
}

// ParseTSV parses headerless tab-separated data. Everything from the first
// '#' byte onwards is a metadata footer and is dropped. Columns are named by
// position and short rows are padded with NULL cells. A payload with no
// records before the footer yields ErrEmptyPayload.
func ParseTSV(data []byte) (Table, error) {
	if index := bytes.IndexByte(data, '#'); index != -1 {
		data = data[:index]
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse tsv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, ErrEmptyPayload
	}

	width := 0
	for _, record := range records {
		if len(record) > width {
			width = len(record)
		}
	}
	rows := make([][]sql.NullString, 0, len(records))
	for _, record := range records {
		rows = append(rows, padRow(record, width))
	}
	return Table{Columns: positionalColumns(width), Rows: rows}, nil
}

func padRow(record []string, width int) []sql.NullString {
	row := make([]sql.NullString, width)
	for i, raw := range record {
		row[i] = cellOf(raw)
	}
	return row
}
