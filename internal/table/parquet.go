package table

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

const headerRow = -1

// parquetCell is the on-disk layout of a table: one row per header column
// (Row == -1) and one row per cell.
type parquetCell struct {
	Row    int64  `parquet:"row"`
	Column int32  `parquet:"column"`
	Value  string `parquet:"value"`
	Null   bool   `parquet:"null"`
}

func EncodeParquet(w io.Writer, t Table) error {
	cells := make([]parquetCell, 0, len(t.Columns)*(len(t.Rows)+1))
	for index, name := range t.Columns {
		cells = append(cells, parquetCell{Row: headerRow, Column: int32(index), Value: name})
	}
	for r, row := range t.Rows {
		for c, value := range row {
			cells = append(cells, parquetCell{
				Row:    int64(r),
				Column: int32(c),
				Value:  value.String,
				Null:   !value.Valid,
			})
		}
	}

	writer := parquet.NewGenericWriter[parquetCell](w)
	if len(cells) > 0 {
		if _, err := writer.Write(cells); err != nil {
			return fmt.Errorf("write parquet cells: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func MarshalParquet(t Table) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := EncodeParquet(buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeParquet(r io.ReaderAt, size int64) (Table, error) {
	cells, err := parquet.Read[parquetCell](r, size)
	if err != nil {
		return Table{}, fmt.Errorf("read parquet cells: %w", err)
	}

	width := 0
	height := 0
	for _, cell := range cells {
		if cell.Column < 0 {
			return Table{}, fmt.Errorf("invalid parquet cell column %d", cell.Column)
		}
		if int(cell.Column)+1 > width {
			width = int(cell.Column) + 1
		}
		if cell.Row != headerRow && int(cell.Row)+1 > height {
			height = int(cell.Row) + 1
		}
		if cell.Row < headerRow {
			return Table{}, fmt.Errorf("invalid parquet cell row %d", cell.Row)
		}
	}

	t := Table{
		Columns: make([]string, width),
		Rows:    make([][]sql.NullString, height),
	}
	for r := range t.Rows {
		t.Rows[r] = make([]sql.NullString, width)
	}
	for _, cell := range cells {
		if cell.Row == headerRow {
			t.Columns[cell.Column] = cell.Value
			continue
		}
		if !cell.Null {
			t.Rows[cell.Row][cell.Column] = sql.NullString{String: cell.Value, Valid: true}
		}
	}
	return t, nil
}

func UnmarshalParquet(data []byte) (Table, error) {
	return DecodeParquet(bytes.NewReader(data), int64(len(data)))
}
