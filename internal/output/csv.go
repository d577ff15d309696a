package output

import (
	"encoding/csv"
	"io"

	"github.com/athenaq/athenaq/internal/table"
)

// WriteCSV writes t with a header row. NULL cells become empty fields.
func WriteCSV(w io.Writer, t table.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	return writer.WriteAll(t.Strings(""))
}

// CSV sends status text to a terminal and tables as CSV to data, so
// results can be piped while progress stays visible.
type CSV struct {
	*Terminal
	data io.Writer
}

func NewCSV(status, data io.Writer) *CSV {
	if data == nil {
		data = io.Discard
	}
	return &CSV{Terminal: NewTerminal(status, 0), data: data}
}

func (s *CSV) Display(t table.Table) {
	s.Terminal.mu.Lock()
	s.Terminal.endProgress()
	s.Terminal.mu.Unlock()
	if err := WriteCSV(s.data, t); err != nil {
		s.Println("write csv: " + err.Error())
	}
}
