package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/athenaq/athenaq/internal/table"
)

// Sink receives status text and results while a query runs. Progress
// replaces the current status line; Println appends a line.
type Sink interface {
	Progress(text string)
	Println(text string)
	Display(t table.Table)
}

const DefaultMaxRows = 10000

type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	maxRows    int
	inProgress bool
}

func NewTerminal(out io.Writer, maxRows int) *Terminal {
	if out == nil {
		out = io.Discard
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Terminal{out: out, maxRows: maxRows}
}

func (s *Terminal) Progress(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprint(s.out, "\r"+text)
	s.inProgress = true
}

func (s *Terminal) Println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endProgress()
	_, _ = fmt.Fprintln(s.out, text)
}

func (s *Terminal) Display(t table.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endProgress()

	rendered, err := Render(t, s.maxRows)
	if err != nil {
		_, _ = fmt.Fprintf(s.out, "render table: %v\n", err)
		return
	}
	_, _ = fmt.Fprint(s.out, rendered)
}

func (s *Terminal) endProgress() {
	if s.inProgress {
		_, _ = fmt.Fprintln(s.out)
		s.inProgress = false
	}
}

// Render formats t as a boxed table followed by its shape, keeping at most
// maxRows rows.
func Render(t table.Table, maxRows int) (string, error) {
	rows := t.Strings("NULL")
	truncated := false
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}

	var builder strings.Builder
	if len(t.Columns) > 0 {
		data := make(pterm.TableData, 0, len(rows)+1)
		data = append(data, t.Columns)
		data = append(data, rows...)
		rendered, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
		if err != nil {
			return "", err
		}
		builder.WriteString(rendered)
		builder.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&builder, "... showing first %d rows\n", maxRows)
	}
	fmt.Fprintf(&builder, "[%d rows x %d columns]\n", t.NumRows(), t.NumColumns())
	return builder.String(), nil
}

// Buffer records everything written to it.
type Buffer struct {
	mu       sync.Mutex
	progress []string
	lines    []string
	tables   []table.Table
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Progress(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = append(b.progress, text)
}

func (b *Buffer) Println(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, text)
}

func (b *Buffer) Display(t table.Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables = append(b.tables, t)
}

func (b *Buffer) ProgressUpdates() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.progress...)
}

func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

func (b *Buffer) Tables() []table.Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]table.Table(nil), b.tables...)
}

type discard struct{}

func (discard) Progress(string) {}
func (discard) Println(string) {}
func (discard) Display(table.Table) {}

// Discard drops everything.
var Discard Sink = discard{}
