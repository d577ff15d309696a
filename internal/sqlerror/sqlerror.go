// Package sqlerror turns positional query errors into a readable listing of
// the query with a caret under the offending column.
package sqlerror

import (
	"errors"
	"strings"

	"github.com/athenaq/athenaq/internal/execution"
)

// Position is a 1-based line and column inside the query text.
type Position struct {
	Line   int
	Column int
}

// PositionOf prefers the structured position carried by an
// *execution.QueryError and falls back to scanning the message text.
func PositionOf(err error) (Position, bool) {
	if err == nil {
		return Position{}, false
	}
	var queryErr *execution.QueryError
	if errors.As(err, &queryErr) && queryErr.HasPosition() {
		return Position{Line: queryErr.Line, Column: queryErr.Column}, true
	}
	line, column, ok := execution.ParsePosition(err.Error())
	if !ok {
		return Position{}, false
	}
	return Position{Line: line, Column: column}, true
}

// Lines renders query line by line; after line pos.Line it adds a marker of
// pos.Column-1 dashes and a caret, then the error text.
func Lines(query string, pos Position, err error) []string {
	lines := strings.Split(query, "\n")
	out := make([]string, 0, len(lines)+3)
	out = append(out, "Query has error:")
	for index, line := range lines {
		out = append(out, line)
		if index+1 == pos.Line {
			out = append(out, Marker(pos.Column))
			if err != nil {
				out = append(out, err.Error())
			}
		}
	}
	return out
}

func Marker(column int) string {
	dashes := column - 1
	if dashes < 0 {
		dashes = 0
	}
	return strings.Repeat("-", dashes) + "^"
}

type printer interface {
	Println(text string)
}

// Report writes the listing for err to p when err carries a position and
// reports whether it did.
func Report(p printer, query string, err error) bool {
	pos, ok := PositionOf(err)
	if !ok {
		return false
	}
	for _, line := range Lines(query, pos, err) {
		p.Println(line)
	}
	return true
}
