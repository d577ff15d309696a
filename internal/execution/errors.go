package execution

import (
	"regexp"
	"strconv"
)

var positionPattern = regexp.MustCompile(`line (\d+):(\d+):`)

// QueryError is a query the service rejected or finished in FAILED or
// CANCELLED. Line and Column are 1-based; zero means the service did not
// report a position.
type QueryError struct {
	ExecutionID string
	State       State
	Reason      string
	Line        int
	Column      int
}

func (e *QueryError) Error() string {
	return e.Reason
}

func (e *QueryError) HasPosition() bool {
	return e != nil && e.Line > 0
}

// NewQueryError builds a QueryError and fills its position from reason when
// the reason carries a "line N:C:" marker.
func NewQueryError(executionID string, state State, reason string) *QueryError {
	queryErr := &QueryError{ExecutionID: executionID, State: state, Reason: reason}
	if line, column, ok := ParsePosition(reason); ok {
		queryErr.Line = line
		queryErr.Column = column
	}
	return queryErr
}

// ParsePosition extracts the first "line N:C:" marker from message.
func ParsePosition(message string) (int, int, bool) {
	match := positionPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, 0, false
	}
	line, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, 0, false
	}
	column, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, false
	}
	return line, column, true
}
