package duckdb

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// scanRows reads every row as text. SQL NULL becomes an empty field, which
// the CSV reader maps back to NULL.
func scanRows(rows *sql.Rows) ([]string, [][]string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	records := make([][]string, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, formatValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, records, nil
}

func formatValues(values []any) []string {
	formatted := make([]string, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case nil:
			formatted[i] = ""
		case []byte:
			formatted[i] = string(typed)
		case string:
			formatted[i] = typed
		case bool:
			formatted[i] = strconv.FormatBool(typed)
		case time.Time:
			formatted[i] = typed.Format("2006-01-02 15:04:05.000")
		default:
			formatted[i] = fmt.Sprint(typed)
		}
	}
	return formatted
}

func encodeCSV(columns []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(columns); err != nil {
		return nil, err
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeTSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.Comma = '\t'
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("encode tsv: %w", err)
	}
	return buf.Bytes(), nil
}

var duckdbLine = regexp.MustCompile(`^LINE (\d+): ?`)

// failureReason rewrites DuckDB's "LINE n: <text>" plus caret excerpt into
// the "line n:c: message" form Athena reports, so positional rendering
// works against either backend.
func failureReason(err error) string {
	message := strings.TrimSpace(err.Error())
	lines := strings.Split(message, "\n")
	headline := strings.TrimSpace(lines[0])

	for i, line := range lines {
		match := duckdbLine.FindStringSubmatch(line)
		if match == nil || i+1 >= len(lines) {
			continue
		}
		text := line[len(match[0]):]
		if strings.HasPrefix(text, "...") {
			break
		}
		caret := strings.IndexByte(lines[i+1], '^')
		if caret < len(match[0]) {
			break
		}
		lineNo, convErr := strconv.Atoi(match[1])
		if convErr != nil {
			break
		}
		return fmt.Sprintf("line %d:%d: %s", lineNo, caret-len(match[0])+1, headline)
	}
	return headline
}
