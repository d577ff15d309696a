package duckdb

import (
	"strings"
	"unicode"

	"github.com/athenaq/athenaq/internal/execution"
)

var statementKeywords = map[string]execution.StatementType{
	"SELECT":    execution.StatementDML,
	"WITH":      execution.StatementDML,
	"VALUES":    execution.StatementDML,
	"TABLE":     execution.StatementDML,
	"FROM":      execution.StatementDML,
	"INSERT":    execution.StatementDML,
	"UPDATE":    execution.StatementDML,
	"DELETE":    execution.StatementDML,
	"MERGE":     execution.StatementDML,
	"UNLOAD":    execution.StatementDML,
	"CREATE":    execution.StatementDDL,
	"DROP":      execution.StatementDDL,
	"ALTER":     execution.StatementDDL,
	"TRUNCATE":  execution.StatementDDL,
	"COMMENT":   execution.StatementDDL,
	"MSCK":      execution.StatementDDL,
	"SHOW":      execution.StatementUtility,
	"DESCRIBE":  execution.StatementUtility,
	"DESC":      execution.StatementUtility,
	"EXPLAIN":   execution.StatementUtility,
	"PRAGMA":    execution.StatementUtility,
	"SUMMARIZE": execution.StatementUtility,
}

// StatementTypeOf classifies query by its first keyword, skipping comments
// and opening parentheses. Unknown keywords count as DML.
func StatementTypeOf(query string) execution.StatementType {
	if statementType, ok := statementKeywords[leadingKeyword(query)]; ok {
		return statementType
	}
	return execution.StatementDML
}

func leadingKeyword(query string) string {
	rest := query
	for {
		rest = strings.TrimLeftFunc(rest, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(rest, "--"):
			newline := strings.IndexByte(rest, '\n')
			if newline < 0 {
				return ""
			}
			rest = rest[newline+1:]
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest, "*/")
			if end < 0 {
				return ""
			}
			rest = rest[end+2:]
		default:
			end := strings.IndexFunc(rest, func(r rune) bool {
				return !unicode.IsLetter(r) && r != '_'
			})
			if end < 0 {
				end = len(rest)
			}
			return strings.ToUpper(rest[:end])
		}
	}
}
