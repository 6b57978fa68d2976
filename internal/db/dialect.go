package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect names the SQL flavor behind a connection.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectOf returns the dialect of conn, or "" when unknown.
func DialectOf(conn *gorm.DB) Dialect {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return Dialect(conn.Dialector.Name())
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectOf(conn) == DialectSQLite
}

// SearchClause matches term as a case-insensitive substring of any of columns.
// It returns the WHERE fragment and one argument per column.
// LIKE wildcards inside term are matched literally.
func SearchClause(conn *gorm.DB, term string, columns ...string) (string, []any) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(term))
	sqlite := IsSQLite(conn)
	if sqlite {
		escaped = strings.ToLower(escaped)
	}
	pattern := "%" + escaped + "%"

	parts := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		if sqlite {
			parts = append(parts, fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column))
		} else {
			parts = append(parts, fmt.Sprintf(`%s ILIKE ? ESCAPE '\'`, column))
		}
		args = append(args, pattern)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// JSONTextExpr extracts a top-level JSON key of column as text.
func JSONTextExpr(conn *gorm.DB, column, key string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("json_extract(%s, '$.%s')", column, key)
	}
	return fmt.Sprintf("%s->>'%s'", column, key)
}
