package schema

import "strings"

// SplitStatements splits a block of semicolon-terminated DDL statements into
// individual statements, trimming surrounding whitespace and dropping empty ones.
// This reconciler only ever emits plain PostgreSQL DDL (CREATE TABLE/ALTER
// TABLE/CREATE INDEX), none of which needs an alternate statement delimiter, so
// splitting is a plain semicolon split rather than a DELIMITER-aware scan.
func SplitStatements(statements string) []string {
	var result []string

	for _, part := range strings.Split(statements, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			result = append(result, stmt)
		}
	}

	return result
}
