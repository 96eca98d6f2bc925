// Package ddl implements the column type vocabulary of the storage dialect
// and the grammar of its one-line DDL schema strings, such as
// "`a` LONG,`b` STRING,`c` ARRAY<LONG>".
package ddl

import "strings"

// QuoteIdentifier wraps a field name in backticks, escaping any embedded
// backtick by doubling it.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// UnquoteIdentifier reverses the escaping of a backtick-quoted name body
// (the text between the outer backticks).
func UnquoteIdentifier(body string) string {
	return strings.ReplaceAll(body, "``", "`")
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them (standard SQL).
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
