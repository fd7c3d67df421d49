package core

import (
	"fmt"
	"strings"
)

// Dialect selects SQL type names for generated DDL.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) columnType(t ColumnType) string {
	switch t {
	case ColumnBigInt:
		if d == DialectSQLite {
			return "INTEGER"
		}
		return "BIGINT"
	default:
		return "TEXT"
	}
}

// CreateTableSQL returns an idempotent CREATE TABLE statement for def.
// Every report table gets a surrogate id so rows keep insertion order.
func CreateTableSQL(def ReportDefinition, d Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdentifier(def.Info.Key))
	if d == DialectSQLite {
		b.WriteString("    id INTEGER PRIMARY KEY AUTOINCREMENT")
	} else {
		b.WriteString("    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY")
	}
	for _, c := range def.Columns {
		fmt.Fprintf(&b, ",\n    %s %s", QuoteIdentifier(c.Name), d.columnType(c.Type))
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// CreateIndexSQL returns idempotent index statements for def's bigint
// columns, which hold root entity ids.
func CreateIndexSQL(def ReportDefinition) []string {
	var stmts []string
	for _, c := range def.Columns {
		if c.Type != ColumnBigInt {
			continue
		}
		name := fmt.Sprintf("idx_%s_%s", def.Info.Key, c.Name)
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			QuoteIdentifier(name), QuoteIdentifier(def.Info.Key), QuoteIdentifier(c.Name)))
	}
	return stmts
}

// QuoteIdentifier safely quotes a SQL identifier.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
