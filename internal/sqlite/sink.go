package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/JonMunkholm/simplestruct/internal/core"
)

// Compile-time contract assertions.
var (
	_ core.BulkSink   = (*Sink)(nil)
	_ core.SchemaSink = (*Sink)(nil)
)

// Sink writes report rows to SQLite tables.
type Sink struct {
	db *sql.DB
}

// NewSink returns a Sink over db.
func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Truncate empties table and resets its AUTOINCREMENT counter.
func (s *Sink) Truncate(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+core.QuoteIdentifier(table)); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

func (s *Sink) InsertRow(ctx context.Context, table string, row core.Row) error {
	cols := core.SortedColumns(row)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	if _, err := s.db.ExecContext(ctx, insertSQL(table, cols), args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// InsertRows inserts rows with one prepared statement inside a transaction.
func (s *Sink) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (n int64, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
			n = 0
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, values := range rows {
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *Sink) EnsureTable(ctx context.Context, def core.ReportDefinition) error {
	stmts := append([]string{core.CreateTableSQL(def, core.DialectSQLite)}, core.CreateIndexSQL(def)...)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", def.Info.Key, err)
		}
	}
	return nil
}

// Rows returns every row of table in insertion order, without the
// surrogate id. NULL columns come back as nil.
func (s *Sink) Rows(ctx context.Context, table string, columns []string) ([]map[string]any, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = core.QuoteIdentifier(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(quoted, ", "), core.QuoteIdentifier(table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	var out []map[string]any
	err = scanEach(rows, func() error {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = core.QuoteIdentifier(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		core.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}
