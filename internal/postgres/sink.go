package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/simplestruct/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time contract assertions.
var (
	_ core.BulkSink   = (*Sink)(nil)
	_ core.SchemaSink = (*Sink)(nil)
)

// Sink writes report rows to PostgreSQL tables.
type Sink struct {
	pool *pgxpool.Pool
}

// NewSink returns a Sink over pool.
func NewSink(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool}
}

// Truncate empties table and restarts its surrogate ids so a rebuilt table
// is identical to the previous build.
func (s *Sink) Truncate(ctx context.Context, table string) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", core.QuoteIdentifier(table))
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

func (s *Sink) InsertRow(ctx context.Context, table string, row core.Row) error {
	cols := core.SortedColumns(row)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = core.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		core.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// InsertRows loads rows with COPY.
func (s *Sink) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

func (s *Sink) EnsureTable(ctx context.Context, def core.ReportDefinition) error {
	stmts := append([]string{core.CreateTableSQL(def, core.DialectPostgres)}, core.CreateIndexSQL(def)...)
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", def.Info.Key, err)
		}
	}
	return nil
}

// Count returns the number of rows in table.
func (s *Sink) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", core.QuoteIdentifier(table))
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
