package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Sink is the destination table store.
type Sink interface {
	// Truncate removes every row of table.
	Truncate(ctx context.Context, table string) error

	// InsertRow inserts one row given as column -> value.
	InsertRow(ctx context.Context, table string, row Row) error
}

// BulkSink is implemented by sinks that can load many rows at once
// (COPY on PostgreSQL, a prepared statement in one transaction on SQLite).
// Values in each row follow the order of columns.
type BulkSink interface {
	Sink
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// SchemaSink is implemented by sinks that can create report tables.
type SchemaSink interface {
	EnsureTable(ctx context.Context, def ReportDefinition) error
}

// SortedColumns returns the keys of row in lexical order, for sinks that
// build statements from a single Row.
func SortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// rowWriter buffers rows for a BulkSink and flushes every batchSize rows.
// With a plain Sink, or batchSize < 2, each row is inserted immediately.
type rowWriter struct {
	sink      Sink
	bulk      BulkSink
	table     string
	columns   []string
	batchSize int

	pending [][]any
	written int64
}

func newRowWriter(sink Sink, def ReportDefinition, batchSize int) *rowWriter {
	w := &rowWriter{
		sink:      sink,
		table:     def.Info.Key,
		columns:   def.ColumnNames(),
		batchSize: batchSize,
	}
	if bulk, ok := sink.(BulkSink); ok && batchSize > 1 {
		w.bulk = bulk
		w.pending = make([][]any, 0, batchSize)
	}
	return w
}

// Write inserts or buffers one row.
func (w *rowWriter) Write(ctx context.Context, row Row) error {
	if w.bulk == nil {
		if err := w.sink.InsertRow(ctx, w.table, row); err != nil {
			return fmt.Errorf("insert into %s: %w", w.table, err)
		}
		w.written++
		return nil
	}

	values := make([]any, len(w.columns))
	for i, c := range w.columns {
		values[i] = row[c]
	}
	w.pending = append(w.pending, values)
	if len(w.pending) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered rows.
func (w *rowWriter) Flush(ctx context.Context) error {
	if w.bulk == nil || len(w.pending) == 0 {
		return nil
	}
	n, err := w.bulk.InsertRows(ctx, w.table, w.columns, w.pending)
	if err != nil {
		return fmt.Errorf("bulk insert into %s: %w", w.table, err)
	}
	w.written += n
	w.pending = w.pending[:0]
	return nil
}

// Written returns the number of rows stored so far.
func (w *rowWriter) Written() int64 {
	return w.written
}

// Compile-time contract assertion.
var _ BulkSink = (*MemorySink)(nil)

// MemorySink is an in-process destination used for tests and the memory
// store driver.
type MemorySink struct {
	mu     sync.RWMutex
	tables map[string][]Row

	// FailInsertAfter makes every insert after that many rows fail. Zero
	// disables it.
	FailInsertAfter int
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string][]Row)}
}

func (s *MemorySink) Truncate(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = nil
	return nil
}

func (s *MemorySink) InsertRow(ctx context.Context, table string, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsertAfter > 0 && len(s.tables[table]) >= s.FailInsertAfter {
		return fmt.Errorf("insert into %s: connection reset by peer", table)
	}
	c := make(Row, len(row))
	for k, v := range row {
		c[k] = v
	}
	s.tables[table] = append(s.tables[table], c)
	return nil
}

func (s *MemorySink) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var n int64
	for _, values := range rows {
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		if err := s.InsertRow(ctx, table, row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Rows returns a copy of the rows stored in table.
func (s *MemorySink) Rows(table string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, len(s.tables[table]))
	copy(out, s.tables[table])
	return out
}

// Count returns the number of rows in table.
func (s *MemorySink) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}
