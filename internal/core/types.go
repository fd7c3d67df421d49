package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/JonMunkholm/simplestruct/internal/resolver"
)

// ColumnType is the SQL type of a destination column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnBigInt
)

// Column describes one destination column.
type Column struct {
	Name     string     // Database column name
	Type     ColumnType // SQL type
	Nullable bool       // NULL allowed
}

// TableInfo contains display information about a report table.
type TableInfo struct {
	Key     string   `json:"key"`     // Destination table name: "simple_struct_data"
	Group   string   `json:"group"`   // Report family: "PREDES"
	Label   string   `json:"label"`   // Display name
	Columns []string `json:"columns"` // Column names in insert order
}

// Row is one flattened output record keyed by column name.
// Values are int64 for bigint columns and pgtype.Text for text columns.
type Row map[string]any

// BuildRowsFunc flattens one root entity into zero or more rows.
// A root with no leaf relationships yields no rows and no error.
type BuildRowsFunc func(ctx context.Context, r *resolver.Resolver, root *entity.Entity) ([]Row, error)

// ReportDefinition contains everything needed to rebuild one report table.
type ReportDefinition struct {
	Info      TableInfo
	RootType  string // Content type whose nodes are the batch work list
	Columns   []Column
	BuildRows BuildRowsFunc
}

// ColumnNames returns the column names in declaration order.
func (d ReportDefinition) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// RunPhase indicates the current stage of a run.
type RunPhase string

const (
	PhaseStarting   RunPhase = "starting"
	PhaseProcessing RunPhase = "processing"
	PhaseComplete   RunPhase = "complete"
	PhaseFailed     RunPhase = "failed"
	PhaseCancelled  RunPhase = "cancelled"
)

// RunProgress represents the current state of a run.
type RunProgress struct {
	RunID      string   `json:"runId"`
	TableKey   string   `json:"tableKey"`
	Phase      RunPhase `json:"phase"`
	TotalRoots int      `json:"totalRoots"`
	Processed  int      `json:"processed"`
	Rows       int64    `json:"rows"`
	Error      string   `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
func (p RunProgress) Percent() int {
	if p.TotalRoots > 0 {
		return (p.Processed * 100) / p.TotalRoots
	}
	if p.Phase == PhaseComplete {
		return 100
	}
	return 0
}

// RunResult contains the final result of a run.
type RunResult struct {
	RunID       string        `json:"runId"`
	TableKey    string        `json:"tableKey"`
	Success     bool          `json:"success"`
	TotalRoots  int           `json:"totalRoots"`
	Processed   int           `json:"processed"`
	Rows        int64         `json:"rows"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	RequestedBy string        `json:"requestedBy,omitempty"`
	Error       string        `json:"error,omitempty"` // Non-empty if the run failed
}
