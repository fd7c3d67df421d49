// Package core provides the business logic for rebuilding flat report tables
// from a CMS entity graph.
//
// The package is independent of any transport or storage engine. Entities are
// read through an [entity.Store] and rows written through a [Sink]; web
// handlers, CLI tools and tests all drive the same [Service].
//
// # Report Registry
//
// Reports are registered at init time using [Register]. Each
// [ReportDefinition] names its destination table, the content type whose
// nodes form the work list, the typed columns and a [BuildRowsFunc] that
// flattens one root into rows:
//
//	core.Register(ReportDefinition{
//	    Info:     TableInfo{Key: "simple_struct_data", Group: "PREDES"},
//	    RootType: "evento",
//	    Columns:  []Column{{Name: "root_id", Type: ColumnBigInt}},
//	    BuildRows: buildRows,
//	})
//
// # Runs
//
// A run rebuilds one table from scratch as a [Batch]:
//
//  1. Start truncates the table and enumerates the root nodes once
//  2. Each root becomes one [Operation], executed in order
//  3. Rows are inserted one by one, or buffered into COPY batches of
//     Config.Flatten.BatchSize when the sink is a [BulkSink]
//  4. Finished emits exactly one success or failure [Message]
//
// Runs never retry and never roll back. A failed run leaves whatever the
// truncate and the inserts before the failure left behind. A [RunLimiter]
// keeps a second run from racing on the same truncate-then-insert sequence.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError]:
//
//   - RUN001-RUN004: run errors (in progress, not found, cancelled, timeout)
//   - TBL001: unknown report
//   - DB001-DB006: storage errors (connections, timeouts, missing tables)
package core
