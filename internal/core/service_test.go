package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/simplestruct/internal/config"
	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/JonMunkholm/simplestruct/internal/resolver"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testTable = "item_children"

func testConfig() *config.Config {
	return &config.Config{
		Flatten: config.FlattenConfig{
			BatchSize:     2,
			Timeout:       time.Minute,
			ResetTimeout:  time.Second,
			MaxConcurrent: 1,
			MaxWaitTime:   50 * time.Millisecond,
		},
	}
}

// childRows emits one row per field_child reference of a root.
func childRows(ctx context.Context, r *resolver.Resolver, root *entity.Entity) ([]Row, error) {
	var rows []Row
	for _, child := range r.AllReferences(ctx, root, "field_child") {
		rows = append(rows, Row{
			"root_id":     root.ID,
			"child_title": r.ScalarField(child, entity.TitleField),
		})
	}
	return rows, nil
}

func registerTestReport(t *testing.T, build BuildRowsFunc) ReportDefinition {
	t.Helper()
	Clear()
	t.Cleanup(Clear)

	def := ReportDefinition{
		Info:     TableInfo{Key: testTable, Group: "TEST", Label: "Item children"},
		RootType: "item",
		Columns: []Column{
			{Name: "root_id", Type: ColumnBigInt},
			{Name: "child_title", Type: ColumnText, Nullable: true},
		},
		BuildRows: build,
	}
	Register(def)
	return def
}

func itemStore() *entity.MemoryStore {
	node := func(id int64, typ, title string, children ...int64) *entity.Entity {
		fields := map[string][]entity.Item{}
		if typ == "item" {
			items := make([]entity.Item, len(children))
			for i, c := range children {
				items[i] = entity.Item{TargetID: c}
			}
			fields["field_child"] = items
		}
		return &entity.Entity{ID: id, Kind: entity.KindNode, Type: typ, Title: title, Published: true, Fields: fields}
	}
	return entity.NewMemoryStore(
		node(1, "child", "one"),
		node(2, "child", "two"),
		node(3, "child", "three"),
		node(10, "item", "first", 1, 2),
		node(11, "item", "second"),
		node(12, "item", "third", 3),
		node(20, "other", "ignored"),
	)
}

func newTestService(t *testing.T, store entity.Store, sink Sink, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(store, sink, testConfig(), opts...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	store, sink, cfg := itemStore(), NewMemorySink(), testConfig()
	tests := []struct {
		name  string
		store entity.Store
		sink  Sink
		cfg   *config.Config
	}{
		{"nil store", nil, sink, cfg},
		{"nil sink", store, nil, cfg},
		{"nil config", store, sink, nil},
	}
	for _, tt := range tests {
		if _, err := NewService(tt.store, tt.sink, tt.cfg); err == nil {
			t.Errorf("%s: NewService() expected error", tt.name)
		}
	}
}

func TestRunSync(t *testing.T) {
	registerTestReport(t, childRows)
	sink := NewMemorySink()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := newTestService(t, itemStore(), sink, WithMetrics(metrics))

	ctx := WithRequester(context.Background(), Requester{IP: "10.0.0.7"})
	result, err := svc.RunSync(ctx, testTable)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	if !result.Success {
		t.Fatalf("Success = false, error = %s", result.Error)
	}
	if result.TotalRoots != 3 || result.Processed != 3 || result.Rows != 3 {
		t.Errorf("result = %+v, want 3 roots, 3 processed, 3 rows", result)
	}
	if result.RequestedBy != "10.0.0.7" {
		t.Errorf("RequestedBy = %q, want %q", result.RequestedBy, "10.0.0.7")
	}

	want := []Row{
		{"root_id": int64(10), "child_title": pgtype.Text{String: "one", Valid: true}},
		{"root_id": int64(10), "child_title": pgtype.Text{String: "two", Valid: true}},
		{"root_id": int64(12), "child_title": pgtype.Text{String: "three", Valid: true}},
	}
	if diff := cmp.Diff(want, sink.Rows(testTable)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	msgs := svc.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len(Messages()) = %d, want 1", len(msgs))
	}
	if msgs[0].Type != MessageStatus || !strings.Contains(msgs[0].Text, "3 rows from 3 item nodes") {
		t.Errorf("message = %+v", msgs[0])
	}

	runs := svc.ListRuns()
	if len(runs) != 1 || runs[0].RunID != result.RunID {
		t.Errorf("ListRuns() = %+v, want the finished run", runs)
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues(testTable, "success")); got != 1 {
		t.Errorf("runs_total{success} = %v, want 1", got)
	}
}

func TestRunSync_UnknownReport(t *testing.T) {
	registerTestReport(t, childRows)
	svc := newTestService(t, itemStore(), NewMemorySink())

	if _, err := svc.RunSync(context.Background(), "nope"); !errors.Is(err, ErrUnknownReport) {
		t.Errorf("RunSync() error = %v, want ErrUnknownReport", err)
	}
	if _, err := svc.StartRun(context.Background(), "nope"); !errors.Is(err, ErrUnknownReport) {
		t.Errorf("StartRun() error = %v, want ErrUnknownReport", err)
	}
}

func TestRunSync_RootTypeOverride(t *testing.T) {
	registerTestReport(t, func(_ context.Context, _ *resolver.Resolver, root *entity.Entity) ([]Row, error) {
		return []Row{{"root_id": root.ID}}, nil
	})
	cfg := testConfig()
	cfg.Flatten.RootType = "other"
	sink := NewMemorySink()
	svc, err := NewService(itemStore(), sink, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RunSync(context.Background(), testTable); err != nil {
		t.Fatal(err)
	}
	rows := sink.Rows(testTable)
	if len(rows) != 1 || rows[0]["root_id"] != int64(20) {
		t.Errorf("rows = %v, want a single row for node 20", rows)
	}
}

func TestRunSync_BuildError(t *testing.T) {
	registerTestReport(t, func(context.Context, *resolver.Resolver, *entity.Entity) ([]Row, error) {
		return nil, errors.New("connection refused")
	})
	svc := newTestService(t, itemStore(), NewMemorySink())

	result, err := svc.RunSync(context.Background(), testTable)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.Success {
		t.Fatal("Success = true, want false")
	}
	if !strings.Contains(result.Error, "item 10") {
		t.Errorf("Error = %q, want the failing root label", result.Error)
	}

	msgs := svc.Messages()
	if len(msgs) != 1 || msgs[0].Type != MessageError {
		t.Fatalf("Messages() = %+v, want one error", msgs)
	}
	if !strings.Contains(msgs[0].Text, "finished with an error") || !strings.Contains(msgs[0].Text, "DB001") {
		t.Errorf("message text = %q", msgs[0].Text)
	}
}

// gatedBuild blocks every root until gate is closed or the run ends.
func gatedBuild(started chan<- struct{}, gate <-chan struct{}) BuildRowsFunc {
	return func(ctx context.Context, r *resolver.Resolver, root *entity.Entity) ([]Row, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return childRows(ctx, r, root)
	}
}

func TestStartRun_ProgressAndResult(t *testing.T) {
	started := make(chan struct{}, 1)
	gate := make(chan struct{})
	registerTestReport(t, gatedBuild(started, gate))
	svc := newTestService(t, itemStore(), NewMemorySink())
	ctx := context.Background()

	runID, err := svc.StartRun(ctx, testTable)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	<-started

	progress, err := svc.SubscribeProgress(runID)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}
	first := <-progress
	if first.Phase != PhaseProcessing || first.TotalRoots != 3 {
		t.Errorf("first progress = %+v, want processing over 3 roots", first)
	}

	close(gate)

	var last RunProgress
	for p := range progress {
		last = p
	}
	if last.Phase != PhaseComplete {
		t.Errorf("final phase = %s, want %s", last.Phase, PhaseComplete)
	}

	resultCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result, err := svc.GetRunResult(resultCtx, runID)
	if err != nil {
		t.Fatalf("GetRunResult() error = %v", err)
	}
	if !result.Success || result.Rows != 3 {
		t.Errorf("result = %+v, want success with 3 rows", result)
	}

	// A finished run still answers subscriptions with its final state.
	done, err := svc.SubscribeProgress(runID)
	if err != nil {
		t.Fatalf("SubscribeProgress() after finish error = %v", err)
	}
	if p := <-done; p.Phase != PhaseComplete || p.Percent() != 100 {
		t.Errorf("progress after finish = %+v", p)
	}
	if _, open := <-done; open {
		t.Error("channel for a finished run should be closed")
	}
}

func TestStartRun_RejectsOverlappingRun(t *testing.T) {
	started := make(chan struct{}, 1)
	gate := make(chan struct{})
	registerTestReport(t, gatedBuild(started, gate))
	sink := NewMemorySink()
	svc := newTestService(t, itemStore(), sink)
	ctx := context.Background()

	runID, err := svc.StartRun(ctx, testTable)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	<-started

	if _, err := svc.StartRun(ctx, testTable); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second StartRun() error = %v, want ErrRunInProgress", err)
	}
	if err := svc.Reset(ctx, testTable); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Reset() during a run error = %v, want ErrRunInProgress", err)
	}
	if st := svc.RunLimiterStatus(); st.Active != 1 || st.Available != 0 {
		t.Errorf("RunLimiterStatus() = %+v, want 1 active", st)
	}

	close(gate)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := svc.GetRunResult(waitCtx, runID); err != nil {
		t.Fatalf("GetRunResult() error = %v", err)
	}
	if err := svc.WaitForRuns(waitCtx); err != nil {
		t.Fatalf("WaitForRuns() error = %v", err)
	}

	if err := svc.Reset(ctx, testTable); err != nil {
		t.Errorf("Reset() after the run error = %v", err)
	}
	if sink.Count(testTable) != 0 {
		t.Errorf("rows after Reset = %d, want 0", sink.Count(testTable))
	}
}

func TestCancelRun(t *testing.T) {
	started := make(chan struct{}, 1)
	gate := make(chan struct{})
	defer close(gate)
	registerTestReport(t, gatedBuild(started, gate))
	svc := newTestService(t, itemStore(), NewMemorySink())
	ctx := context.Background()

	runID, err := svc.StartRun(ctx, testTable)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	<-started

	if err := svc.CancelRun(runID); err != nil {
		t.Fatalf("CancelRun() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result, err := svc.GetRunResult(waitCtx, runID)
	if err != nil {
		t.Fatalf("GetRunResult() error = %v", err)
	}
	if result.Success {
		t.Error("cancelled run should not succeed")
	}

	p, err := svc.GetRunProgress(runID)
	if err != nil {
		t.Fatalf("GetRunProgress() error = %v", err)
	}
	if p.Phase != PhaseCancelled {
		t.Errorf("Phase = %s, want %s", p.Phase, PhaseCancelled)
	}

	msgs := svc.Messages()
	if len(msgs) != 1 || msgs[0].Type != MessageError {
		t.Errorf("Messages() = %+v, want one error", msgs)
	}
}

func TestRunLookups_UnknownRun(t *testing.T) {
	registerTestReport(t, childRows)
	svc := newTestService(t, itemStore(), NewMemorySink())

	if _, err := svc.GetRunProgress("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRunProgress() error = %v, want ErrRunNotFound", err)
	}
	if _, err := svc.SubscribeProgress("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("SubscribeProgress() error = %v, want ErrRunNotFound", err)
	}
	if err := svc.CancelRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("CancelRun() error = %v, want ErrRunNotFound", err)
	}
	if _, err := svc.GetRunResult(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRunResult() error = %v, want ErrRunNotFound", err)
	}
}

func TestResetAll(t *testing.T) {
	registerTestReport(t, childRows)
	Register(ReportDefinition{Info: TableInfo{Key: "second_table", Group: "TEST"}})
	sink := NewMemorySink()
	ctx := context.Background()
	for _, table := range []string{testTable, "second_table"} {
		if err := sink.InsertRow(ctx, table, Row{"root_id": int64(1)}); err != nil {
			t.Fatal(err)
		}
	}
	svc := newTestService(t, itemStore(), sink)

	if err := svc.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}
	if sink.Count(testTable) != 0 || sink.Count("second_table") != 0 {
		t.Error("ResetAll() should empty every report table")
	}
	if err := svc.Reset(ctx, "nope"); !errors.Is(err, ErrUnknownReport) {
		t.Errorf("Reset(nope) error = %v, want ErrUnknownReport", err)
	}
}

type schemaRecorder struct {
	*MemorySink
	tables []string
}

func (s *schemaRecorder) EnsureTable(_ context.Context, def ReportDefinition) error {
	s.tables = append(s.tables, def.Info.Key)
	return nil
}

func TestEnsureSchema(t *testing.T) {
	registerTestReport(t, childRows)
	rec := &schemaRecorder{MemorySink: NewMemorySink()}
	svc := newTestService(t, itemStore(), rec)

	if err := svc.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if diff := cmp.Diff([]string{testTable}, rec.tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}

	// Sinks without schema support are left alone.
	plain := newTestService(t, itemStore(), NewMemorySink())
	if err := plain.EnsureSchema(context.Background()); err != nil {
		t.Errorf("EnsureSchema() on a plain sink error = %v", err)
	}
}

func TestWithNotifier(t *testing.T) {
	registerTestReport(t, childRows)
	extra := NewMessenger(0)
	svc := newTestService(t, itemStore(), NewMemorySink(), WithNotifier(extra))

	if _, err := svc.RunSync(context.Background(), testTable); err != nil {
		t.Fatal(err)
	}
	if n := len(extra.All()); n != 1 {
		t.Errorf("extra notifier received %d messages, want 1", n)
	}
	if n := len(svc.DrainMessages()); n != 1 {
		t.Errorf("DrainMessages() = %d messages, want 1", n)
	}
	if n := len(svc.Messages()); n != 0 {
		t.Errorf("Messages() after drain = %d, want 0", n)
	}
}

func TestListReports(t *testing.T) {
	registerTestReport(t, childRows)
	svc := newTestService(t, itemStore(), NewMemorySink())

	reports := svc.ListReports()
	if len(reports) != 1 || reports[0].Key != testTable {
		t.Fatalf("ListReports() = %+v", reports)
	}
	if diff := cmp.Diff([]string{"root_id", "child_title"}, reports[0].Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
}

func TestStartRun_PanickingBuild(t *testing.T) {
	registerTestReport(t, func(context.Context, *resolver.Resolver, *entity.Entity) ([]Row, error) {
		panic("boom")
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := newTestService(t, itemStore(), NewMemorySink(), WithMetrics(metrics))
	ctx := context.Background()

	runID, err := svc.StartRun(ctx, testTable)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result, err := svc.GetRunResult(waitCtx, runID)
	if err != nil {
		t.Fatalf("GetRunResult() error = %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "internal error: boom") {
		t.Errorf("result = %+v, want failure carrying the panic", result)
	}
	if err := svc.WaitForRuns(waitCtx); err != nil {
		t.Fatalf("WaitForRuns() error = %v", err)
	}

	if msgs := svc.Messages(); len(msgs) != 1 || msgs[0].Type != MessageError {
		t.Errorf("Messages() = %+v, want one error", msgs)
	}
	if got := testutil.ToFloat64(metrics.activeRuns); got != 0 {
		t.Errorf("active_runs = %v, want 0", got)
	}
	if runs := svc.ListRuns(); len(runs) != 1 || runs[0].RunID != runID {
		t.Errorf("ListRuns() = %+v, want the failed run", runs)
	}
}

func TestRunSync_PanickingBuild(t *testing.T) {
	registerTestReport(t, func(context.Context, *resolver.Resolver, *entity.Entity) ([]Row, error) {
		panic("boom")
	})
	svc := newTestService(t, itemStore(), NewMemorySink())

	result, err := svc.RunSync(context.Background(), testTable)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if st := svc.RunLimiterStatus(); st.Active != 0 {
		t.Errorf("RunLimiterStatus() = %+v, want the slot released", st)
	}
}

// blockingQueryStore holds Query until the context ends.
type blockingQueryStore struct {
	*entity.MemoryStore
	started chan struct{}
}

func (s blockingQueryStore) Query(ctx context.Context, _ entity.Query) ([]int64, error) {
	close(s.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCancelRun_DuringEnumeration(t *testing.T) {
	registerTestReport(t, childRows)
	store := blockingQueryStore{MemoryStore: itemStore(), started: make(chan struct{})}
	svc := newTestService(t, store, NewMemorySink())
	ctx := context.Background()

	runID, err := svc.StartRun(ctx, testTable)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	<-store.started

	if err := svc.CancelRun(runID); err != nil {
		t.Fatalf("CancelRun() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := svc.GetRunResult(waitCtx, runID); err != nil {
		t.Fatalf("GetRunResult() error = %v", err)
	}

	p, err := svc.GetRunProgress(runID)
	if err != nil {
		t.Fatalf("GetRunProgress() error = %v", err)
	}
	if p.Phase != PhaseCancelled {
		t.Errorf("Phase = %s, want %s (error %q)", p.Phase, PhaseCancelled, p.Error)
	}
}
