package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(ReportDefinition{Info: TableInfo{Key: "b_report", Group: "B"}})
	Register(ReportDefinition{
		Info:    TableInfo{Key: "a_two", Group: "A"},
		Columns: []Column{{Name: "root_id", Type: ColumnBigInt}, {Name: "title", Type: ColumnText}},
	})
	Register(ReportDefinition{Info: TableInfo{Key: "a_one", Group: "A"}})

	if ReportCount() != 3 {
		t.Errorf("ReportCount() = %d, want 3", ReportCount())
	}

	def, ok := Get("a_two")
	if !ok {
		t.Fatal("Get(a_two) not found")
	}
	if diff := cmp.Diff([]string{"root_id", "title"}, def.Info.Columns); diff != "" {
		t.Errorf("Info.Columns mismatch (-want +got):\n%s", diff)
	}

	if _, ok := Get("missing"); ok {
		t.Error("Get(missing) should not be found")
	}

	var keys []string
	for _, d := range All() {
		keys = append(keys, d.Info.Key)
	}
	if diff := cmp.Diff([]string{"a_one", "a_two", "b_report"}, keys); diff != "" {
		t.Errorf("All() order mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"A", "B"}, Groups()); diff != "" {
		t.Errorf("Groups() mismatch (-want +got):\n%s", diff)
	}
	if n := len(ByGroup("A")); n != 2 {
		t.Errorf("len(ByGroup(A)) = %d, want 2", n)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(ReportDefinition{Info: TableInfo{Key: "dup"}})
	defer func() {
		if recover() == nil {
			t.Error("Register with a duplicate key should panic")
		}
	}()
	Register(ReportDefinition{Info: TableInfo{Key: "dup"}})
}
