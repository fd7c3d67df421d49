package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("FIXTURES_PATH", filepath.Join("..", "..", "fixtures"))
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReportsCmd(t *testing.T) {
	out, err := execute(t, "reports")
	if err != nil {
		t.Fatalf("reports error = %v", err)
	}
	if !strings.Contains(out, "simple_struct_data") || !strings.Contains(out, "PREDES") {
		t.Errorf("output = %q, want the PREDES report", out)
	}
}

func TestRunCmd(t *testing.T) {
	out, err := execute(t, "run")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(out, "4 rows from 3/3 roots") {
		t.Errorf("output = %q, want 4 rows from 3 roots", out)
	}
	if !strings.Contains(out, "[status]") {
		t.Errorf("output = %q, want the status message", out)
	}
}

func TestRunCmd_RootTypeFlag(t *testing.T) {
	out, err := execute(t, "run", "--root-type", "actividad")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(out, "0 rows from 2/2 roots") {
		t.Errorf("output = %q, want 0 rows from the 2 actividad nodes", out)
	}
}

func TestRunCmd_UnknownTable(t *testing.T) {
	if _, err := execute(t, "run", "nope"); err == nil || !strings.Contains(err.Error(), "unknown report") {
		t.Errorf("run nope error = %v, want unknown report", err)
	}
}

func TestResetCmd(t *testing.T) {
	out, err := execute(t, "reset", "--all")
	if err != nil {
		t.Fatalf("reset --all error = %v", err)
	}
	if !strings.HasPrefix(out, "reset ") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "reset", "--all", "simple_struct_data"); err == nil {
		t.Error("reset --all with a table should fail")
	}
}

func TestSeedCmd_RejectsMemory(t *testing.T) {
	if _, err := execute(t, "seed"); err == nil || !strings.Contains(err.Error(), "memory") {
		t.Errorf("seed error = %v, want memory driver rejection", err)
	}
}

func TestVocabCmd(t *testing.T) {
	out, err := execute(t, "vocab", "distrito")
	if err != nil {
		t.Fatalf("vocab error = %v", err)
	}
	norte := strings.Index(out, "Norte")
	barrio := strings.Index(out, "Barrio Alto")
	sur := strings.Index(out, "Sur")
	if norte < 0 || barrio < norte || sur < barrio {
		t.Errorf("output = %q, want Norte, Barrio Alto, Sur in tree order", out)
	}
}
