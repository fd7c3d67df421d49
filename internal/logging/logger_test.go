package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"notice", LevelNotice},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelName(t *testing.T) {
	if got := LevelName(LevelNotice); got != "NOTICE" {
		t.Errorf("LevelName(LevelNotice) = %q, want NOTICE", got)
	}
	if got := LevelName(slog.LevelWarn); got != "WARN" {
		t.Errorf("LevelName(LevelWarn) = %q, want WARN", got)
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		subs     map[string]any
		want     string
	}{
		{"no subs", "plain", nil, "plain"},
		{"single", "No node found with the ID @nid.", map[string]any{"@nid": 7}, "No node found with the ID 7."},
		{
			"longest key first",
			"@nid/@nid_parent",
			map[string]any{"@nid": 1, "@nid_parent": 2},
			"1/2",
		},
		{"unused key", "hello", map[string]any{"@x": 1}, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.template, tt.subs); got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChannel_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: renameLevels,
	}))
	ch := NewChannel("simple_struct", logger)

	ch.Log(context.Background(), LevelNotice, "No referenced entities found for field: @reference on node ID: @nid",
		Subs{"@reference": "field_participante", "@nid": 10})

	out := buf.String()
	for _, want := range []string{
		"level=NOTICE",
		`msg="No referenced entities found for field: field_participante on node ID: 10"`,
		"channel=simple_struct",
		"reference=field_participante",
		"nid=10",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestChannel_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ch := NewChannel("simple_struct", logger)

	ch.Log(context.Background(), LevelNotice, "quiet", nil)
	if buf.Len() != 0 {
		t.Errorf("notice should be filtered at warn level, got %q", buf.String())
	}
}
