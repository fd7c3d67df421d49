package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"run in progress", ErrRunInProgress, "RUN001"},
		{"wrapped run in progress", fmt.Errorf("start run: %w", ErrRunInProgress), "RUN001"},
		{"run not found", fmt.Errorf("run not found: abc"), "RUN002"},
		{"batch cancelled", fmt.Errorf("%w: context canceled", ErrBatchCancelled), "RUN003"},
		{"deadline", errors.New("node 10: context deadline exceeded"), "RUN004"},
		{"unknown report", fmt.Errorf("%w: nope", ErrUnknownReport), "TBL001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB001"},
		{"connection reset", errors.New("insert into simple_struct_data: connection reset by peer"), "DB002"},
		{"postgres missing relation", errors.New(`ERROR: relation "simple_struct_data" does not exist (SQLSTATE 42P01)`), "DB005"},
		{"sqlite missing table", errors.New("no such table: simple_struct_data"), "DB005"},
		{"sqlite locked", errors.New("database is locked (5) (SQLITE_BUSY)"), "DB006"},
		{"case insensitive", errors.New("CONNECTION REFUSED"), "DB001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrRunInProgress)

	expected := "Another run is already rebuilding reports (Code: RUN001). Wait for it to finish and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("connection refused"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := errors.New("dial tcp: connection refused")
	userErr := NewUserError(techErr)
	if userErr.Error() != "Unable to connect to database" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	if !errors.Is(userErr, techErr) {
		t.Error("Unwrap() should return original error")
	}
}
