package core

// # Error Codes Reference
//
// User-facing messages with codes for support reference, grouped by
// category.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB002 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB003 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
//	DB004 - Deadlock: Database was busy with conflicting operations
//	        Patterns: "deadlock"
//
//	DB005 - Missing table: Destination table has not been created
//	        Patterns: "does not exist", "no such table"
//
//	DB006 - Database locked: SQLite database file is locked
//	        Patterns: "database is locked"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run in progress: Another run is rebuilding reports
//	         Patterns: "run in progress"
//
//	RUN002 - Run not found: Run id is unknown or expired
//	         Patterns: "run not found"
//
//	RUN003 - Run cancelled: Run was abandoned
//	         Patterns: "batch cancelled", "context canceled"
//
//	RUN004 - Run timeout: Run exceeded its time limit
//	         Patterns: "context deadline exceeded"
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Unknown report: Report is not configured
//	         Patterns: "unknown report"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Run errors first: their wrapped causes often contain database text.
	{
		pattern: "run in progress",
		msg: UserMessage{
			Message: "Another run is already rebuilding reports",
			Action:  "Wait for it to finish and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Run not found",
			Action:  "The run may have expired. Start a new run",
			Code:    "RUN002",
		},
	},
	{
		pattern: "batch cancelled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Run exceeded its time limit",
			Action:  "Raise FLATTEN_TIMEOUT or try again later",
			Code:    "RUN004",
		},
	},
	{
		pattern: "unknown report",
		msg: UserMessage{
			Message: "Unknown report",
			Action:  "This report is not configured",
			Code:    "TBL001",
		},
	},

	// Database errors.
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Destination table has not been created",
			Action:  "Restart the server to apply the schema",
			Code:    "DB005",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "Destination table has not been created",
			Action:  "Restart the server to apply the schema",
			Code:    "DB005",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database file is locked by another process",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
