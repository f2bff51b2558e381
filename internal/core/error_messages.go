// Package core provides the business logic for upload sessions.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When users encounter errors, they can quote the error code to
// support staff for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Destination Errors (SHT001-SHT099)
//
// Errors returned by the Smartsheet API:
//
//	SHT001 - Access denied: The API token was rejected
//	         Action: Check that the access token is valid and has sheet access
//	         Patterns: "smartsheet: auth"
//
//	SHT002 - Rate limited: Too many API requests
//	         Action: Please wait a moment before trying again
//	         Patterns: "smartsheet: rate_limited"
//
//	SHT003 - Rejected request: The destination rejected the upload
//	         Action: Download failed rows to see which values were refused
//	         Patterns: "smartsheet: validation"
//
//	SHT004 - Service error: Smartsheet is having trouble
//	         Action: Please try again in a few moments
//	         Patterns: "smartsheet: server"
//
//	SHT005 - Connection failed: Unable to reach Smartsheet
//	         Action: Check your network connection and try again
//	         Patterns: "smartsheet: transport"
//
//	SHT006 - Sheet URL not recognized
//	         Action: Paste the sheet link from your browser, or the numeric sheet ID
//	         Patterns: "could not extract sheet id", "sheet url is empty"
//
// # File Errors (CSV001-CSV099)
//
// Errors parsing the Cin7 export:
//
//	CSV001 - Empty export: The file contains no rows
//	         Action: Re-export the report from Cin7 and try again
//	         Patterns: "export contains no rows"
//
//	CSV002 - No header found: Could not locate the column header row
//	         Action: Upload the CSV exactly as exported, without editing
//	         Patterns: "header row not found"
//
//	CSV003 - No data rows: The export has headers but no data
//	         Action: Check the report filters in Cin7
//	         Patterns: "no data rows", "no uploadable rows"
//
//	CSV004 - Unreadable file: The file is not valid CSV
//	         Action: Export the report again as CSV
//	         Patterns: "parse csv"
//
// # Mapping Errors (MAP001-MAP099)
//
// Errors reconciling export columns with sheet columns:
//
//	MAP001 - Schema mismatch: The export and sheet cannot be lined up
//	         Action: Check that the destination sheet has columns
//	         Patterns: "schema error"
//
// # Session Errors (SES001-SES099)
//
// Errors managing upload sessions:
//
//	SES001 - System busy: Too many uploads in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many concurrent upload sessions"
//
//	SES002 - Session expired: Upload session not found
//	         Action: The upload may have expired. Please start a new upload
//	         Patterns: "session not found"
//
//	SES003 - Request cancelled
//	         Action: Start a new upload when ready
//	         Patterns: "context canceled"
//
//	SES004 - Request timeout: The upload ran too long
//	         Action: Try uploading a smaller file or check your connection
//	         Patterns: "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. Check the associated patterns to understand what triggered it
//  3. Review the suggested action to guide the user
//  4. If ERR000, check application logs for the original technical error
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Patterns are matched using strings.Contains, so partial matches
// work. The first matching pattern wins, so order matters: more specific
// patterns come before general ones.
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the package documentation at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Destination API Errors (SHT001-SHT006)
	// =========================================================================
	{
		pattern: "smartsheet: auth",
		msg: UserMessage{
			Message: "The Smartsheet token was rejected",
			Action:  "Check that the access token is valid and has sheet access",
			Code:    "SHT001",
		},
	},
	{
		pattern: "smartsheet: rate_limited",
		msg: UserMessage{
			Message: "Smartsheet is throttling requests",
			Action:  "Please wait a moment before trying again",
			Code:    "SHT002",
		},
	},
	{
		pattern: "smartsheet: validation",
		msg: UserMessage{
			Message: "The destination rejected the upload",
			Action:  "Download failed rows to see which values were refused",
			Code:    "SHT003",
		},
	},
	{
		pattern: "smartsheet: server",
		msg: UserMessage{
			Message: "Smartsheet is having trouble",
			Action:  "Please try again in a few moments",
			Code:    "SHT004",
		},
	},
	{
		pattern: "smartsheet: transport",
		msg: UserMessage{
			Message: "Unable to reach Smartsheet",
			Action:  "Check your network connection and try again",
			Code:    "SHT005",
		},
	},
	{
		pattern: "could not extract sheet id",
		msg: UserMessage{
			Message: "The sheet URL was not recognized",
			Action:  "Paste the sheet link from your browser, or the numeric sheet ID",
			Code:    "SHT006",
		},
	},
	{
		pattern: "sheet url is empty",
		msg: UserMessage{
			Message: "No destination sheet was provided",
			Action:  "Paste the sheet link from your browser, or the numeric sheet ID",
			Code:    "SHT006",
		},
	},

	// =========================================================================
	// Export File Errors (CSV001-CSV004)
	// =========================================================================
	{
		pattern: "export contains no rows",
		msg: UserMessage{
			Message: "The export file is empty",
			Action:  "Re-export the report from Cin7 and try again",
			Code:    "CSV001",
		},
	},
	{
		pattern: "header row not found",
		msg: UserMessage{
			Message: "Could not find the column headers in the file",
			Action:  "Upload the CSV exactly as exported, without editing",
			Code:    "CSV002",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The export has headers but no data rows",
			Action:  "Check the report filters in Cin7",
			Code:    "CSV003",
		},
	},
	{
		pattern: "no uploadable rows",
		msg: UserMessage{
			Message: "Every row in the export was filtered out",
			Action:  "Check the report filters in Cin7",
			Code:    "CSV003",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The file could not be read as CSV",
			Action:  "Export the report again as CSV",
			Code:    "CSV004",
		},
	},

	// =========================================================================
	// Mapping Errors (MAP001)
	// =========================================================================
	{
		pattern: "schema error",
		msg: UserMessage{
			Message: "The export columns cannot be lined up with the sheet",
			Action:  "Check that the destination sheet has columns",
			Code:    "MAP001",
		},
	},

	// =========================================================================
	// Session Errors (SES001-SES004)
	// =========================================================================
	{
		pattern: "too many concurrent upload sessions",
		msg: UserMessage{
			Message: "Too many uploads in progress",
			Action:  "Please wait a moment and try again",
			Code:    "SES001",
		},
	},
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Upload session not found",
			Action:  "The upload may have expired. Please start a new upload",
			Code:    "SES002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Start a new upload when ready",
			Code:    "SES003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The upload ran too long",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "SES004",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the default message if no pattern matches, and an empty
// UserMessage for nil errors.
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

// IsUserFacing checks if an error matches a known pattern and should be
// shown to users as-is, rather than replaced by the generic fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
