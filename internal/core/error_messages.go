package core

// error_messages.go maps technical errors to messages safe to show users.
//
// Codes are grouped by category so support staff can find the cause:
//
//	DB001-DB099     store errors (constraints, connectivity, throttling)
//	FILE001-FILE099 problems with the uploaded file
//	IMP001-IMP099   import job control (busy, cancelled, timed out, interrupted)
//	ENT001-ENT099   taxonomy entity lookups
//	REQ001          malformed request bodies
//	RATE001         request throttling
//	ERR000          anything unrecognised; check the logs
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is the user-facing form of an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Matched first since the wrapped cause follows in the message.
	{"import interrupted", UserMessage{"The file stopped arriving part way through the import", "Rows read before the failure were saved; run the import again to finish", "IMP006"}},

	// Store constraints and connectivity.
	{"duplicate key", UserMessage{"This entry already exists", "Refresh the list and try again", "DB001"}},
	{"violates unique", UserMessage{"This entry already exists", "Refresh the list and try again", "DB001"}},
	{"parent entity not found", UserMessage{"A parent make or model is missing", "Create the parent first", "DB002"}},
	{"connection refused", UserMessage{"Unable to reach the taxonomy store", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"The connection to the taxonomy store was interrupted", "Please try again", "DB004"}},
	{"provisionedthroughputexceeded", UserMessage{"The taxonomy store is busy", "Please try again shortly", "DB005"}},
	{"throttl", UserMessage{"The taxonomy store is busy", "Please try again shortly", "DB005"}},
	{"deadlock", UserMessage{"The taxonomy store was busy with conflicting writes", "Please try again", "DB006"}},

	// Uploaded file.
	{"request body too large", UserMessage{"The file exceeds the maximum upload size", "Split the file into smaller parts", "FILE001"}},
	{"invalid csv", UserMessage{"The file is not a valid taxonomy CSV", "Check the header row and column layout", "FILE002"}},
	{"no file provided", UserMessage{"No file was sent", "Attach a CSV file to the request", "FILE003"}},

	// Import control.
	{"too many concurrent imports", UserMessage{"Other imports are still running", "Please wait a moment and try again", "IMP001"}},
	{"import cancelled", UserMessage{"The import was cancelled", "Start a new import when ready", "IMP002"}},
	{"import not found", UserMessage{"No running import has that id", "It may already have finished", "IMP003"}},
	{"context deadline exceeded", UserMessage{"The import took too long", "Try a smaller file or try again later", "IMP004"}},
	{"context canceled", UserMessage{"The request was cancelled", "Please try again", "IMP005"}},
	{"timeout", UserMessage{"The operation timed out", "Please try again later", "IMP004"}},

	// Entities.
	{"entity not found", UserMessage{"The requested entry does not exist", "Check the id and try again", "ENT001"}},

	{"invalid request body", UserMessage{"The request body could not be read", "Send a JSON object with the documented fields", "REQ001"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError returns the user message for err, or the ERR000 fallback when
// no pattern matches. A nil error maps to the zero UserMessage.
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

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
