// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID     = "run_id"
	FieldRequestID = "request_id"
	FieldChannelID = "channel_id"
	FieldProgramID = "program_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldAttempt   = "attempt"

	// Guide fields
	FieldDay     = "day"
	FieldWindow  = "window"
	FieldBatch   = "batch"
	FieldCountry = "country"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
