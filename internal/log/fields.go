package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldEventKey  = "event_key"
	FieldUserID    = "user_id"
	FieldRunID     = "run_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Signup fields
	FieldRole     = "role"
	FieldActivity = "activity"
	FieldOutcome  = "outcome"

	// Ledger fields
	FieldSheet = "sheet"
	FieldRow   = "row"
	FieldCell  = "cell"

	// Chat fields
	FieldChannelID = "channel_id"
	FieldMessageID = "message_id"
)
