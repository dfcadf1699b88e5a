// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by every span in the pipeline.
const (
	EventKeyKey = "signup.event_key"
	RunIDKey    = "signup.run_id"
	RoleKey     = "signup.role"
	ActionKey   = "signup.action"
	OutcomeKey  = "signup.outcome"

	LedgerOpKey    = "ledger.op"
	LedgerSheetKey = "ledger.sheet"
)

// SignupAttributes describes a claim or release request.
func SignupAttributes(eventKey, runID, action, role string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if eventKey != "" {
		attrs = append(attrs, attribute.String(EventKeyKey, eventKey))
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	if action != "" {
		attrs = append(attrs, attribute.String(ActionKey, action))
	}
	if role != "" {
		attrs = append(attrs, attribute.String(RoleKey, role))
	}
	return attrs
}

// LedgerAttributes describes a tabular store operation.
func LedgerAttributes(op, sheet, runID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LedgerOpKey, op),
		attribute.String(LedgerSheetKey, sheet),
		attribute.String(RunIDKey, runID),
	}
}
