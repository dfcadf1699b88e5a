package coordinator

import (
	"context"
	"time"

	"github.com/galdahar56/raid-logger-bot-2/internal/events"
	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
)

// FormedLedger appends formed groups to the schedule.
type FormedLedger interface {
	RecordFormed(ctx context.Context, runID string, names []string) error
}

// FormedRecorder mirrors a posted notice into the ledger and onto the
// event bus. It satisfies notify.Recorder.
type FormedRecorder struct {
	Ledger FormedLedger
	Events Publisher
	Clock  func() time.Time
}

// RecordFormed writes the schedule row first; the bus event is published
// even when the ledger write fails.
func (r *FormedRecorder) RecordFormed(ctx context.Context, runID string, names []string) error {
	var err error
	if r.Ledger != nil {
		err = r.Ledger.RecordFormed(ctx, runID, names)
	}
	if r.Events != nil {
		now := time.Now
		if r.Clock != nil {
			now = r.Clock
		}
		payload := events.GroupFormed{RunID: runID, Members: names, At: now()}
		if perr := r.Events.Publish(ctx, events.TopicFormed, payload); perr != nil {
			logger := applog.WithComponentFromContext(ctx, "coordinator")
			logger.Warn().Err(perr).Str(applog.FieldRunID, runID).Msg("could not publish group formed event")
		}
	}
	return err
}
