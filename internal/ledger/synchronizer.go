package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/metrics"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
	"github.com/galdahar56/raid-logger-bot-2/internal/telemetry"
)

// ErrLedgerSync marks a failed mirror of a committed transition. The
// in-memory state is authoritative and is never rolled back.
var ErrLedgerSync = errors.New("ledger sync failed")

// StepError names the step of a sync that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %s: %v", ErrLedgerSync, e.Step, e.Err) }

func (e *StepError) Unwrap() []error { return []error{ErrLedgerSync, e.Err} }

// Entry is one committed transition.
type Entry struct {
	Claimant   signup.Claimant
	Role       signup.Role
	Descriptor extract.Descriptor
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithTimestampLayout sets the format of the log timestamp column.
func WithTimestampLayout(layout string) Option {
	return func(s *Synchronizer) { s.tsLayout = layout }
}

// Synchronizer writes transitions to a Table. Calls for the same run id are
// serialised so value-scan lookups and positional deletes cannot interleave.
type Synchronizer struct {
	table    Table
	layout   Layout
	now      func() time.Time
	tsLayout string
	locks    *runLocks
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewSynchronizer returns a synchronizer writing to table.
func NewSynchronizer(table Table, layout Layout, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		table:    table,
		layout:   layout,
		now:      time.Now,
		tsLayout: time.RFC3339,
		locks:    newRunLocks(),
		tracer:   telemetry.Tracer("ledger"),
		logger:   applog.WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RoleLabel is the role text written to the log. A Caser is not safe for
// concurrent use, so one is built per call.
func (s *Synchronizer) RoleLabel(role signup.RoleID) string {
	return cases.Upper(language.English).String(string(role))
}

// RecordClaim appends a log record and writes the claimant into the
// schedule grid. A displaced holder's log record is removed first.
func (s *Synchronizer) RecordClaim(ctx context.Context, e Entry, displaced *signup.Claimant) error {
	runID := e.Descriptor.RunID
	unlock := s.locks.lock(runID)
	defer unlock()

	var errs []error
	if displaced != nil {
		if err := s.deleteLogRecord(ctx, *displaced, e.Role.ID, runID); err != nil {
			errs = append(errs, &StepError{Step: "remove displaced log record", Err: err})
		}
	}

	row := []string{
		e.Claimant.DisplayName,
		s.RoleLabel(e.Role.ID),
		e.Descriptor.Activity,
		runID,
		e.Descriptor.ScheduledTime,
		s.now().Format(s.tsLayout),
		e.Claimant.UserID,
	}
	if err := s.do(ctx, "append", s.layout.LogSheet, runID, func(ctx context.Context) error {
		return s.table.AppendRow(ctx, s.layout.LogSheet, row)
	}); err != nil {
		errs = append(errs, &StepError{Step: "append log record", Err: err})
	}

	if err := s.writeGrid(ctx, e.Role.ID, runID, func(string) bool { return true }, e.Claimant.DisplayName); err != nil {
		errs = append(errs, &StepError{Step: "write schedule cell", Err: err})
	}
	return s.finish(ctx, "claim", e, errs)
}

// RecordRelease deletes the most recent matching log record and clears the
// schedule grid cell if it still shows the claimant.
func (s *Synchronizer) RecordRelease(ctx context.Context, e Entry) error {
	runID := e.Descriptor.RunID
	unlock := s.locks.lock(runID)
	defer unlock()

	var errs []error
	if err := s.deleteLogRecord(ctx, e.Claimant, e.Role.ID, runID); err != nil {
		errs = append(errs, &StepError{Step: "delete log record", Err: err})
	}
	holds := func(current string) bool { return current == "" || current == e.Claimant.DisplayName }
	if err := s.writeGrid(ctx, e.Role.ID, runID, holds, ""); err != nil {
		errs = append(errs, &StepError{Step: "clear schedule cell", Err: err})
	}
	return s.finish(ctx, "release", e, errs)
}

// RecordFormed appends a "Formed: <runId>" row followed by the roster names
// to the schedule sheet.
func (s *Synchronizer) RecordFormed(ctx context.Context, runID string, names []string) error {
	unlock := s.locks.lock(runID)
	defer unlock()

	row := append([]string{"Formed: " + runID}, names...)
	err := s.do(ctx, "append_formed", s.layout.ScheduleSheet, runID, func(ctx context.Context) error {
		return s.table.AppendRow(ctx, s.layout.ScheduleSheet, row)
	})
	if err != nil {
		return &StepError{Step: "append formed row", Err: err}
	}
	return nil
}

func (s *Synchronizer) deleteLogRecord(ctx context.Context, c signup.Claimant, role signup.RoleID, runID string) error {
	label := s.RoleLabel(role)
	sheet := s.layout.LogSheet
	return s.do(ctx, "delete", sheet, runID, func(ctx context.Context) error {
		rows, err := s.table.ReadRows(ctx, sheet)
		if err != nil {
			return err
		}
		n := FindLastRow(rows, func(row []string) bool {
			if Cell(row, LogColRole) != label || Cell(row, LogColRunID) != runID {
				return false
			}
			if uid := Cell(row, LogColUserID); uid != "" {
				return uid == c.UserID
			}
			return Cell(row, LogColName) == c.DisplayName
		})
		if n == 0 {
			s.logger.Debug().Str(applog.FieldRunID, runID).Str(applog.FieldRole, string(role)).Msg("no log record to delete")
			return nil
		}
		return s.table.DeleteRow(ctx, sheet, n)
	})
}

// writeGrid sets the role cell on the run's schedule row when cond accepts
// its current value. A run missing from the grid is not an error.
func (s *Synchronizer) writeGrid(ctx context.Context, role signup.RoleID, runID string, cond func(string) bool, value string) error {
	column, ok := s.layout.RoleColumns[role]
	if !ok {
		return nil
	}
	sheet := s.layout.ScheduleSheet
	return s.do(ctx, "write_cell", sheet, runID, func(ctx context.Context) error {
		rows, err := s.table.ReadRows(ctx, sheet)
		if err != nil {
			return err
		}
		idCol, err := ColumnIndex(s.layout.RunIDColumn)
		if err != nil {
			return err
		}
		n := FindRow(rows, func(row []string) bool { return Cell(row, idCol) == runID })
		if n == 0 {
			s.logger.Debug().Str(applog.FieldRunID, runID).Msg("run not on schedule grid")
			return nil
		}
		current, err := s.table.ReadCell(ctx, sheet, column, n)
		if err != nil {
			return err
		}
		if !cond(current) {
			s.logger.Debug().
				Str(applog.FieldRunID, runID).
				Str(applog.FieldCell, fmt.Sprintf("%s%d", column, n)).
				Msg("schedule cell holds another claimant; left unchanged")
			return nil
		}
		return s.table.WriteCell(ctx, sheet, column, n, value)
	})
}

func (s *Synchronizer) do(ctx context.Context, op, sheet, runID string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(telemetry.LedgerAttributes(op, sheet, runID)...))
	start := time.Now()
	err := fn(ctx)
	metrics.ObserveLedgerOp(op, err, time.Since(start))
	telemetry.EndSpan(span, err)
	return err
}

func (s *Synchronizer) finish(ctx context.Context, action string, e Entry, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	logger := applog.WithContext(ctx, s.logger)
	logger.Warn().
		Err(err).
		Str(applog.FieldEvent, "ledger.sync_failed").
		Str("action", action).
		Str(applog.FieldRunID, e.Descriptor.RunID).
		Str(applog.FieldRole, string(e.Role.ID)).
		Msg("ledger sync failed; in-memory signup stands")
	return err
}
