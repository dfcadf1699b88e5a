package ledger

import (
	"fmt"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// Signup log columns.
const (
	LogColName = iota
	LogColRole
	LogColActivity
	LogColRunID
	LogColScheduled
	LogColTimestamp
	LogColUserID
)

// Layout names the sheets and grid columns the synchronizer writes to.
type Layout struct {
	LogSheet      string
	ScheduleSheet string
	// RunIDColumn holds the run id in the schedule grid.
	RunIDColumn string
	// RoleColumns maps each role to its schedule grid column.
	RoleColumns map[signup.RoleID]string
}

// DefaultLayout matches the spreadsheet the bot was first deployed against.
func DefaultLayout() Layout {
	return Layout{
		LogSheet:      "Signup Log",
		ScheduleSheet: "Run_Schedule",
		RunIDColumn:   "A",
		RoleColumns: map[signup.RoleID]string{
			signup.RoleTank:      "F",
			signup.RoleHealer:    "G",
			signup.RoleDPS1:      "H",
			signup.RoleDPS2:      "I",
			signup.RoleKeyholder: "K",
		},
	}
}

// Validate checks every column is a legal letter.
func (l Layout) Validate() error {
	if l.LogSheet == "" || l.ScheduleSheet == "" {
		return fmt.Errorf("ledger: sheet names must be set")
	}
	if _, err := ColumnIndex(l.RunIDColumn); err != nil {
		return err
	}
	for role, col := range l.RoleColumns {
		if _, err := ColumnIndex(col); err != nil {
			return fmt.Errorf("role %s: %w", role, err)
		}
	}
	return nil
}
