package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_LabelledFields(t *testing.T) {
	x := New(Options{})

	text := "**Mythic+ Signup**\n" +
		"**Dungeon:** Halls of Valor\n" +
		"📅 Date/Time: 2025-03-14 19:30\n" +
		"Run ID: R-1042\n"

	d, err := x.Extract(text)
	require.NoError(t, err)
	assert.Equal(t, Descriptor{
		Activity:      "Halls of Valor",
		ScheduledTime: "Fri Mar 14, 2025 7:30 PM UTC",
		RunID:         "R-1042",
		StartUnix:     1741980600,
	}, d)
}

func TestExtract_Deterministic(t *testing.T) {
	x := New(Options{})
	text := "Activity: Raid Night\nWhen: tomorrow-ish\nRun ID: abc"

	first, err := x.Extract(text)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := x.Extract(text)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "tomorrow-ish", first.ScheduledTime, "unparseable time is kept verbatim")
	assert.Zero(t, first.StartUnix)
}

func TestExtract_MissingFields(t *testing.T) {
	x := New(Options{})

	tests := []struct {
		name  string
		text  string
		field string
	}{
		{name: "no activity", text: "Run ID: 7\nTime: 8pm", field: FieldActivity},
		{name: "no run id", text: "Dungeon: Uldaman\nTime: 8pm", field: FieldRunID},
		{name: "empty", text: "", field: FieldActivity},
		{name: "blank values", text: "Dungeon:   \nRun ID: 9", field: FieldActivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.Extract(tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingField))

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestExtract_TimeOptional(t *testing.T) {
	d, err := New(Options{}).Extract("Dungeon: Uldaman\nRun ID: 9")
	require.NoError(t, err)
	assert.Empty(t, d.ScheduledTime)
}

func TestExtract_TargetZone(t *testing.T) {
	x := New(Options{
		SourceZone: time.UTC,
		TargetZone: time.FixedZone("EST", -5*3600),
	})

	d, err := x.Extract("Dungeon: Uldaman\nTime: 2025-03-14 19:30\nRun ID: 9")
	require.NoError(t, err)
	assert.Equal(t, "Fri Mar 14, 2025 2:30 PM EST", d.ScheduledTime)
	assert.Equal(t, int64(1741980600), d.StartUnix)
}

func TestExtract_ChatTimestamp(t *testing.T) {
	d, err := New(Options{}).Extract("Dungeon: Uldaman\nTime: <t:0:F>\nRun ID: 9")
	require.NoError(t, err)
	assert.Equal(t, "Thu Jan 1, 1970 12:00 AM UTC", d.ScheduledTime)

	d, err = New(Options{}).Extract("Dungeon: Uldaman\nTime: " + ChatTimestamp(1741980600) + "\nRun ID: 9")
	require.NoError(t, err)
	assert.Equal(t, "Fri Mar 14, 2025 7:30 PM UTC", d.ScheduledTime)
	assert.Equal(t, int64(1741980600), d.StartUnix)
}

func TestExtract_FirstLabelWins(t *testing.T) {
	d, err := New(Options{}).Extract("Dungeon: First\nDungeon: Second\nRun ID: run_7")
	require.NoError(t, err)
	assert.Equal(t, "First", d.Activity)
	assert.Equal(t, "run_7", d.RunID, "single underscores survive markup stripping")
}

func TestExtract_DashSeparatorAndQuotes(t *testing.T) {
	d, err := New(Options{}).Extract("> Raid - Nerub-ar Palace\n> `Run ID`: 55")
	require.NoError(t, err)
	assert.Equal(t, "Nerub-ar Palace", d.Activity)
	assert.Equal(t, "55", d.RunID)
}

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]string{
		"📅 Date/Time":   "date/time",
		"  RUN   ID ":   "run id",
		"Date & Time":   "date & time",
		"Dungeon 🗡️":    "dungeon",
		"run_id":        "run_id",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeLabel(in), in)
	}
}
