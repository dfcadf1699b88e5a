package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// Field names reported by FieldError.
const (
	FieldActivity = "activity"
	FieldTime     = "date/time"
	FieldRunID    = "run id"
)

// DefaultLayout is the display format used for parsed times.
const DefaultLayout = "Mon Jan 2, 2006 3:04 PM MST"

// ErrMissingField classifies extraction failures caused by an absent required field.
var ErrMissingField = errors.New("required field missing")

// FieldError reports which required field could not be located.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("extract: %s: %s", e.Field, ErrMissingField)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// Descriptor is the structured identity of one scheduled activity.
type Descriptor struct {
	Activity      string `json:"activity"`
	ScheduledTime string `json:"scheduled_time"`
	RunID         string `json:"run_id"`
	// StartUnix is the parsed time in Unix seconds, zero when ScheduledTime
	// was kept verbatim.
	StartUnix     int64  `json:"start_unix,omitempty"`
}

// Options configures time normalisation.
type Options struct {
	// SourceZone is assumed for times written without an offset.
	SourceZone *time.Location
	// TargetZone is the zone every parsed time is rendered in.
	TargetZone *time.Location
	// Layout is the time.Format layout for rendered times.
	Layout string
}

// Extractor parses announcements. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	source *time.Location
	target *time.Location
	layout string
}

// New returns an Extractor. Zero options fall back to UTC and DefaultLayout.
func New(opts Options) *Extractor {
	x := &Extractor{
		source: opts.SourceZone,
		target: opts.TargetZone,
		layout: opts.Layout,
	}
	if x.source == nil {
		x.source = time.UTC
	}
	if x.target == nil {
		x.target = time.UTC
	}
	if x.layout == "" {
		x.layout = DefaultLayout
	}
	return x
}

var labels = map[string][]string{
	FieldActivity: {"activity", "dungeon", "raid"},
	FieldTime:     {"date/time", "date & time", "datetime", "date and time", "date", "time", "when"},
	FieldRunID:    {"run id", "run_id", "runid", "run"},
}

// Extract locates the labelled fields in text. Activity and run id are
// required; a missing time yields an empty ScheduledTime.
func (x *Extractor) Extract(text string) (Descriptor, error) {
	found := make(map[string]string, len(labels))
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := splitLabel(line)
		if !ok || value == "" {
			continue
		}
		field := classify(label)
		if field == "" {
			continue
		}
		if _, seen := found[field]; !seen {
			found[field] = value
		}
	}

	var d Descriptor
	d.Activity = found[FieldActivity]
	if d.Activity == "" {
		return Descriptor{}, &FieldError{Field: FieldActivity}
	}
	d.RunID = found[FieldRunID]
	if d.RunID == "" {
		return Descriptor{}, &FieldError{Field: FieldRunID}
	}
	if raw := found[FieldTime]; raw != "" {
		d.ScheduledTime, d.StartUnix = x.normalizeTime(raw)
	}
	return d, nil
}

var chatTimestamp = regexp.MustCompile(`^<t:(-?\d+)(?::[tTdDfFR])?>$`)

// normalizeTime renders raw in the target zone when it parses as a date and
// returns it verbatim otherwise.
func (x *Extractor) normalizeTime(raw string) (string, int64) {
	if m := chatTimestamp.FindStringSubmatch(raw); m != nil {
		if secs, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return time.Unix(secs, 0).In(x.target).Format(x.layout), secs
		}
	}
	t, err := dateparse.ParseIn(raw, x.source)
	if err != nil {
		return raw, 0
	}
	return t.In(x.target).Format(x.layout), t.Unix()
}

// ChatTimestamp formats unix as a chat timestamp token that clients render
// in the reader's zone and Extract parses back exactly.
func ChatTimestamp(unix int64) string {
	return "<t:" + strconv.FormatInt(unix, 10) + ":F>"
}

// splitLabel cleans markup from line and splits it at the first ':' or
// " - " separator.
func splitLabel(line string) (label, value string, ok bool) {
	line = stripDecoration(line)
	idx := strings.Index(line, ":")
	sepLen := 1
	if dash := strings.Index(line, " - "); dash >= 0 && (idx < 0 || dash < idx) {
		idx, sepLen = dash, 3
	}
	if idx <= 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(line[idx+sepLen:]), true
}

var decoration = strings.NewReplacer("**", "", "__", "", "~~", "", "||", "", "`", "", "*", "")

func stripDecoration(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "> ")
	return strings.TrimSpace(decoration.Replace(s))
}

// classify maps a raw label to a field name, ignoring case, emoji and
// punctuation other than '/', '&' and '_'.
func classify(label string) string {
	norm := normalizeLabel(label)
	for _, field := range []string{FieldRunID, FieldTime, FieldActivity} {
		for _, kw := range labels[field] {
			if norm == kw {
				return field
			}
		}
	}
	return ""
}

func normalizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '/', r == '&', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
