package notify

import (
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// NoticeColor is the accent colour of a formed-group notice.
const NoticeColor = 0x2ecc71

// Field is one labelled value of a notice.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notice is a rendered group-completion announcement.
type Notice struct {
	RunID  string
	Title  string
	Fields []Field
	Footer string
	Color  int
}

var roleIcons = map[signup.RoleID]string{
	signup.RoleTank:      "🛡",
	signup.RoleHealer:    "💉",
	signup.RoleDPS1:      "⚔",
	signup.RoleDPS2:      "⚔",
	signup.RoleKeyholder: "🗝",
}

// Compose builds the notice for a filled roster. form may be the zero value
// when no response was found.
func Compose(snap signup.Snapshot, roster *signup.Roster, form FormResponse) Notice {
	activity := or(form.Activity, snap.Descriptor.Activity, "Unknown Activity")

	fields := []Field{
		{Name: "Key Level", Value: or(form.KeyLevel, "N/A"), Inline: true},
		{Name: "Preferred Time", Value: or(form.PreferredTime, snap.Descriptor.ScheduledTime, "N/A"), Inline: true},
		{Name: "Contact", Value: or(form.Contact, "N/A"), Inline: true},
		{Name: "Notes", Value: or(form.Notes, "None")},
	}
	for _, role := range roster.Roles() {
		name := role.Label
		if icon, ok := roleIcons[role.ID]; ok {
			name = icon + " " + name
		}
		holder, _ := snap.Holder(role.ID)
		fields = append(fields, Field{Name: name, Value: or(holder.DisplayName, "TBD"), Inline: true})
	}

	return Notice{
		RunID:  snap.Descriptor.RunID,
		Title:  "✅ Group Formed: " + activity,
		Fields: fields,
		Footer: "Run ID: " + snap.Descriptor.RunID,
		Color:  NoticeColor,
	}
}

// RosterNames lists holder display names in roster order.
func RosterNames(snap signup.Snapshot, roster *signup.Roster) []string {
	var names []string
	for _, role := range roster.Roles() {
		holder, _ := snap.Holder(role.ID)
		names = append(names, holder.DisplayName)
	}
	return names
}

func or(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
