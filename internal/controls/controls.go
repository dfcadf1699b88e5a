// Package controls projects signup state onto the buttons shown under an
// announcement and keeps the rendered buttons in step with that state.
package controls

import (
	"errors"
	"fmt"
	"strings"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// Action is what a control does when pressed.
type Action string

const (
	ActionSignup Action = "signup"
	ActionUndo   Action = "undo"
)

// Style hints how a control is drawn.
type Style int

const (
	StylePrimary Style = iota
	StyleSecondary
	StyleDanger
)

// ErrBadControlID is returned for custom IDs this bot did not issue.
var ErrBadControlID = errors.New("controls: unrecognised control id")

// Control is one rendered button.
type Control struct {
	Action   Action
	Role     signup.RoleID
	Label    string
	Style    Style
	Disabled bool
	// Unlocked marks an auxiliary control that became claimable because a
	// primary role is held.
	Unlocked bool
}

// ID encodes the control as "<action>_<role>_<messageID>".
func (c Control) ID(messageID string) string {
	return EncodeID(c.Action, c.Role, messageID)
}

// EncodeID builds a control custom ID.
func EncodeID(action Action, role signup.RoleID, messageID string) string {
	return string(action) + "_" + string(role) + "_" + messageID
}

// ParseID splits a custom ID produced by EncodeID.
func ParseID(customID string) (Action, signup.RoleID, string, error) {
	parts := strings.SplitN(customID, "_", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrBadControlID, customID)
	}
	action := Action(parts[0])
	if action != ActionSignup && action != ActionUndo {
		return "", "", "", fmt.Errorf("%w: %q", ErrBadControlID, customID)
	}
	return action, signup.RoleID(parts[1]), parts[2], nil
}

// Project computes the control row for snap. It is a pure function of its
// inputs.
//
// A selector is disabled once every slot behind it is claimed. An auxiliary
// selector additionally stays disabled until some primary role is held. The
// undo control is always enabled.
func Project(snap signup.Snapshot, roster *signup.Roster) []Control {
	anyPrimary := false
	for id := range snap.Claims {
		if role, ok := roster.Role(id); ok && role.Class == signup.ClassPrimary {
			anyPrimary = true
			break
		}
	}

	selectors := roster.Selectors()
	out := make([]Control, 0, len(selectors)+1)
	for _, sel := range selectors {
		full := true
		auxiliary := false
		for _, slot := range sel.Slots {
			if _, taken := snap.Claims[slot]; !taken {
				full = false
			}
			if role, _ := roster.Role(slot); role.Class == signup.ClassAuxiliary {
				auxiliary = true
			}
		}

		c := Control{Action: ActionSignup, Role: sel.ID, Label: sel.Label, Style: StylePrimary, Disabled: full}
		if auxiliary {
			c.Style = StyleSecondary
			c.Unlocked = anyPrimary && !full
			c.Disabled = !c.Unlocked
		}
		out = append(out, c)
	}
	out = append(out, Control{Action: ActionUndo, Role: signup.RoleAny, Label: "Undo", Style: StyleDanger})
	return out
}
