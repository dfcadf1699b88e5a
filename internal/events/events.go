// Package events publishes signup domain events to a watermill message bus
// so other services can follow rosters without polling the ledger.
package events

import (
	"time"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// Topics.
const (
	TopicClaimed  = "signup.claimed"
	TopicReleased = "signup.released"
	TopicFormed   = "group.formed"
)

// RoleChange is the payload of TopicClaimed and TopicReleased.
type RoleChange struct {
	EventKey  string           `json:"event_key"`
	RunID     string           `json:"run_id"`
	Activity  string           `json:"activity"`
	Role      signup.RoleID    `json:"role"`
	Claimant  signup.Claimant  `json:"claimant"`
	Displaced *signup.Claimant `json:"displaced,omitempty"`
	Complete  bool             `json:"complete"`
	Version   uint64           `json:"version"`
	At        time.Time        `json:"at"`
}

// GroupFormed is the payload of TopicFormed.
type GroupFormed struct {
	RunID   string    `json:"run_id"`
	Members []string  `json:"members"`
	At      time.Time `json:"at"`
}
