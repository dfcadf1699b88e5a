// SPDX-License-Identifier: MIT

package signup

import (
	"sync"
	"time"

	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
)

// EventRef addresses the announcement that anchors an event.
type EventRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Key is the registry key for the event.
func (r EventRef) Key() string { return r.MessageID }

// Claimant identifies a user. Identity is the UserID; DisplayName is what
// gets written to the ledger and shown in notices.
type Claimant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Claim records who holds a slot.
type Claim struct {
	Claimant Claimant  `json:"claimant"`
	Override bool      `json:"override,omitempty"`
	At       time.Time `json:"at"`
}

// Snapshot is an immutable copy of an event's roster state.
type Snapshot struct {
	Ref        EventRef           `json:"ref"`
	Descriptor extract.Descriptor `json:"descriptor"`
	Claims     map[RoleID]Claim   `json:"claims"`
	Complete   bool               `json:"complete"`
	Version    uint64             `json:"version"`
}

// Holder returns the claimant occupying role, if any.
func (s Snapshot) Holder(role RoleID) (Claimant, bool) {
	c, ok := s.Claims[role]
	return c.Claimant, ok
}

// ClaimResult describes a committed claim.
type ClaimResult struct {
	Role     Role
	Claimant Claimant
	// Displaced is the previous holder when an override user took an
	// occupied slot.
	Displaced *Claimant
	Snapshot  Snapshot
	// Completed is true when this claim moved the event to complete.
	Completed bool
}

// ReleaseResult describes a committed release.
type ReleaseResult struct {
	Role        Role
	Claimant    Claimant
	Snapshot    Snapshot
	WasComplete bool
}

// Event is the live signup state for one announcement. All transitions
// serialise on the event's own mutex; distinct events never contend.
type Event struct {
	ref       EventRef
	desc      extract.Descriptor
	roster    *Roster
	overrides *Overrides
	now       func() time.Time

	mu      sync.Mutex
	claims  map[RoleID]Claim
	version uint64
	touched time.Time
}

func newEvent(ref EventRef, desc extract.Descriptor, roster *Roster, overrides *Overrides, now func() time.Time) *Event {
	return &Event{
		ref:       ref,
		desc:      desc,
		roster:    roster,
		overrides: overrides,
		now:       now,
		claims:    make(map[RoleID]Claim),
		touched:   now(),
	}
}

// Ref returns the announcement reference.
func (e *Event) Ref() EventRef { return e.ref }

// Descriptor returns the extracted descriptor. It never changes.
func (e *Event) Descriptor() extract.Descriptor { return e.desc }

// Roster returns the event's roster.
func (e *Event) Roster() *Roster { return e.roster }

// Claim attempts to place c into the slot named by selector. Checks run in
// order: slot occupancy, primary exclusivity, auxiliary eligibility. A
// rejected claim leaves the event untouched.
func (e *Event) Claim(c Claimant, selector RoleID) (ClaimResult, error) {
	slots, err := e.roster.Resolve(selector)
	if err != nil {
		return ClaimResult{}, err
	}
	override := e.overrides.Contains(c.UserID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = e.now()

	for _, id := range slots {
		if held, ok := e.claims[id]; ok && held.Claimant.UserID == c.UserID {
			return ClaimResult{}, ErrAlreadySignedUp
		}
	}

	target, ok := e.pickSlotLocked(slots, override)
	if !ok {
		return ClaimResult{}, ErrRoleTaken
	}
	role, _ := e.roster.Role(target)

	if !override {
		switch role.Class {
		case ClassPrimary:
			if e.holdsLocked(c.UserID, ClassPrimary) {
				return ClaimResult{}, ErrAlreadySignedUp
			}
		case ClassAuxiliary:
			if e.holdsLocked(c.UserID, ClassAuxiliary) {
				return ClaimResult{}, ErrAlreadySignedUp
			}
			if !e.holdsLocked(c.UserID, ClassPrimary) {
				return ClaimResult{}, ErrIneligibleForAuxiliary
			}
		}
	}

	wasComplete := e.completeLocked()
	res := ClaimResult{Role: role, Claimant: c}
	if prev, taken := e.claims[target]; taken {
		displaced := prev.Claimant
		res.Displaced = &displaced
	}
	e.claims[target] = Claim{Claimant: c, Override: override, At: e.now()}
	e.version++

	res.Snapshot = e.snapshotLocked()
	res.Completed = !wasComplete && res.Snapshot.Complete
	return res, nil
}

// pickSlotLocked returns the first open slot. Override users fall back to
// the first slot not held by another override user.
func (e *Event) pickSlotLocked(slots []RoleID, override bool) (RoleID, bool) {
	for _, id := range slots {
		if _, taken := e.claims[id]; !taken {
			return id, true
		}
	}
	if !override {
		return "", false
	}
	for _, id := range slots {
		if !e.claims[id].Override {
			return id, true
		}
	}
	return "", false
}

// Release removes c from the slot named by selector. RoleAny or an empty
// selector picks the first slot c holds in roster order. Releasing a
// primary role leaves any auxiliary claim in place.
func (e *Event) Release(c Claimant, selector RoleID) (ReleaseResult, error) {
	var slots []RoleID
	if selector != "" && selector != RoleAny {
		var err error
		if slots, err = e.roster.Resolve(selector); err != nil {
			return ReleaseResult{}, err
		}
	} else {
		for _, r := range e.roster.roles {
			slots = append(slots, r.ID)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = e.now()

	for _, id := range slots {
		held, ok := e.claims[id]
		if !ok || held.Claimant.UserID != c.UserID {
			continue
		}
		wasComplete := e.completeLocked()
		delete(e.claims, id)
		e.version++

		role, _ := e.roster.Role(id)
		return ReleaseResult{
			Role:        role,
			Claimant:    held.Claimant,
			Snapshot:    e.snapshotLocked(),
			WasComplete: wasComplete,
		}, nil
	}
	return ReleaseResult{}, ErrNotSignedUp
}

// Snapshot returns a copy of the current state.
func (e *Event) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Reset clears every claim.
func (e *Event) Reset() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.claims) > 0 {
		e.claims = make(map[RoleID]Claim)
		e.version++
	}
	e.touched = e.now()
	return e.snapshotLocked()
}

func (e *Event) lastTouched() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.touched
}

func (e *Event) touch() {
	e.mu.Lock()
	e.touched = e.now()
	e.mu.Unlock()
}

func (e *Event) holdsLocked(userID string, class Class) bool {
	for id, held := range e.claims {
		if held.Claimant.UserID != userID {
			continue
		}
		if role, ok := e.roster.Role(id); ok && role.Class == class {
			return true
		}
	}
	return false
}

func (e *Event) completeLocked() bool {
	for _, role := range e.roster.roles {
		if !role.Required {
			continue
		}
		if _, ok := e.claims[role.ID]; !ok {
			return false
		}
	}
	return true
}

func (e *Event) snapshotLocked() Snapshot {
	claims := make(map[RoleID]Claim, len(e.claims))
	for k, v := range e.claims {
		claims[k] = v
	}
	return Snapshot{
		Ref:        e.ref,
		Descriptor: e.desc,
		Claims:     claims,
		Complete:   e.completeLocked(),
		Version:    e.version,
	}
}
