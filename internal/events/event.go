package events

import "github.com/google/uuid"

// RecordCreated is published after a lead or opportunity record is created
// and fully initialized (owner assigned, scored, prioritized).
type RecordCreated struct {
	BaseEvent
	RecordID uuid.UUID
	Module   string
	OwnerID  uuid.UUID
}

// EventName returns the event identifier.
func (RecordCreated) EventName() string { return "record.created" }

// RecordAssigned is published when routing (or a manual edit) changes a
// record's owner.
type RecordAssigned struct {
	BaseEvent
	RecordID   uuid.UUID
	Module     string
	OwnerID    uuid.UUID
	RuleName   string
	AssignedBy string // "routing" or "manual"
}

// EventName returns the event identifier.
func (RecordAssigned) EventName() string { return "record.assigned" }

// RecordStageChanged is published after a successful stage transition.
type RecordStageChanged struct {
	BaseEvent
	RecordID    uuid.UUID
	Module      string
	OwnerID     uuid.UUID
	FromStageID uuid.UUID
	ToStageID   uuid.UUID
	ToStageName string
	Terminal    bool
}

// EventName returns the event identifier.
func (RecordStageChanged) EventName() string { return "record.stage_changed" }
