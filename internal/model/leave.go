package model

import (
	"time"
)

// Slot names, in the order they are asked for.
const (
	SlotStartDate = "start_date"
	SlotEndDate   = "end_date"
	SlotHours     = "hours"
	SlotReason    = "reason"
)

// SlotOrder is the canonical fill order.
var SlotOrder = []string{SlotStartDate, SlotEndDate, SlotHours, SlotReason}

// Canonical reasons produced by the extractor.
const (
	ReasonHealth   = "Health issue"
	ReasonPersonal = "Personal matter"
	ReasonFamily   = "Family matter"
	ReasonUrgent   = "Urgent matter"
)

// DefaultHours is used when no duration can be derived at submission time.
const DefaultHours = 8.0

// LeaveSlots is the aggregate being filled across turns.
type LeaveSlots struct {
	StartDate string `json:"start_date" bson:"start_date"`
	EndDate   string `json:"end_date" bson:"end_date"`
	Hours     string `json:"hours" bson:"hours"`
	Reason    string `json:"reason" bson:"reason"`
}

// Get returns the value of the named slot.
func (s LeaveSlots) Get(slot string) string {
	switch slot {
	case SlotStartDate:
		return s.StartDate
	case SlotEndDate:
		return s.EndDate
	case SlotHours:
		return s.Hours
	case SlotReason:
		return s.Reason
	}
	return ""
}

// Set stores value in the named slot. Unknown slot names are ignored.
func (s *LeaveSlots) Set(slot, value string) {
	switch slot {
	case SlotStartDate:
		s.StartDate = value
	case SlotEndDate:
		s.EndDate = value
	case SlotHours:
		s.Hours = value
	case SlotReason:
		s.Reason = value
	}
}

// Missing lists the empty slots in canonical order.
func (s LeaveSlots) Missing() []string {
	var missing []string
	for _, slot := range SlotOrder {
		if s.Get(slot) == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}

// Complete reports whether every slot is filled.
func (s LeaveSlots) Complete() bool {
	return len(s.Missing()) == 0
}

// Empty reports whether no slot is filled.
func (s LeaveSlots) Empty() bool {
	return len(s.Missing()) == len(SlotOrder)
}

// DeriveEndDate applies the single-day default: a known start with no end
// ends on the same day.
func (s *LeaveSlots) DeriveEndDate() {
	if s.StartDate != "" && s.EndDate == "" {
		s.EndDate = s.StartDate
	}
}

// State is the conversation state of a session.
type State string

const (
	StateStart           State = "START"
	StateAskingStartDate State = "ASKING_START_DATE"
	StateAskingEndDate   State = "ASKING_END_DATE"
	StateAskingHours     State = "ASKING_HOURS"
	StateAskingReason    State = "ASKING_REASON"
	StateCompleted       State = "COMPLETED"
)

// Asking reports whether the state is waiting for a slot answer.
func (st State) Asking() bool {
	return SlotForState(st) != ""
}

// StateForSlot maps a slot name to the state that asks for it.
func StateForSlot(slot string) State {
	switch slot {
	case SlotStartDate:
		return StateAskingStartDate
	case SlotEndDate:
		return StateAskingEndDate
	case SlotHours:
		return StateAskingHours
	case SlotReason:
		return StateAskingReason
	}
	return StateStart
}

// SlotForState is the inverse of StateForSlot; "" for non-asking states.
func SlotForState(st State) string {
	switch st {
	case StateAskingStartDate:
		return SlotStartDate
	case StateAskingEndDate:
		return SlotEndDate
	case StateAskingHours:
		return SlotHours
	case StateAskingReason:
		return SlotReason
	}
	return ""
}

// ConversationSession is the per-conversation state held between turns.
type ConversationSession struct {
	ConversationID string     `json:"conversation_id" bson:"_id"`
	State          State      `json:"state" bson:"state"`
	Slots          LeaveSlots `json:"slots" bson:"slots"`
	Locale         string     `json:"locale,omitempty" bson:"locale,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updated_at"`
}

// NewSession returns a session in START with empty slots.
func NewSession(conversationID string) *ConversationSession {
	return &ConversationSession{ConversationID: conversationID, State: StateStart}
}

// Reset returns the session to START and clears the slots.
func (s *ConversationSession) Reset() {
	s.State = StateStart
	s.Slots = LeaveSlots{}
}
