package models

import "time"

type EntryKind string

const (
	EntryCreated       EntryKind = "created"
	EntryStatusChange  EntryKind = "status_change"
	EntryTriggerMerged EntryKind = "trigger_merged"
	EntryAssigned      EntryKind = "responders_assigned"
	EntryNotifyOutcome EntryKind = "notification_outcome"
)

// TimelineEntry is one append-only event on an emergency. Only the detail
// fields matching Kind are set; the rest stay zero.
type TimelineEntry struct {
	Seq       int       `json:"seq"`
	Kind      EntryKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// status_change
	Status  EmergencyStatus `json:"status,omitempty"`
	ActorID string          `json:"actorId,omitempty"`
	Notes   string          `json:"notes,omitempty"`

	// created / trigger_merged
	Reason   TriggerReason `json:"reason,omitempty"`
	Priority Priority      `json:"priority,omitempty"`

	// responders_assigned
	ResponderIDs []string `json:"responderIds,omitempty"`

	// notification_outcome
	RecipientID string        `json:"recipientId,omitempty"`
	Channel     Channel       `json:"channel,omitempty"`
	Outcome     AttemptStatus `json:"outcome,omitempty"`
}
