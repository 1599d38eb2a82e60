package models

import "time"

type EmergencyType string

const (
	EmergencyTypeManualSOS EmergencyType = "manual_sos"
	EmergencyTypeAccident  EmergencyType = "accident_detected"
	EmergencyTypeMedical   EmergencyType = "medical_emergency"
	EmergencyTypePanic     EmergencyType = "panic_button"
)

func (t EmergencyType) Valid() bool {
	switch t {
	case EmergencyTypeManualSOS, EmergencyTypeAccident, EmergencyTypeMedical, EmergencyTypePanic:
		return true
	}
	return false
}

type EmergencyStatus string

const (
	StatusActive       EmergencyStatus = "active"
	StatusAcknowledged EmergencyStatus = "acknowledged"
	StatusResolved     EmergencyStatus = "resolved"
	StatusFalseAlarm   EmergencyStatus = "false_alarm"
)

func (s EmergencyStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusFalseAlarm:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s EmergencyStatus) Terminal() bool {
	return s == StatusResolved || s == StatusFalseAlarm
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for escalation comparisons; higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"` // meters, 0 = unknown
	Address   string  `json:"address,omitempty"`
}

// Advisory is the oracle's estimate attached to an emergency. Nil on the
// record means the oracle was never consulted (not the same as fallback).
type Advisory struct {
	AccidentProbability float64  `json:"accidentProbability"`
	RiskFactors         []string `json:"riskFactors"`
	RecommendedAction   string   `json:"recommendedAction"`
	Fallback            bool     `json:"fallback,omitempty"`
}

// Emergency is the canonical incident record. It is owned by the lifecycle
// state machine and must only be mutated through its transition API.
type Emergency struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Type        EmergencyType   `json:"type"`
	Status      EmergencyStatus `json:"status"`
	Priority    Priority        `json:"priority"`
	Location    Location        `json:"location"`
	Advisory    *Advisory       `json:"advisory,omitempty"`
	Timeline    []TimelineEntry `json:"timeline,omitempty"`
	Assignments []Assignment    `json:"assignments,omitempty"`
	ResolvedBy  string          `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time      `json:"resolvedAt,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Open reports whether the record still accepts merged triggers.
func (e *Emergency) Open() bool {
	return !e.Status.Terminal()
}

// Assignment records a responder matched to an emergency at dispatch time.
// Candidate distance and ETA are frozen here; the live responder position
// is never tracked on the emergency.
type Assignment struct {
	EmergencyID string        `json:"emergencyId"`
	ResponderID string        `json:"responderId"`
	Role        ResponderRole `json:"role"`
	DistanceKm  float64       `json:"distanceKm"`
	ETAMinutes  int           `json:"etaMinutes"`
	CreatedAt   time.Time     `json:"createdAt"`
}
