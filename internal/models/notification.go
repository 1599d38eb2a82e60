package models

import "time"

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelVoice Channel = "voice"
)

type AttemptStatus string

const (
	AttemptPending      AttemptStatus = "pending"
	AttemptSent         AttemptStatus = "sent"
	AttemptFailed       AttemptStatus = "failed"
	AttemptAcknowledged AttemptStatus = "acknowledged"
)

// NotificationAttempt tracks delivery to one recipient over one channel for
// one emergency. At most one row exists per (emergency, recipient, channel);
// Attempts only ever increases.
type NotificationAttempt struct {
	ID          string        `json:"id"`
	EmergencyID string        `json:"emergencyId"`
	RecipientID string        `json:"recipientId"`
	Channel     Channel       `json:"channel"`
	Status      AttemptStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"lastError,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Contact is a personal emergency contact of the user, notified alongside
// matched responders.
type Contact struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	PushToken string `json:"pushToken,omitempty"`
}
