package models

import (
	"math"
	"time"
)

// SensorSample is one tick of device readings. Validity flags mark which
// sensor groups produced a fresh value this tick; rules that need a stale
// group are skipped rather than fed zeros.
type SensorSample struct {
	Timestamp   time.Time `json:"timestamp"`
	AccelX      float64   `json:"accelX"` // gravity units
	AccelY      float64   `json:"accelY"`
	AccelZ      float64   `json:"accelZ"`
	GyroX       float64   `json:"gyroX"` // rad/s
	GyroY       float64   `json:"gyroY"`
	GyroZ       float64   `json:"gyroZ"`
	HeartRate   float64   `json:"heartRate"`   // beats/min
	OxygenLevel float64   `json:"oxygenLevel"` // SpO2 percent
	Speed       float64   `json:"speed"`
	EngineFault bool      `json:"engineFault"`
	HasMotion   bool      `json:"hasMotion"`
	HasVitals   bool      `json:"hasVitals"`
	HasSpeed    bool      `json:"hasSpeed"`
}

func (s *SensorSample) AccelMagnitude() float64 {
	return math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + s.AccelZ*s.AccelZ)
}

type TriggerReason string

const (
	ReasonManualSOS  TriggerReason = "manual_sos"
	ReasonHighImpact TriggerReason = "high_impact"
	ReasonSuddenStop TriggerReason = "sudden_stop"
	ReasonVitals     TriggerReason = "medical_vitals"
	ReasonRollover   TriggerReason = "rollover"
	ReasonPanic      TriggerReason = "panic_button"
)

// EmergencyType maps a trigger reason onto the incident type it opens.
func (r TriggerReason) EmergencyType() EmergencyType {
	switch r {
	case ReasonManualSOS:
		return EmergencyTypeManualSOS
	case ReasonVitals:
		return EmergencyTypeMedical
	case ReasonPanic:
		return EmergencyTypePanic
	default:
		return EmergencyTypeAccident
	}
}

// TriggerEvent is immutable evidence that an emergency may be occurring.
type TriggerEvent struct {
	Reason    TriggerReason `json:"reason"`
	Severity  Priority      `json:"severity"`
	UserID    string        `json:"userId"`
	Location  Location      `json:"location"`
	Sample    *SensorSample `json:"sample,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
