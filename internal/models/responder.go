package models

type ResponderRole string

const (
	RoleVolunteer ResponderRole = "volunteer"
	RoleHospital  ResponderRole = "hospital"
	RolePolice    ResponderRole = "police"
)

func (r ResponderRole) Valid() bool {
	switch r {
	case RoleVolunteer, RoleHospital, RolePolice:
		return true
	}
	return false
}

// Responder is a registered entity eligible for matching.
type Responder struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Role      ResponderRole `json:"role"`
	Location  Location      `json:"location"`
	Phone     string        `json:"phone,omitempty"`
	PushToken string        `json:"pushToken,omitempty"`
	Available bool          `json:"available"`
}

// ResponderCandidate is a matching result: a responder plus the distance
// and ETA computed for one query. Recomputed fresh per call, never cached.
type ResponderCandidate struct {
	Responder
	DistanceKm float64 `json:"distanceKm"`
	ETAMinutes int     `json:"etaMinutes"`
}
