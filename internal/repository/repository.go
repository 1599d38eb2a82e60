package repository

import (
	"context"
	"errors"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

// ErrNotFound is returned when a lookup by id matches no record.
var ErrNotFound = errors.New("record not found")

// Bounds is a latitude/longitude bounding box used as a cheap prefilter
// for geospatial queries.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

type Filter struct {
	Limit    int
	Statuses []models.EmergencyStatus
	Bounds   *Bounds
}

// EmergencyRepository persists emergency records. Save writes the full
// record; timeline entries are append-only, so entries already stored are
// never rewritten.
type EmergencyRepository interface {
	Save(ctx context.Context, e *models.Emergency) error
	GetByID(ctx context.Context, id string) (*models.Emergency, error)
	// FindOpenByUser returns the user's active or acknowledged emergency,
	// or nil when none is open.
	FindOpenByUser(ctx context.Context, userID string) (*models.Emergency, error)
	List(ctx context.Context, opts Filter) ([]models.Emergency, error)
}

type ResponderRepository interface {
	UpsertResponder(ctx context.Context, r *models.Responder) error
	GetResponder(ctx context.Context, id string) (*models.Responder, error)
	ListAvailable(ctx context.Context) ([]models.Responder, error)
}

// AttemptRepository tracks notification attempts. CreateAttempt is
// idempotent: it reports false without error when an attempt already
// exists for the (emergency, recipient, channel) key.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, a *models.NotificationAttempt) (bool, error)
	UpdateAttempt(ctx context.Context, a *models.NotificationAttempt) error
	ListAttempts(ctx context.Context, emergencyID string) ([]models.NotificationAttempt, error)
}
