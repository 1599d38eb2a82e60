package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karanvs/go-emergency-dispatch/internal/dispatch"
	"github.com/karanvs/go-emergency-dispatch/internal/lifecycle"
	"github.com/karanvs/go-emergency-dispatch/internal/matching"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
	"github.com/karanvs/go-emergency-dispatch/internal/oracle"
	"github.com/karanvs/go-emergency-dispatch/internal/repository"
	"github.com/karanvs/go-emergency-dispatch/internal/stream"
)

// ContactSource resolves a user's personal emergency contacts. Profile
// management is an external collaborator; this is its only seam.
type ContactSource interface {
	ContactsFor(ctx context.Context, userID string) ([]models.Contact, error)
}

// StaticContacts is a fixed in-memory ContactSource, used in tests and
// single-tenant deployments.
type StaticContacts map[string][]models.Contact

func (s StaticContacts) ContactsFor(_ context.Context, userID string) ([]models.Contact, error) {
	return s[userID], nil
}

// Coordinator orchestrates trigger ingestion: advisory lookup, lifecycle
// create/merge, responder matching, notification fan-out and observer
// broadcast.
type Coordinator struct {
	machine    *lifecycle.Machine
	matcher    *matching.Matcher
	dispatcher *dispatch.Dispatcher
	oracle     *oracle.Client
	hub        *stream.Hub
	repo       repository.EmergencyRepository
	contacts   ContactSource
	radiusKm   float64
}

func New(machine *lifecycle.Machine, matcher *matching.Matcher, dispatcher *dispatch.Dispatcher, oracleClient *oracle.Client, hub *stream.Hub, repo repository.EmergencyRepository, contacts ContactSource, radiusKm float64) *Coordinator {
	if contacts == nil {
		contacts = StaticContacts{}
	}
	return &Coordinator{
		machine:    machine,
		matcher:    matcher,
		dispatcher: dispatcher,
		oracle:     oracleClient,
		hub:        hub,
		repo:       repo,
		contacts:   contacts,
		radiusKm:   radiusKm,
	}
}

// HandleTrigger ingests one trigger and returns the resulting emergency
// plus the number of responders notified. A persistence failure is
// returned to the caller so the trigger is never silently lost; oracle
// failures fall back and empty matches proceed to the fixed services.
func (c *Coordinator) HandleTrigger(ctx context.Context, trigger *models.TriggerEvent) (*models.Emergency, int, error) {
	advisory := c.oracle.Analyze(ctx, "user:"+trigger.UserID, oracle.Request{
		SensorData: trigger.Sample,
		Type:       trigger.Reason.EmergencyType(),
		Location:   trigger.Location,
	})

	e, merged, err := c.machine.Create(ctx, trigger, &advisory)
	if err != nil {
		return nil, 0, fmt.Errorf("ingesting trigger: %w", err)
	}

	if merged {
		// Dedup merge: the open record already has responders and
		// notifications in flight, so only observers are told.
		c.hub.Broadcast(stream.Event{
			Type:        stream.EventUpdate,
			EmergencyID: e.ID,
			Emergency:   e,
			Timestamp:   time.Now(),
		})
		return e, 0, nil
	}

	candidates, err := c.matcher.FindNearby(ctx, e.Location, c.radiusKm)
	if err != nil {
		// Matching failure degrades to the fixed service lines; the
		// emergency itself is already recorded.
		slog.Error("responder matching failed", "emergency", e.ID, "error", err)
		candidates = nil
	}
	if len(candidates) > 0 {
		if e, err = c.machine.AttachAssignments(ctx, e.ID, candidates); err != nil {
			return nil, 0, fmt.Errorf("attaching assignments: %w", err)
		}
	}

	contacts, err := c.contacts.ContactsFor(ctx, e.UserID)
	if err != nil {
		slog.Error("contact lookup failed", "emergency", e.ID, "user", e.UserID, "error", err)
		contacts = nil
	}

	c.dispatcher.Dispatch(ctx, e, candidates, contacts)

	// Reload so the response carries the folded notification outcomes.
	if fresh, err := c.repo.GetByID(ctx, e.ID); err == nil {
		e = fresh
	}

	c.hub.Broadcast(stream.Event{
		Type:        stream.EventAlert,
		EmergencyID: e.ID,
		Emergency:   e,
		Timestamp:   time.Now(),
	})

	return e, len(candidates), nil
}

// UpdateStatus applies a status transition and broadcasts the change.
func (c *Coordinator) UpdateStatus(ctx context.Context, id string, status models.EmergencyStatus, actorID, notes string) (*models.Emergency, error) {
	e, err := c.machine.Transition(ctx, id, status, actorID, notes)
	if err != nil {
		return nil, err
	}

	c.hub.Broadcast(stream.Event{
		Type:        stream.EventUpdate,
		EmergencyID: e.ID,
		Emergency:   e,
		Timestamp:   time.Now(),
	})
	return e, nil
}

// ActiveNear returns open emergencies within radiusKm of the point. A
// non-positive radius lists every open emergency without a geo filter.
func (c *Coordinator) ActiveNear(ctx context.Context, lat, lng, radiusKm float64) ([]models.Emergency, error) {
	filter := repository.Filter{
		Statuses: []models.EmergencyStatus{models.StatusActive, models.StatusAcknowledged},
	}
	if radiusKm > 0 {
		bounds := matching.BoundsAround(lat, lng, radiusKm)
		filter.Bounds = &bounds
	}

	list, err := c.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing active emergencies: %w", err)
	}
	if radiusKm <= 0 {
		return list, nil
	}

	out := make([]models.Emergency, 0, len(list))
	for _, e := range list {
		if matching.Haversine(lat, lng, e.Location.Latitude, e.Location.Longitude) <= radiusKm {
			out = append(out, e)
		}
	}
	return out, nil
}
