package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
	"github.com/karanvs/go-emergency-dispatch/internal/repository"
)

// ErrInvalidTransition is returned when a status change is requested out
// of a terminal state or to a state the machine does not allow. The
// record is left unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// Machine owns every Emergency record. All mutations go through it; it
// serializes work per record with a keyed lock arena so concurrent
// triggers and status updates on the same emergency never interleave.
type Machine struct {
	repo  repository.EmergencyRepository
	locks lockArena
	now   func() time.Time
	newID func() string
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(repo repository.EmergencyRepository, opts ...Option) *Machine {
	m := &Machine{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create ingests a trigger. If the owning user already has an open
// emergency the trigger is merged onto it as a timeline entry (and may
// escalate priority) instead of opening a duplicate; merged reports which
// path was taken. The advisory, when non-nil, is attached to the record
// (an existing advisory on a merge target is kept).
func (m *Machine) Create(ctx context.Context, trigger *models.TriggerEvent, advisory *models.Advisory) (e *models.Emergency, merged bool, err error) {
	unlock := m.locks.lock("user:" + trigger.UserID)
	defer unlock()

	existing, err := m.repo.FindOpenByUser(ctx, trigger.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("looking up open emergency: %w", err)
	}
	if existing != nil {
		target, mergeErr := m.merge(ctx, existing.ID, trigger, advisory)
		if mergeErr != nil {
			return nil, false, mergeErr
		}
		if target != nil {
			return target, true, nil
		}
		// The record closed between the lookup and the merge lock; the
		// trigger opens a fresh emergency below.
	}

	now := m.now()
	priority := trigger.Severity
	if priority.Rank() < 0 {
		priority = models.PriorityMedium
	}
	e = &models.Emergency{
		ID:        m.newID(),
		UserID:    trigger.UserID,
		Type:      trigger.Reason.EmergencyType(),
		Status:    models.StatusActive,
		Priority:  priority,
		Location:  trigger.Location,
		Advisory:  advisory,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.Timeline = append(e.Timeline, models.TimelineEntry{
		Seq:       1,
		Kind:      models.EntryCreated,
		Timestamp: now,
		Reason:    trigger.Reason,
		Priority:  priority,
	})

	if err := m.repo.Save(ctx, e); err != nil {
		return nil, false, fmt.Errorf("persisting emergency: %w", err)
	}
	slog.Info("emergency created", "id", e.ID, "user", e.UserID, "type", e.Type, "priority", e.Priority)
	return e, false, nil
}

// merge folds the trigger onto the open record, or returns nil when the
// record reached a terminal state since the caller's lookup. The record
// is re-read under the per-record lock so a concurrent Transition can
// never be overwritten with stale state.
func (m *Machine) merge(ctx context.Context, id string, trigger *models.TriggerEvent, advisory *models.Advisory) (*models.Emergency, error) {
	unlock := m.locks.lock("emergency:" + id)
	defer unlock()

	e, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("re-reading emergency for merge: %w", err)
	}
	if !e.Open() {
		return nil, nil
	}
	if e.Advisory == nil {
		e.Advisory = advisory
	}

	now := m.now()

	// A merge re-evaluates priority: a manual SOS on top of an open
	// incident always escalates to critical, any other trigger can only
	// raise it.
	priority := e.Priority
	if trigger.Reason == models.ReasonManualSOS {
		priority = models.PriorityCritical
	} else if trigger.Severity.Rank() > priority.Rank() {
		priority = trigger.Severity
	}
	e.Priority = priority
	e.UpdatedAt = now
	e.Timeline = append(e.Timeline, models.TimelineEntry{
		Seq:       len(e.Timeline) + 1,
		Kind:      models.EntryTriggerMerged,
		Timestamp: now,
		Reason:    trigger.Reason,
		Priority:  priority,
	})

	if err := m.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("persisting merged trigger: %w", err)
	}
	slog.Info("trigger merged into open emergency", "id", e.ID, "reason", trigger.Reason, "priority", priority)
	return e, nil
}

// Transition moves an emergency to newStatus, appending a status-change
// timeline entry. Terminal states are final; attempts to leave them fail
// with ErrInvalidTransition and the record is untouched.
func (m *Machine) Transition(ctx context.Context, id string, newStatus models.EmergencyStatus, actorID, notes string) (*models.Emergency, error) {
	unlock := m.locks.lock("emergency:" + id)
	defer unlock()

	e, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !allowed(e.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, newStatus)
	}

	now := m.now()
	e.Status = newStatus
	e.UpdatedAt = now
	if newStatus.Terminal() {
		e.ResolvedBy = actorID
		t := now
		e.ResolvedAt = &t
		if notes != "" {
			e.Notes = notes
		}
	}
	e.Timeline = append(e.Timeline, models.TimelineEntry{
		Seq:       len(e.Timeline) + 1,
		Kind:      models.EntryStatusChange,
		Timestamp: now,
		Status:    newStatus,
		ActorID:   actorID,
		Notes:     notes,
	})

	if err := m.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("persisting transition: %w", err)
	}
	slog.Info("emergency status changed", "id", e.ID, "status", newStatus, "actor", actorID)
	return e, nil
}

// AttachAssignments records matched responders on the emergency under the
// same per-record exclusion as every other mutation.
func (m *Machine) AttachAssignments(ctx context.Context, id string, candidates []models.ResponderCandidate) (*models.Emergency, error) {
	unlock := m.locks.lock("emergency:" + id)
	defer unlock()

	e, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		e.Assignments = append(e.Assignments, models.Assignment{
			EmergencyID: e.ID,
			ResponderID: c.ID,
			Role:        c.Role,
			DistanceKm:  c.DistanceKm,
			ETAMinutes:  c.ETAMinutes,
			CreatedAt:   now,
		})
		ids = append(ids, c.ID)
	}
	e.UpdatedAt = now
	e.Timeline = append(e.Timeline, models.TimelineEntry{
		Seq:          len(e.Timeline) + 1,
		Kind:         models.EntryAssigned,
		Timestamp:    now,
		ResponderIDs: ids,
	})

	if err := m.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("persisting assignments: %w", err)
	}
	return e, nil
}

// RecordOutcome folds one finished notification attempt into the record's
// timeline for operator visibility.
func (m *Machine) RecordOutcome(ctx context.Context, id string, attempt *models.NotificationAttempt) error {
	unlock := m.locks.lock("emergency:" + id)
	defer unlock()

	e, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := m.now()
	e.UpdatedAt = now
	e.Timeline = append(e.Timeline, models.TimelineEntry{
		Seq:         len(e.Timeline) + 1,
		Kind:        models.EntryNotifyOutcome,
		Timestamp:   now,
		RecipientID: attempt.RecipientID,
		Channel:     attempt.Channel,
		Outcome:     attempt.Status,
	})

	if err := m.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("persisting notification outcome: %w", err)
	}
	return nil
}

func allowed(from, to models.EmergencyStatus) bool {
	switch from {
	case models.StatusActive:
		return to == models.StatusAcknowledged || to == models.StatusResolved || to == models.StatusFalseAlarm
	case models.StatusAcknowledged:
		return to == models.StatusResolved || to == models.StatusFalseAlarm
	default:
		return false
	}
}

// lockArena hands out one mutex per key. Entries are kept for the life of
// the process; the working set is bounded by open records and users seen.
type lockArena struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (a *lockArena) lock(key string) func() {
	a.mu.Lock()
	if a.m == nil {
		a.m = make(map[string]*sync.Mutex)
	}
	l, ok := a.m[key]
	if !ok {
		l = &sync.Mutex{}
		a.m[key] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
