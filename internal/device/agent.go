package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karanvs/go-emergency-dispatch/internal/config"
	"github.com/karanvs/go-emergency-dispatch/internal/detector"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

// maxPending bounds the local trigger queue; when full the oldest
// unsubmitted trigger is dropped (its offline fallback has already gone
// out by then).
const maxPending = 8

// submitTimeout bounds the opportunistic network submission so it can
// never stall the sampling loop past one tick budget.
const submitTimeout = 2 * time.Second

// SampleSource produces sensor readings. Hardware access is external; a
// read error means a stale tick, never an emergency.
type SampleSource interface {
	Read() (*models.SensorSample, error)
}

// LocationSource reports the device's best location estimate.
type LocationSource interface {
	Location() models.Location
}

// Submitter carries triggers and resolutions to the coordinator.
type Submitter interface {
	SubmitTrigger(ctx context.Context, t *models.TriggerEvent) (emergencyID string, err error)
	SubmitResolution(ctx context.Context, emergencyID string) error
}

// TextSender is the cellular control channel used when the coordinator
// is unreachable: a plain text message per configured contact.
type TextSender interface {
	SendText(ctx context.Context, phone, message string) error
}

type pendingTrigger struct {
	event        *models.TriggerEvent
	fallbackSent bool
}

// Agent is the device-side loop: one goroutine samples at a fixed
// cadence, evaluates the detector in-line and submits triggers
// opportunistically. Network failures queue the trigger locally and fall
// back to direct text messages to the configured contacts.
type Agent struct {
	cfg       config.DetectorConfig
	det       *detector.Detector
	source    SampleSource
	location  LocationSource
	submitter Submitter
	texts     TextSender
	contacts  []models.Contact
	now       func() time.Time

	sosRequested atomic.Bool
	cancelHeld   atomic.Bool

	pending     []pendingTrigger
	activeID    string
	triggeredAt time.Time

	wg sync.WaitGroup
}

func NewAgent(cfg config.DetectorConfig, det *detector.Detector, source SampleSource, location LocationSource, submitter Submitter, texts TextSender, contacts []models.Contact) *Agent {
	return &Agent{
		cfg:       cfg,
		det:       det,
		source:    source,
		location:  location,
		submitter: submitter,
		texts:     texts,
		contacts:  contacts,
		now:       time.Now,
	}
}

func (a *Agent) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

func (a *Agent) Stop() {
	a.wg.Wait()
}

// PressSOS requests a manual trigger; it is consumed on the next tick.
func (a *Agent) PressSOS() {
	a.sosRequested.Store(true)
}

// SetCancelHeld feeds the state of the cancel input; holding it for the
// configured window resolves the active incident locally.
func (a *Agent) SetCancelHeld(held bool) {
	a.cancelHeld.Store(held)
}

func (a *Agent) run(ctx context.Context) {
	defer a.wg.Done()
	slog.Info("device agent started", "interval", a.cfg.SampleInterval)

	ticker := time.NewTicker(a.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("device agent shutting down")
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	sample, err := a.source.Read()
	if err != nil {
		// No new evidence this tick; the detector keeps last-known state.
		slog.Debug("sensor read failed", "error", err)
		sample = nil
	}
	loc := a.location.Location()

	if a.det.CancelTick(a.cancelHeld.Load()) {
		a.resolveLocally(ctx)
	}

	var trigger *models.TriggerEvent
	if a.sosRequested.Swap(false) {
		trigger = a.det.ManualTrigger(loc, sample)
	}
	if trigger == nil {
		trigger = a.det.Evaluate(sample, loc)
	}

	if trigger != nil {
		slog.Warn("trigger fired", "reason", trigger.Reason, "severity", trigger.Severity)
		a.triggeredAt = trigger.Timestamp
		a.enqueue(trigger)
	}

	a.flush(ctx)
}

func (a *Agent) enqueue(t *models.TriggerEvent) {
	if len(a.pending) >= maxPending {
		a.pending = a.pending[1:]
	}
	a.pending = append(a.pending, pendingTrigger{event: t})
}

// flush attempts one bounded submission per queued trigger. Submission is
// fire-and-forget from the loop's perspective: failure keeps the trigger
// queued for the next tick and routes the offline fallback exactly once.
func (a *Agent) flush(ctx context.Context) {
	remaining := a.pending[:0]
	for _, p := range a.pending {
		sctx, cancel := context.WithTimeout(ctx, submitTimeout)
		id, err := a.submitter.SubmitTrigger(sctx, p.event)
		cancel()

		if err == nil {
			a.activeID = id
			slog.Info("trigger submitted", "emergency", id, "reason", p.event.Reason)
			continue
		}

		slog.Warn("trigger submission failed, queuing", "reason", p.event.Reason, "error", err)
		if !p.fallbackSent {
			a.sendOfflineFallback(ctx, p.event)
			p.fallbackSent = true
		}
		remaining = append(remaining, p)
	}
	a.pending = remaining
}

func (a *Agent) resolveLocally(ctx context.Context) {
	slog.Info("emergency cancelled by user hold")
	a.pending = nil
	if a.activeID == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if err := a.submitter.SubmitResolution(sctx, a.activeID); err != nil {
		slog.Warn("could not surface cancellation to coordinator", "emergency", a.activeID, "error", err)
	}
	a.activeID = ""
}

func (a *Agent) sendOfflineFallback(ctx context.Context, t *models.TriggerEvent) {
	msg := a.fallbackMessage(t)
	for _, contact := range a.contacts {
		if err := a.texts.SendText(ctx, contact.Phone, msg); err != nil {
			slog.Error("offline fallback text failed", "contact", contact.ID, "error", err)
		}
	}
}

func (a *Agent) fallbackMessage(t *models.TriggerEvent) string {
	speed := 0.0
	if t.Sample != nil {
		speed = t.Sample.Speed
	}
	elapsed := a.now().Sub(a.triggeredAt).Round(time.Second)
	return fmt.Sprintf("EMERGENCY (%s): approx speed %.0f, %s since trigger, last location %.4f,%.4f",
		t.Reason, speed, elapsed, t.Location.Latitude, t.Location.Longitude)
}
