package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karanvs/go-emergency-dispatch/internal/config"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
	"github.com/karanvs/go-emergency-dispatch/internal/repository"
	"github.com/karanvs/go-emergency-dispatch/internal/worker"
)

type RecipientKind string

const (
	KindResponder RecipientKind = "responder"
	KindContact   RecipientKind = "contact"
	KindService   RecipientKind = "service"
)

// Recipient is one target of a notification fan-out, flattened from a
// responder, personal contact, or fixed service line.
type Recipient struct {
	ID        string
	Name      string
	Kind      RecipientKind
	Phone     string
	PushToken string
}

// Sender delivers one message over one channel. Transport internals are
// out of scope; real providers plug in here.
type Sender interface {
	Send(ctx context.Context, recipient Recipient, e *models.Emergency) error
}

// OutcomeRecorder folds a finished attempt back into the emergency
// record; the lifecycle machine satisfies this.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, emergencyID string, attempt *models.NotificationAttempt) error
}

type sendJob struct {
	ctx       context.Context
	attempt   *models.NotificationAttempt
	recipient Recipient
	emergency *models.Emergency
	collect   func(models.NotificationAttempt)
	wg        *sync.WaitGroup
}

// Dispatcher fans an emergency out to responders, personal contacts and
// fixed service lines. Each (recipient, channel) pair becomes exactly one
// NotificationAttempt; sends are failure-isolated and retried up to the
// configured bound before being marked failed.
type Dispatcher struct {
	cfg      config.DispatchConfig
	attempts repository.AttemptRepository
	recorder OutcomeRecorder
	senders  map[models.Channel]Sender
	pool     *worker.Pool[sendJob]
}

func NewDispatcher(cfg config.DispatchConfig, attempts repository.AttemptRepository, recorder OutcomeRecorder, senders map[models.Channel]Sender) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		attempts: attempts,
		recorder: recorder,
		senders:  senders,
	}
	d.pool = worker.NewPool(cfg.Workers, cfg.BufferSize, d.runJob)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Dispatch creates and sends one attempt per recipient and channel:
// sms+push for responders, sms+push+voice for personal contacts, and the
// fixed service lines unconditionally. It blocks until every outcome has
// been folded into the attempt records, then returns them. A recipient
// already dispatched for this emergency is skipped, never re-created.
func (d *Dispatcher) Dispatch(ctx context.Context, e *models.Emergency, candidates []models.ResponderCandidate, contacts []models.Contact) []models.NotificationAttempt {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []models.NotificationAttempt

	collect := func(a models.NotificationAttempt) {
		mu.Lock()
		out = append(out, a)
		mu.Unlock()
	}

	submit := func(r Recipient, ch models.Channel) {
		attempt := &models.NotificationAttempt{
			ID:          uuid.NewString(),
			EmergencyID: e.ID,
			RecipientID: r.ID,
			Channel:     ch,
			Status:      models.AttemptPending,
			UpdatedAt:   time.Now(),
		}
		created, err := d.attempts.CreateAttempt(ctx, attempt)
		if err != nil {
			slog.Error("error creating notification attempt", "emergency", e.ID, "recipient", r.ID, "channel", ch, "error", err)
			return
		}
		if !created {
			return
		}
		wg.Add(1)
		d.pool.Submit(sendJob{
			ctx:       ctx,
			attempt:   attempt,
			recipient: r,
			emergency: e,
			collect:   collect,
			wg:        &wg,
		})
	}

	// Fixed service lines first: they are notified unconditionally and
	// never depend on any other recipient's outcome.
	for _, line := range d.cfg.ServiceLines {
		submit(Recipient{ID: line, Name: line, Kind: KindService}, models.ChannelVoice)
	}

	for _, c := range candidates {
		r := Recipient{ID: c.ID, Name: c.Name, Kind: KindResponder, Phone: c.Phone, PushToken: c.PushToken}
		submit(r, models.ChannelSMS)
		submit(r, models.ChannelPush)
	}

	for _, c := range contacts {
		r := Recipient{ID: c.ID, Name: c.Name, Kind: KindContact, Phone: c.Phone, PushToken: c.PushToken}
		submit(r, models.ChannelSMS)
		submit(r, models.ChannelPush)
		submit(r, models.ChannelVoice)
	}

	wg.Wait()
	return out
}

func (d *Dispatcher) runJob(_ context.Context, job sendJob) {
	defer job.wg.Done()

	attempt := job.attempt

	sender, ok := d.senders[attempt.Channel]
	if !ok {
		attempt.Status = models.AttemptFailed
		attempt.LastError = fmt.Sprintf("no sender configured for channel %s", attempt.Channel)
	} else {
		d.send(job.ctx, sender, job.recipient, job.emergency, attempt)
	}

	attempt.UpdatedAt = time.Now()
	if err := d.attempts.UpdateAttempt(job.ctx, attempt); err != nil {
		slog.Error("error persisting attempt outcome", "emergency", attempt.EmergencyID, "recipient", attempt.RecipientID, "error", err)
	}
	if d.recorder != nil {
		if err := d.recorder.RecordOutcome(job.ctx, attempt.EmergencyID, attempt); err != nil {
			slog.Error("error recording attempt outcome", "emergency", attempt.EmergencyID, "error", err)
		}
	}

	job.collect(*attempt)
}

func (d *Dispatcher) send(ctx context.Context, sender Sender, r Recipient, e *models.Emergency, attempt *models.NotificationAttempt) {
	var lastErr error
	for try := 0; try <= d.cfg.MaxRetries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				attempt.Status = models.AttemptFailed
				attempt.LastError = ctx.Err().Error()
				return
			case <-time.After(d.cfg.RetryBackoff):
			}
		}
		attempt.Attempts++
		lastErr = sender.Send(ctx, r, e)
		if lastErr == nil {
			attempt.Status = models.AttemptSent
			attempt.LastError = ""
			return
		}
		slog.Warn("notification send failed", "recipient", r.ID, "channel", attempt.Channel, "try", attempt.Attempts, "error", lastErr)
	}
	attempt.Status = models.AttemptFailed
	attempt.LastError = lastErr.Error()
}
