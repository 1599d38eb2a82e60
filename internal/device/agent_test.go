package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/karanvs/go-emergency-dispatch/internal/config"
	"github.com/karanvs/go-emergency-dispatch/internal/detector"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

func testDetectorConfig() config.DetectorConfig {
	return config.DetectorConfig{
		ImpactThresholdG:    20.0,
		SpeedDeltaThreshold: 30.0,
		NearStopSpeed:       10.0,
		HeartRateLow:        50.0,
		HeartRateHigh:       120.0,
		OxygenThreshold:     90.0,
		GyroThreshold:       3.0,
		Cooldown:            5 * time.Second,
		CancelHold:          5 * time.Second,
		SampleInterval:      500 * time.Millisecond,
	}
}

type fakeSource struct {
	sample *models.SensorSample
	err    error
}

func (f *fakeSource) Read() (*models.SensorSample, error) {
	return f.sample, f.err
}

type fixedLocation struct{}

func (fixedLocation) Location() models.Location {
	return models.Location{Latitude: 28.6139, Longitude: 77.2090}
}

type fakeSubmitter struct {
	mu        sync.Mutex
	failing   bool
	submitted []*models.TriggerEvent
	resolved  []string
	nextID    string
}

func (f *fakeSubmitter) SubmitTrigger(ctx context.Context, t *models.TriggerEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", errors.New("coordinator unreachable")
	}
	f.submitted = append(f.submitted, t)
	if f.nextID == "" {
		f.nextID = "em_1"
	}
	return f.nextID, nil
}

func (f *fakeSubmitter) SubmitResolution(ctx context.Context, emergencyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("coordinator unreachable")
	}
	f.resolved = append(f.resolved, emergencyID)
	return nil
}

type fakeTexts struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeTexts) SendText(ctx context.Context, phone, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, phone+": "+message)
	return nil
}

func benignSample() *models.SensorSample {
	return &models.SensorSample{
		AccelX: 0.1, AccelY: 0.1, AccelZ: -1.0,
		GyroX: 0.1, GyroY: 0.1, GyroZ: 0.1,
		HeartRate: 75, OxygenLevel: 98,
		Speed:     40,
		HasMotion: true, HasVitals: true, HasSpeed: true,
	}
}

func crashSample() *models.SensorSample {
	s := benignSample()
	s.AccelX = 35
	return s
}

func newTestAgent(src *fakeSource, sub *fakeSubmitter, texts *fakeTexts) *Agent {
	cfg := testDetectorConfig()
	det := detector.New(cfg, "user_1")
	contacts := []models.Contact{{ID: "c1", Name: "Next of Kin", Phone: "+911234"}}
	return NewAgent(cfg, det, src, fixedLocation{}, sub, texts, contacts)
}

func TestTick_BenignSampleDoesNothing(t *testing.T) {
	src := &fakeSource{sample: benignSample()}
	sub := &fakeSubmitter{}
	texts := &fakeTexts{}
	a := newTestAgent(src, sub, texts)

	for i := 0; i < 5; i++ {
		a.tick(context.Background())
	}

	if len(sub.submitted) != 0 {
		t.Errorf("benign samples submitted %d triggers", len(sub.submitted))
	}
	if len(texts.sent) != 0 {
		t.Errorf("benign samples sent %d texts", len(texts.sent))
	}
}

func TestTick_CrashSubmitsTrigger(t *testing.T) {
	src := &fakeSource{sample: benignSample()}
	sub := &fakeSubmitter{}
	texts := &fakeTexts{}
	a := newTestAgent(src, sub, texts)

	a.tick(context.Background())
	src.sample = crashSample()
	a.tick(context.Background())

	if len(sub.submitted) != 1 {
		t.Fatalf("expected 1 submitted trigger, got %d", len(sub.submitted))
	}
	if sub.submitted[0].Reason != models.ReasonHighImpact {
		t.Errorf("reason = %s, want high_impact", sub.submitted[0].Reason)
	}
	if a.activeID != "em_1" {
		t.Errorf("activeID = %q, want em_1", a.activeID)
	}
	if len(texts.sent) != 0 {
		t.Errorf("successful submission must not text contacts, got %d", len(texts.sent))
	}
}

func TestTick_ManualSOS(t *testing.T) {
	src := &fakeSource{sample: benignSample()}
	sub := &fakeSubmitter{}
	a := newTestAgent(src, sub, &fakeTexts{})

	a.PressSOS()
	a.tick(context.Background())

	if len(sub.submitted) != 1 {
		t.Fatalf("expected 1 submitted trigger, got %d", len(sub.submitted))
	}
	if sub.submitted[0].Reason != models.ReasonManualSOS {
		t.Errorf("reason = %s, want manual_sos", sub.submitted[0].Reason)
	}
	if sub.submitted[0].Severity != models.PriorityHigh {
		t.Errorf("severity = %s, want high", sub.submitted[0].Severity)
	}
}

func TestTick_OfflineFallbackTextsOnce(t *testing.T) {
	src := &fakeSource{sample: crashSample()}
	sub := &fakeSubmitter{failing: true}
	texts := &fakeTexts{}
	a := newTestAgent(src, sub, texts)

	a.tick(context.Background())
	if len(texts.sent) != 1 {
		t.Fatalf("expected 1 fallback text, got %d", len(texts.sent))
	}

	// Further ticks keep the trigger queued but do not re-text.
	src.sample = benignSample()
	a.tick(context.Background())
	a.tick(context.Background())
	if len(texts.sent) != 1 {
		t.Errorf("fallback re-sent: %d texts", len(texts.sent))
	}
	if len(a.pending) != 1 {
		t.Errorf("trigger should stay queued while offline, pending = %d", len(a.pending))
	}

	// Connectivity returns: the queued trigger is delivered.
	sub.failing = false
	a.tick(context.Background())
	if len(sub.submitted) != 1 {
		t.Errorf("expected queued trigger delivered, got %d", len(sub.submitted))
	}
	if len(a.pending) != 0 {
		t.Errorf("queue not drained: %d", len(a.pending))
	}
}

func TestTick_SensorReadErrorIsNotAnEmergency(t *testing.T) {
	src := &fakeSource{err: errors.New("i2c bus error")}
	sub := &fakeSubmitter{}
	texts := &fakeTexts{}
	a := newTestAgent(src, sub, texts)

	for i := 0; i < 3; i++ {
		a.tick(context.Background())
	}

	if len(sub.submitted) != 0 || len(texts.sent) != 0 {
		t.Error("read failures must not trigger anything")
	}
}

func TestTick_CancelHoldResolves(t *testing.T) {
	src := &fakeSource{sample: benignSample()}
	sub := &fakeSubmitter{}
	a := newTestAgent(src, sub, &fakeTexts{})

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := testDetectorConfig()
	det := detector.New(cfg, "user_1", detector.WithClock(func() time.Time { return clock }))
	a.det = det

	a.PressSOS()
	a.tick(context.Background())
	if a.activeID != "em_1" {
		t.Fatalf("activeID = %q, want em_1", a.activeID)
	}

	// Hold cancel across the configured window.
	a.SetCancelHeld(true)
	a.tick(context.Background())
	clock = clock.Add(cfg.CancelHold)
	a.tick(context.Background())

	if len(sub.resolved) != 1 || sub.resolved[0] != "em_1" {
		t.Fatalf("expected em_1 resolved, got %v", sub.resolved)
	}
	if a.activeID != "" {
		t.Errorf("activeID not cleared: %q", a.activeID)
	}

	// The detector is armed again after resolution.
	a.SetCancelHeld(false)
	a.PressSOS()
	a.tick(context.Background())
	if len(sub.submitted) != 2 {
		t.Errorf("expected a fresh trigger after cancel, got %d submissions", len(sub.submitted))
	}
}
