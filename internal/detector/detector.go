package detector

import (
	"math"
	"time"

	"github.com/karanvs/go-emergency-dispatch/internal/config"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

// heartRateWindow smooths the last few valid beats so a single noisy
// reading cannot satisfy the medical rule on its own.
const heartRateWindow = 4

// Detector evaluates sensor samples against the composite trigger rules.
// It is single-goroutine by design: the device loop calls Evaluate once
// per sampling tick.
type Detector struct {
	cfg config.DetectorConfig
	now func() time.Time

	userID string

	hrBuf   [heartRateWindow]float64
	hrCount int
	hrNext  int

	lastSpeed    float64
	hasLastSpeed bool

	suppressed    bool
	cooldownUntil time.Time

	cancelSince time.Time
	cancelHeld  bool
}

// Option configures a Detector; used by tests to inject a clock.
type Option func(*Detector)

func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

func New(cfg config.DetectorConfig, userID string, opts ...Option) *Detector {
	d := &Detector{
		cfg:    cfg,
		now:    time.Now,
		userID: userID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate runs the composite rules against one sample and returns a
// trigger when any rule fires, or nil. Rules are checked in fixed order
// and the first match wins. While an incident is active (or during the
// post-trigger cooldown) evaluation is suspended entirely.
func (d *Detector) Evaluate(sample *models.SensorSample, loc models.Location) *models.TriggerEvent {
	if sample == nil {
		// Missing sample is "no new evidence", never a trigger.
		return nil
	}

	// Track rolling state even while suppressed so the detector resumes
	// with fresh values.
	prevSpeed, hadSpeed := d.lastSpeed, d.hasLastSpeed
	if sample.HasSpeed {
		d.lastSpeed = sample.Speed
		d.hasLastSpeed = true
	}
	avgHR, hrOK := d.pushHeartRate(sample)

	if d.suppressed || d.now().Before(d.cooldownUntil) {
		return nil
	}

	if sample.HasMotion && sample.AccelMagnitude() > d.cfg.ImpactThresholdG {
		return d.emit(models.ReasonHighImpact, models.PriorityCritical, sample, loc)
	}

	if sample.HasSpeed && hadSpeed &&
		prevSpeed > sample.Speed &&
		math.Abs(prevSpeed-sample.Speed) > d.cfg.SpeedDeltaThreshold &&
		sample.Speed < d.cfg.NearStopSpeed {
		return d.emit(models.ReasonSuddenStop, models.PriorityHigh, sample, loc)
	}

	if sample.HasVitals && hrOK &&
		(avgHR > d.cfg.HeartRateHigh || avgHR < d.cfg.HeartRateLow) &&
		sample.OxygenLevel < d.cfg.OxygenThreshold {
		return d.emit(models.ReasonVitals, models.PriorityCritical, sample, loc)
	}

	if sample.HasMotion &&
		(math.Abs(sample.GyroX) > d.cfg.GyroThreshold ||
			math.Abs(sample.GyroY) > d.cfg.GyroThreshold ||
			math.Abs(sample.GyroZ) > d.cfg.GyroThreshold) {
		return d.emit(models.ReasonRollover, models.PriorityCritical, sample, loc)
	}

	return nil
}

// ManualTrigger bypasses all rules. It still honors the active-incident
// suppression so a held button does not spam triggers; the server-side
// dedup merge handles anything that slips through.
func (d *Detector) ManualTrigger(loc models.Location, sample *models.SensorSample) *models.TriggerEvent {
	if d.suppressed || d.now().Before(d.cooldownUntil) {
		return nil
	}
	return d.emit(models.ReasonManualSOS, models.PriorityHigh, sample, loc)
}

// Resolve re-arms the detector after the active emergency is resolved or
// cancelled.
func (d *Detector) Resolve() {
	d.suppressed = false
	d.cancelSince = time.Time{}
	d.cancelHeld = false
}

// Suppressed reports whether the detector is holding evaluation for an
// active incident.
func (d *Detector) Suppressed() bool {
	return d.suppressed
}

// CancelTick feeds one tick of the cancel input. It returns true exactly
// once when the cancel action has been held continuously for the
// configured window, which resolves the incident locally.
func (d *Detector) CancelTick(pressed bool) bool {
	if !pressed {
		d.cancelSince = time.Time{}
		d.cancelHeld = false
		return false
	}
	now := d.now()
	if d.cancelSince.IsZero() {
		d.cancelSince = now
		return false
	}
	if d.cancelHeld || now.Sub(d.cancelSince) < d.cfg.CancelHold {
		return false
	}
	d.cancelHeld = true
	d.Resolve()
	return true
}

func (d *Detector) emit(reason models.TriggerReason, severity models.Priority, sample *models.SensorSample, loc models.Location) *models.TriggerEvent {
	now := d.now()
	d.suppressed = true
	d.cooldownUntil = now.Add(d.cfg.Cooldown)

	var snapshot *models.SensorSample
	if sample != nil {
		s := *sample
		snapshot = &s
	}
	return &models.TriggerEvent{
		Reason:    reason,
		Severity:  severity,
		UserID:    d.userID,
		Location:  loc,
		Sample:    snapshot,
		Timestamp: now,
	}
}

// pushHeartRate adds a valid beat to the rolling buffer and returns the
// current average. The average is only meaningful once the buffer has
// filled.
func (d *Detector) pushHeartRate(sample *models.SensorSample) (float64, bool) {
	if sample.HasVitals && sample.HeartRate > 0 {
		d.hrBuf[d.hrNext] = sample.HeartRate
		d.hrNext = (d.hrNext + 1) % heartRateWindow
		if d.hrCount < heartRateWindow {
			d.hrCount++
		}
	}
	if d.hrCount == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < d.hrCount; i++ {
		sum += d.hrBuf[i]
	}
	return sum / float64(d.hrCount), true
}
