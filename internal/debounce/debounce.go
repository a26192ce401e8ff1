package debounce

import (
	"sync"
	"time"

	"votalinkd/pkg/models"
)

// Debouncer enforces the safety delay between confirmed call actions. A press
// right after a successful answer would hang up the call that just connected,
// so answers are always protected; protecting hangups is a user preference.
//
// State only moves on confirmed (successful) extension replies. Presses that
// arrive while suppressed never touch the timer, otherwise rapid presses
// would keep resetting it and lock the button out indefinitely.
type Debouncer struct {
	mu               sync.Mutex
	lastAction       models.Action
	lastSuccessAt    time.Time
	safetyDelay      time.Duration
	delayAfterHangup bool
}

// New creates a debouncer. A zero or negative delay disables suppression.
func New(safetyDelaySeconds int, delayAfterHangup bool) *Debouncer {
	return &Debouncer{
		safetyDelay:      time.Duration(safetyDelaySeconds) * time.Second,
		delayAfterHangup: delayAfterHangup,
	}
}

// SetPolicy applies updated safety-delay settings at runtime.
func (d *Debouncer) SetPolicy(safetyDelaySeconds int, delayAfterHangup bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.safetyDelay = time.Duration(safetyDelaySeconds) * time.Second
	d.delayAfterHangup = delayAfterHangup
}

// ShouldSuppress decides whether a press at the given instant must be ignored,
// and if so returns the remaining delay and the protected action. The decision
// is pure in (state, now); concurrent presses each evaluate independently.
func (d *Debouncer) ShouldSuppress(now time.Time) (bool, time.Duration, models.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.safetyDelay <= 0 {
		return false, 0, models.ActionNone
	}

	switch d.lastAction {
	case models.ActionAnswer:
		// Always protected.
	case models.ActionHangup:
		if !d.delayAfterHangup {
			return false, 0, models.ActionNone
		}
	default:
		return false, 0, models.ActionNone
	}

	elapsed := now.Sub(d.lastSuccessAt)
	if elapsed < d.safetyDelay {
		return true, d.safetyDelay - elapsed, d.lastAction
	}
	return false, 0, models.ActionNone
}

// RecordConfirmed notes a successful action reported by an extension. Failed
// replies must not reach here.
func (d *Debouncer) RecordConfirmed(action models.Action, at time.Time) {
	if action != models.ActionAnswer && action != models.ActionHangup {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastAction = action
	d.lastSuccessAt = at
}

// Last returns the last confirmed action and when it succeeded.
func (d *Debouncer) Last() (models.Action, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAction, d.lastSuccessAt
}
