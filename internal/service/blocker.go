package service

import (
	"sync"
	"time"
)

// suppressionWindow is how long after a button press the competing app's
// windows keep getting minimized; presses land moments before the app tries
// to grab the call.
const suppressionWindow = 2 * time.Second

// blockerTick paces the suppression loop.
const blockerTick = 100 * time.Millisecond

// WindowMinimizer minimizes the competing calling app's visible windows.
// Window enumeration is platform glue outside this core; the default is a
// no-op.
type WindowMinimizer interface {
	// MinimizeNew minimizes visible windows whose pids are not yet in seen
	// and returns the pids it acted on.
	MinimizeNew(seen map[int]struct{}) []int
}

// ProcessLister counts running processes by executable name, for startup
// advisories about apps that may hold the headset exclusively.
type ProcessLister interface {
	Count(names ...string) int
}

// NoopMinimizer satisfies WindowMinimizer without touching anything.
type NoopMinimizer struct{}

func (NoopMinimizer) MinimizeNew(map[int]struct{}) []int { return nil }

// NoopLister satisfies ProcessLister without touching anything.
type NoopLister struct{}

func (NoopLister) Count(...string) int { return 0 }

// teamsBlocker minimizes the competing app's windows for a short window after
// each call-button press. Each window is minimized once per press; the seen
// set resets on a new press or when the window expires.
type teamsBlocker struct {
	minimizer WindowMinimizer
	logf      func(category, format string, args ...interface{})

	mu        sync.Mutex
	lastPress time.Time
	seen      map[int]struct{}
}

func newTeamsBlocker(minimizer WindowMinimizer, logf func(string, string, ...interface{})) *teamsBlocker {
	return &teamsBlocker{
		minimizer: minimizer,
		logf:      logf,
		seen:      make(map[int]struct{}),
	}
}

// NotePress marks a fresh button press and re-arms suppression for every
// window.
func (b *teamsBlocker) NotePress(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPress = at
	b.seen = make(map[int]struct{})
}

// tick runs one suppression pass.
func (b *teamsBlocker) tick(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastPress) >= suppressionWindow {
		if len(b.seen) > 0 {
			b.seen = make(map[int]struct{})
		}
		return
	}

	for _, pid := range b.minimizer.MinimizeNew(b.seen) {
		b.seen[pid] = struct{}{}
		b.logf("TEAMS-BLOCKER", "Minimized Teams window (PID %d)", pid)
	}
}
