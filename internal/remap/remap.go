package remap

import (
	"strings"
	"sync"
	"time"

	"votalinkd/internal/pattern"
	"votalinkd/pkg/models"
)

// ReleaseTimeout is how long a session waits for a release report after the
// press before settling on a press-only pattern.
const ReleaseTimeout = 2 * time.Second

// State is the calibration progress.
type State int

const (
	WaitingForPress State = iota
	WaitingForRelease
	Finalized
)

// Session learns a call button's byte pattern from live traffic. It commits
// to the first qualifying report as the press, then waits a bounded time for
// a corroborating release. Some headsets only ever emit a press report, so
// the release is optional; calibration works either way without knowing the
// model. A finalized session ignores all further reports until Cancel or
// collection of the capture.
type Session struct {
	mu      sync.Mutex
	state   State
	press   string
	release string
	capture models.RemapCapture
	timer   *time.Timer
	timeout time.Duration

	// OnFinalized receives the learned capture exactly once.
	OnFinalized func(models.RemapCapture)
	// Logf receives category-tagged diagnostics.
	Logf func(category, format string, args ...interface{})
}

// NewSession creates a session waiting for the first button press.
func NewSession() *Session {
	return &Session{timeout: ReleaseTimeout}
}

// newSessionWithTimeout exists for tests that cannot wait two seconds.
func newSessionWithTimeout(timeout time.Duration) *Session {
	return &Session{timeout: timeout}
}

// State returns the current calibration state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capture returns the learned pattern; valid once the state is Finalized.
func (s *Session) Capture() models.RemapCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// Cancel abandons the session, stopping the release timer. A session that
// never saw a press simply stays in WaitingForPress until cancelled.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = Finalized
}

// Offer feeds one raw report into the session.
func (s *Session) Offer(report models.RawReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Finalized {
		return
	}

	hex := pattern.NormalizeBytes(report.Data)
	if !s.qualifies(report, hex) {
		return
	}

	switch s.state {
	case WaitingForPress:
		if !looksLikePress(report.Data) {
			return
		}
		s.press = hex
		s.capture = models.RemapCapture{
			Press:     hex,
			Path:      report.Path,
			VendorID:  report.VendorID,
			ProductID: report.ProductID,
		}
		s.state = WaitingForRelease
		s.logf("CALL-BUTTON", "Press detected: %s (VID=0x%04X PID=0x%04X), waiting for release...",
			hex, report.VendorID, report.ProductID)
		s.timer = time.AfterFunc(s.timeout, s.releaseTimedOut)

	case WaitingForRelease:
		if report.Path != s.capture.Path ||
			report.VendorID != s.capture.VendorID ||
			report.ProductID != s.capture.ProductID {
			return
		}
		if !looksLikeRelease(report.Data, hex, s.press) {
			return
		}
		s.release = hex
		s.finalizeLocked()
	}
}

// releaseTimedOut settles on the press-only pattern when no release arrived.
func (s *Session) releaseTimedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != WaitingForRelease {
		return
	}
	s.finalizeLocked()
}

func (s *Session) finalizeLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = Finalized

	s.capture.Release = s.release
	if s.release != "" {
		s.capture.Pattern = s.press + "," + s.release
		s.logf("CALL-BUTTON", "Press and release detected: %s", s.capture.Pattern)
	} else {
		s.capture.Pattern = s.press
		s.logf("CALL-BUTTON", "Button press detected: %s", s.capture.Pattern)
	}

	if s.OnFinalized != nil {
		// Deliver outside the lock; the callback may call back into Session.
		capture := s.capture
		go s.OnFinalized(capture)
	}
}

// qualifies applies the same shape filter as live classification: no volume
// buttons, nothing longer than 8 bytes, no known spam bursts, and no all-zero
// payloads except while a release is awaited.
func (s *Session) qualifies(report models.RawReport, hex string) bool {
	if hex == "" || hex == "01-01" || hex == "01-02" {
		return false
	}
	if len(report.Data) > 8 {
		return false
	}
	if !hasActivity(report.Data) && s.state != WaitingForRelease {
		return false
	}
	// The WH64 base's status chatter would otherwise win the race against the
	// real button.
	if report.VendorID == 0x6993 && report.ProductID == 0xB0AE && len(report.Data) >= 2 {
		if report.Data[0] == 0xC8 {
			switch report.Data[1] {
			case 0x3B, 0x3A, 0x39, 0x38, 0x03, 0x00:
				return false
			}
		}
	}
	return true
}

// looksLikePress decides whether a payload reads as "button down": second
// byte non-zero, or any activity in a one-byte report.
func looksLikePress(data []byte) bool {
	if len(data) >= 2 {
		return data[1] != 0x00
	}
	return hasActivity(data)
}

// looksLikeRelease decides whether a payload reads as "back to idle" for the
// committed press: same leading byte, second byte dropped to zero.
func looksLikeRelease(data []byte, hex, press string) bool {
	if len(data) < 2 || data[1] != 0x00 || !hasActivity(data) {
		return false
	}
	firstOctet, _, _ := strings.Cut(press, "-")
	return strings.HasPrefix(hex, firstOctet)
}

func hasActivity(data []byte) bool {
	for _, b := range data {
		if b != 0x00 {
			return true
		}
	}
	return false
}

func (s *Session) logf(category, format string, args ...interface{}) {
	if s.Logf != nil {
		s.Logf(category, format, args...)
	}
}
