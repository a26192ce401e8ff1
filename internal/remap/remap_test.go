package remap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votalinkd/pkg/models"
)

func report(vid, pid uint16, path string, data ...byte) models.RawReport {
	return models.RawReport{VendorID: vid, ProductID: pid, Path: path, Data: data, At: time.Now()}
}

func TestPressThenReleaseFinalizesPair(t *testing.T) {
	s := NewSession()
	done := make(chan models.RemapCapture, 1)
	s.OnFinalized = func(c models.RemapCapture) { done <- c }

	assert.Equal(t, WaitingForPress, s.State())

	s.Offer(report(0x6993, 0xB0AE, "path-a", 0x9B, 0x01, 0x00))
	assert.Equal(t, WaitingForRelease, s.State())

	s.Offer(report(0x6993, 0xB0AE, "path-a", 0x9B, 0x00, 0x00))
	assert.Equal(t, Finalized, s.State())

	select {
	case c := <-done:
		assert.Equal(t, "9B-01-00,9B-00-00", c.Pattern)
		assert.Equal(t, "9B-01-00", c.Press)
		assert.Equal(t, "9B-00-00", c.Release)
		assert.Equal(t, "path-a", c.Path)
		assert.Equal(t, uint16(0x6993), c.VendorID)
	case <-time.After(time.Second):
		t.Fatal("no finalize callback")
	}

	// Terminal state ignores further reports.
	s.Offer(report(0x6993, 0xB0AE, "path-a", 0x9B, 0x01, 0x00))
	assert.Equal(t, "9B-01-00,9B-00-00", s.Capture().Pattern)
}

func TestPressOnlyFinalizesAfterTimeout(t *testing.T) {
	s := newSessionWithTimeout(50 * time.Millisecond)
	done := make(chan models.RemapCapture, 1)
	s.OnFinalized = func(c models.RemapCapture) { done <- c }

	s.Offer(report(0x0B0E, 0x2456, "path-b", 0x02, 0x05))

	select {
	case c := <-done:
		assert.Equal(t, "02-05", c.Pattern)
		assert.Empty(t, c.Release)
	case <-time.After(time.Second):
		t.Fatal("timeout did not finalize the session")
	}
}

func TestReleaseMustMatchDeviceAndFirstByte(t *testing.T) {
	s := NewSession()
	s.Offer(report(0x6993, 0xB0AE, "path-a", 0x9B, 0x01, 0x00))
	require.Equal(t, WaitingForRelease, s.State())

	// Different device: ignored.
	s.Offer(report(0x0B0E, 0x2456, "path-b", 0x9B, 0x00, 0x00))
	assert.Equal(t, WaitingForRelease, s.State())

	// Same device, different leading byte: ignored.
	s.Offer(report(0x6993, 0xB0AE, "path-a", 0x7C, 0x00, 0x00))
	assert.Equal(t, WaitingForRelease, s.State())

	// Matching release.
	s.Offer(report(0x6993, 0xB0AE, "path-a", 0x9B, 0x00, 0x00))
	assert.Equal(t, Finalized, s.State())
	s.Cancel()
}

func TestQualifyingFilters(t *testing.T) {
	s := NewSession()

	s.Offer(report(0x6993, 0x0001, "p", 0x01, 0x01))                // volume up
	s.Offer(report(0x6993, 0x0001, "p", 0x01, 0x02))                // volume down
	s.Offer(report(0x6993, 0x0001, "p", 0x00, 0x00))                // no activity
	s.Offer(report(0x6993, 0x0001, "p", 1, 2, 3, 4, 5, 6, 7, 8, 9)) // too long
	s.Offer(report(0x6993, 0xB0AE, "p", 0xC8, 0x3B))                // WH64 spam burst
	assert.Equal(t, WaitingForPress, s.State())

	// A report whose second byte is zero does not read as a press.
	s.Offer(report(0x6993, 0x0001, "p", 0x9B, 0x00, 0x01))
	assert.Equal(t, WaitingForPress, s.State())

	s.Offer(report(0x6993, 0x0001, "p", 0x9B, 0x01))
	assert.Equal(t, WaitingForRelease, s.State())
	s.Cancel()
}

func TestSingleByteReportCountsAsPress(t *testing.T) {
	s := newSessionWithTimeout(50 * time.Millisecond)
	done := make(chan models.RemapCapture, 1)
	s.OnFinalized = func(c models.RemapCapture) { done <- c }

	s.Offer(report(0x1395, 0x0030, "p", 0xAA))
	select {
	case c := <-done:
		assert.Equal(t, "AA", c.Pattern)
	case <-time.After(time.Second):
		t.Fatal("no finalize")
	}
}

func TestCancelStopsSession(t *testing.T) {
	s := NewSession()
	s.Offer(report(0x6993, 0x0001, "p", 0x9B, 0x01))
	require.Equal(t, WaitingForRelease, s.State())

	s.Cancel()
	assert.Equal(t, Finalized, s.State())
	s.Offer(report(0x6993, 0x0001, "p", 0x9B, 0x00))
	assert.Empty(t, s.Capture().Release)
}
