package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votalinkd/internal/debounce"
	"votalinkd/internal/noise"
	"votalinkd/internal/pattern"
	"votalinkd/pkg/models"
)

type capture struct {
	calls      []Event
	telemetry  []Event
	suppressed []Event
	devices    []models.DeviceInfo
}

func newClassifier(t *testing.T, specStr string, delaySeconds int) (*Classifier, *capture, *debounce.Debouncer, *noise.Filter) {
	t.Helper()
	spec, err := pattern.ParseSpec(specStr)
	require.NoError(t, err)

	nf := noise.NewFilter()
	db := debounce.New(delaySeconds, false)
	c := New(spec, nf, db)

	cap := &capture{}
	c.OnCallIntent = func(ev Event) { cap.calls = append(cap.calls, ev) }
	c.OnTelemetry = func(ev Event) { cap.telemetry = append(cap.telemetry, ev) }
	c.OnSuppressed = func(ev Event, _ time.Duration, _ models.Action) { cap.suppressed = append(cap.suppressed, ev) }
	c.OnDeviceDetected = func(d models.DeviceInfo) { cap.devices = append(cap.devices, d) }
	return c, cap, db, nf
}

func report(vid, pid uint16, at time.Time, data ...byte) models.RawReport {
	return models.RawReport{VendorID: vid, ProductID: pid, Path: "\\\\?\\hid#test", Data: data, At: at}
}

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestCustomPressReleasePairTriggersOnce(t *testing.T) {
	c, cap, _, _ := newClassifier(t, "9B-01-00,9B-00-00", 0)

	c.Classify(report(0x6993, 0xB0AE, t0, 0x9B, 0x01, 0x00))
	c.Classify(report(0x6993, 0xB0AE, t0.Add(50*time.Millisecond), 0x9B, 0x00, 0x00))

	assert.Len(t, cap.calls, 1)
	assert.Equal(t, "9B-01-00", cap.calls[0].DataHex)
	// The release is consumed entirely: no telemetry either.
	assert.Empty(t, cap.telemetry)
}

func TestCustomPatternPrefixTolerance(t *testing.T) {
	c, cap, _, _ := newClassifier(t, "02-05-00", 0)

	c.Classify(report(0x0B0E, 0x2456, t0, 0x02, 0x05))
	c.Classify(report(0x0B0E, 0x2456, t0, 0x02, 0x05, 0x00, 0x00))
	c.Classify(report(0x0B0E, 0x2456, t0, 0x02, 0x05, 0x01))

	assert.Len(t, cap.calls, 2)
}

func TestDefaultHeuristicEndToEnd(t *testing.T) {
	// Spec scenario: 02-05-00 from the WH64, no custom pattern, no
	// suppression -> exactly one call intent.
	c, cap, _, _ := newClassifier(t, "", 0)

	c.Classify(report(0x6993, 0xB0AE, t0, 0x02, 0x05, 0x00))

	require.Len(t, cap.calls, 1)
	assert.Equal(t, "02-05-00", cap.calls[0].DataHex)
	require.Len(t, cap.devices, 1)
	assert.Equal(t, "Yealink WH64", cap.devices[0].Name)
}

func TestDefaultHeuristicFilters(t *testing.T) {
	c, cap, _, _ := newClassifier(t, "", 0)

	c.Classify(report(0x6993, 0x0001, t0, 0x01, 0x01))                               // volume up
	c.Classify(report(0x6993, 0x0001, t0, 0x01, 0x02))                               // volume down
	c.Classify(report(0x6993, 0x0001, t0, 0x00, 0x00))                               // all zero
	c.Classify(report(0x6993, 0x0001, t0, 1, 2, 3, 4, 5, 6, 7, 8, 9))                // too long
	c.Classify(report(0x1395, 0x0030, t0, 0x02, 0x05))                               // non-Yealink vendor
	assert.Empty(t, cap.calls)

	c.Classify(report(0x2F68, 0x0001, t0, 0x02, 0x05))
	assert.Len(t, cap.calls, 1)
}

func TestWH64ExactQuirkPattern(t *testing.T) {
	c, cap, _, _ := newClassifier(t, "", 0)
	c.Classify(report(0x6993, 0xB0AE, t0, 0x9B, 0x01, 0x00))
	require.Len(t, cap.calls, 1)
	assert.Equal(t, "9B-01-00", cap.calls[0].DataHex)
}

func TestSafetyDelaySuppressesPress(t *testing.T) {
	c, cap, db, _ := newClassifier(t, "", 2)

	db.RecordConfirmed(models.ActionAnswer, t0)

	c.Classify(report(0x6993, 0xB0AE, t0.Add(time.Second), 0x9B, 0x01, 0x00))
	assert.Empty(t, cap.calls)
	assert.Len(t, cap.suppressed, 1)

	c.Classify(report(0x6993, 0xB0AE, t0.Add(3*time.Second), 0x9B, 0x01, 0x00))
	assert.Len(t, cap.calls, 1)
}

func TestCallButtonNeverLearnedAsNoise(t *testing.T) {
	c, cap, _, nf := newClassifier(t, "", 0)

	// Repeated presses during warm-up must not be learned.
	c.Classify(report(0x6993, 0xB0AE, t0, 0x9B, 0x01, 0x00))
	c.Classify(report(0x6993, 0xB0AE, t0, 0x9B, 0x01, 0x00))
	nf.EndCollection()
	c.Classify(report(0x6993, 0xB0AE, t0.Add(31*time.Second), 0x9B, 0x01, 0x00))

	assert.Len(t, cap.calls, 3)
	assert.False(t, nf.IsNoise(0x6993, 0xB0AE, []byte{0x9B, 0x01, 0x00}))
}

func TestNoiseLearnedAndSuppressed(t *testing.T) {
	c, cap, _, nf := newClassifier(t, "", 0)

	chatter := report(0x1395, 0x0030, t0, 0xAA, 0x10)
	c.Classify(chatter)
	assert.Len(t, cap.telemetry, 1, "warm-up reports still relay as telemetry")

	nf.EndCollection()
	c.Classify(chatter)
	assert.Len(t, cap.telemetry, 1, "learned chatter is suppressed after warm-up")
}

func TestDeviceDetectedOnce(t *testing.T) {
	c, cap, _, _ := newClassifier(t, "", 0)

	c.Classify(report(0x0B0E, 0x2456, t0, 0xAA))
	c.Classify(report(0x0B0E, 0x2456, t0, 0xBB))
	assert.Len(t, cap.devices, 1)
	assert.Equal(t, "Jabra", cap.devices[0].Name)
	assert.Len(t, c.Devices(), 1)
}
