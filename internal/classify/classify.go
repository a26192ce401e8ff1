package classify

import (
	"sync"
	"time"

	"votalinkd/internal/debounce"
	"votalinkd/internal/noise"
	"votalinkd/internal/pattern"
	"votalinkd/pkg/models"
)

// Event is one classified report headed for the relay hub.
type Event struct {
	Report models.RawReport
	// DataHex is the normalized payload, computed once per report.
	DataHex string
}

// Classifier turns raw HID reports into call-intent or telemetry events.
// Intent is decided first, noise second: the call decision must never depend
// on the noise-learning state, or a press during the warm-up window could be
// blacklisted for the rest of the session.
type Classifier struct {
	noise    *noise.Filter
	debounce *debounce.Debouncer

	mu      sync.Mutex
	spec    *pattern.Spec
	devices map[uint32]models.DeviceInfo

	// OnCallIntent receives each call-button press that survived suppression.
	OnCallIntent func(Event)
	// OnTelemetry receives raw reports that are neither call-button nor noise.
	OnTelemetry func(Event)
	// OnDeviceDetected fires for the first report from an unseen device.
	OnDeviceDetected func(models.DeviceInfo)
	// OnSuppressed fires for a call-button press eaten by the safety delay.
	OnSuppressed func(Event, time.Duration, models.Action)
	// Logf receives category-tagged diagnostics.
	Logf func(category, format string, args ...interface{})
}

// New creates a classifier. The spec may be nil, enabling the built-in
// default heuristic.
func New(spec *pattern.Spec, nf *noise.Filter, db *debounce.Debouncer) *Classifier {
	return &Classifier{
		noise:    nf,
		debounce: db,
		spec:     spec,
		devices:  make(map[uint32]models.DeviceInfo),
	}
}

// SetSpec swaps the custom button pattern at runtime (settings hot-reload).
func (c *Classifier) SetSpec(spec *pattern.Spec) {
	c.mu.Lock()
	c.spec = spec
	c.mu.Unlock()
}

// Classify processes one raw report. Per report it emits at most one of:
// a device-detected event plus a call-intent, a telemetry event, or nothing.
func (c *Classifier) Classify(report models.RawReport) {
	hex := pattern.NormalizeBytes(report.Data)
	ev := Event{Report: report, DataHex: hex}

	c.trackDevice(report)

	c.mu.Lock()
	spec := c.spec
	c.mu.Unlock()

	var isCallButton bool
	if spec != nil {
		switch spec.Match(hex) {
		case pattern.IsRelease:
			// Release half of the configured pair: consume silently so the
			// press does not trigger twice.
			return
		case pattern.IsPress:
			isCallButton = true
			c.logf("CALL-BUTTON", "*** CALL BUTTON PRESSED (custom pattern %s) *** Data=%s", spec.String(), hex)
		}
	} else if defaultCallButton(report, hex) {
		isCallButton = true
		c.logf("CALL-BUTTON", "*** CALL BUTTON PRESSED (VID=0x%04X PID=0x%04X) *** Data=%s",
			report.VendorID, report.ProductID, hex)
	}

	if isCallButton {
		now := report.At
		if now.IsZero() {
			now = time.Now()
		}
		if suppressed, remaining, protected := c.debounce.ShouldSuppress(now); suppressed {
			c.logf("CALL-BUTTON", "Safety delay active (after %s) - ignoring button press (%.1fs remaining)",
				protected, remaining.Seconds())
			if c.OnSuppressed != nil {
				c.OnSuppressed(ev, remaining, protected)
			}
			return
		}
		if c.OnCallIntent != nil {
			c.OnCallIntent(ev)
		}
		return
	}

	// Not a button press: learn it while collecting, filter it afterwards.
	if c.noise.Collecting() {
		c.noise.Observe(report.VendorID, report.ProductID, report.Data)
	} else if c.noise.IsNoise(report.VendorID, report.ProductID, report.Data) {
		return
	}
	if c.OnTelemetry != nil {
		c.OnTelemetry(ev)
	}
}

// defaultCallButton is the no-custom-pattern heuristic. Known device patterns
// from the quirk table are checked first; the generic fallback then accepts
// any short, non-zero, non-volume report from the Yealink family. The generic
// rule is approximate (volume and call buttons are not reliably separable on
// some models) and is intentionally not strengthened.
func defaultCallButton(report models.RawReport, hex string) bool {
	if !yealinkVendors[report.VendorID] {
		return false
	}
	if q, ok := deviceQuirks[deviceKey(report.VendorID, report.ProductID)]; ok && q.exactPress != "" {
		if hex == q.exactPress {
			return true
		}
	}
	return genericCallButton(report.Data, hex)
}

// genericCallButton filters out volume buttons (01-01 up, 01-02 down), empty
// or all-zero payloads, and long diagnostic frames.
func genericCallButton(data []byte, hex string) bool {
	if hex == "01-01" || hex == "01-02" || hex == "" {
		return false
	}
	if len(data) > 8 {
		return false
	}
	for _, b := range data {
		if b != 0x00 {
			return true
		}
	}
	return false
}

// trackDevice emits a device-detected event for the first report from an
// unseen vendor:product.
func (c *Classifier) trackDevice(report models.RawReport) {
	key := deviceKey(report.VendorID, report.ProductID)

	c.mu.Lock()
	_, seen := c.devices[key]
	var info models.DeviceInfo
	if !seen {
		info = models.DeviceInfo{
			Name:      DeviceName(report.VendorID, report.ProductID),
			VendorID:  report.VendorID,
			ProductID: report.ProductID,
			Path:      report.Path,
		}
		c.devices[key] = info
	}
	c.mu.Unlock()

	if !seen {
		c.logf("DEVICE", "Detected %s (VID=0x%04X PID=0x%04X)", info.Name, info.VendorID, info.ProductID)
		if c.OnDeviceDetected != nil {
			c.OnDeviceDetected(info)
		}
	}
}

// Devices returns a snapshot of the devices seen this session.
func (c *Classifier) Devices() []models.DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DeviceInfo, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

func (c *Classifier) logf(category, format string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(category, format, args...)
	}
}
