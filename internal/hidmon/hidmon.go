// Package hidmon reads raw input reports from HID devices and pushes them to
// the classifier. It is a push source only; classification happens elsewhere.
package hidmon

import (
	"fmt"
	"sync"
	"time"

	hid "github.com/sstallion/go-hid"

	"votalinkd/pkg/models"
)

// readTimeout paces the per-device read loop so it can observe shutdown.
const readTimeout = 500 * time.Millisecond

// reportBufferSize covers the largest interesting report; headset button
// reports are a handful of bytes.
const reportBufferSize = 64

// ReportFunc receives each raw report in device order.
type ReportFunc func(models.RawReport)

// LogFunc receives category-tagged diagnostics.
type LogFunc func(category, format string, args ...interface{})

// Source is the device-monitor contract the service consumes.
type Source interface {
	Start() error
	Close() error
}

// Monitor opens a set of HID device paths and runs one read loop per device.
// An empty path list means every enumerated device (used during remap).
type Monitor struct {
	paths    []string
	onReport ReportFunc
	logf     LogFunc

	// OnDeviceRemoved fires when a device's read loop exits on error.
	OnDeviceRemoved func(path string)

	mu      sync.Mutex
	started bool
	// sharedBackend leaves the HID backend up on Close, for transient
	// monitors running alongside the primary one.
	sharedBackend bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

type openDevice struct {
	dev       *hid.Device
	path      string
	vendorID  uint16
	productID uint16
}

// New creates a monitor for the given device paths.
func New(paths []string, onReport ReportFunc, logf LogFunc) *Monitor {
	if logf == nil {
		logf = func(string, string, ...interface{}) {}
	}
	return &Monitor{
		paths:    paths,
		onReport: onReport,
		logf:     logf,
		stopCh:   make(chan struct{}),
	}
}

// NewForRemap creates a monitor over every present HID interface, for a
// calibration session that must see devices outside the configured path.
// It shares the HID backend with the primary monitor, so closing it leaves
// the backend up.
func NewForRemap(onReport ReportFunc, logf LogFunc) *Monitor {
	m := New(nil, onReport, logf)
	m.sharedBackend = true
	return m
}

// Start opens the devices and begins reading. Failure to enumerate is fatal;
// failure to open an individual device is only logged, the rest still work.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	if err := hid.Init(); err != nil {
		return fmt.Errorf("failed to initialize HID backend: %w", err)
	}

	paths := m.paths
	if len(paths) == 0 {
		infos, err := EnumerateAll()
		if err != nil {
			return err
		}
		for _, info := range infos {
			paths = append(paths, info.Path)
		}
	}

	opened := 0
	for _, path := range paths {
		od, err := openPath(path)
		if err != nil {
			m.logf("DEVICE", "could not open %s: %v", path, err)
			continue
		}
		opened++
		m.wg.Add(1)
		go m.readLoop(od)
	}
	m.logf("DEVICE", "Monitoring %d of %d HID interface(s)", opened, len(paths))

	m.started = true
	return nil
}

// Close stops all read loops and releases the HID backend.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	if m.sharedBackend {
		return nil
	}
	return hid.Exit()
}

func openPath(path string) (*openDevice, error) {
	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, err
	}
	od := &openDevice{dev: dev, path: path}
	if info, err := dev.GetDeviceInfo(); err == nil {
		od.vendorID = info.VendorID
		od.productID = info.ProductID
	}
	return od, nil
}

// readLoop delivers reports for one device until shutdown or a read error
// (typically the device unplugging).
func (m *Monitor) readLoop(od *openDevice) {
	defer m.wg.Done()
	defer od.dev.Close()

	buf := make([]byte, reportBufferSize)
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		n, err := od.dev.ReadWithTimeout(buf, readTimeout)
		if err != nil {
			select {
			case <-m.stopCh:
			default:
				m.logf("DEVICE", "read from %s failed: %v", od.path, err)
				if m.OnDeviceRemoved != nil {
					m.OnDeviceRemoved(od.path)
				}
			}
			return
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		m.onReport(models.RawReport{
			VendorID:  od.vendorID,
			ProductID: od.productID,
			Path:      od.path,
			Data:      data,
			At:        time.Now(),
		})
	}
}

// EnumerateAll lists every HID interface present, for device selection and
// remap sessions.
func EnumerateAll() ([]models.DeviceInfo, error) {
	var out []models.DeviceInfo
	err := hid.Enumerate(0, 0, func(info *hid.DeviceInfo) error {
		name := info.ProductStr
		if name == "" {
			name = fmt.Sprintf("VID=0x%04X PID=0x%04X", info.VendorID, info.ProductID)
		}
		out = append(out, models.DeviceInfo{
			Name:      name,
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Path:      info.Path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}
	return out, nil
}
