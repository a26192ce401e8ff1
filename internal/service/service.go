// Package service wires the HID monitor, classifier and relay hub into the
// running responder.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"votalinkd/internal/classify"
	"votalinkd/internal/config"
	"votalinkd/internal/debounce"
	"votalinkd/internal/hidmon"
	"votalinkd/internal/hub"
	"votalinkd/internal/logs"
	"votalinkd/internal/noise"
	"votalinkd/internal/pattern"
	"votalinkd/internal/remap"
	"votalinkd/pkg/models"
	"votalinkd/pkg/utils"
)

// Responder is the long-lived bridge between the headset and the browser
// extensions.
type Responder struct {
	cfg     *config.Config
	cfgPath string

	hub         *hub.Hub
	logs        *logs.Manager
	classifier  *classify.Classifier
	noiseFilter *noise.Filter
	debouncer   *debounce.Debouncer
	blocker     *teamsBlocker

	// Minimizer and Lister are the platform side effects; set before Start.
	Minimizer WindowMinimizer
	Lister    ProcessLister
	// WideSource builds the all-interface report source used while remapping
	// when the primary monitor is pinned to one device path.
	WideSource func() hidmon.Source

	source     hidmon.Source
	watcher    *fsnotify.Watcher
	noiseTimer *time.Timer

	remapMu      sync.Mutex
	remapSession *remap.Session
	remapAux     hidmon.Source

	reportMu  sync.Mutex
	reportLog *os.File

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds the responder around an already-constructed hub. The custom
// button pattern comes from cfg; a malformed pattern logs a warning and falls
// back to auto-detection rather than refusing to start.
func New(cfg *config.Config, cfgPath string, h *hub.Hub, lm *logs.Manager) *Responder {
	r := &Responder{
		cfg:       cfg,
		cfgPath:   cfgPath,
		hub:       h,
		logs:      lm,
		Minimizer: NoopMinimizer{},
		Lister:    NoopLister{},
		stopCh:    make(chan struct{}),
	}

	spec, err := pattern.ParseSpec(cfg.CallButtonPattern)
	if err != nil {
		lm.Logf("WARNING", "Invalid call button pattern %q: %v - falling back to auto-detection", cfg.CallButtonPattern, err)
		spec = nil
	}

	r.noiseFilter = noise.NewFilter()
	r.debouncer = debounce.New(cfg.SafetyDelaySeconds, cfg.DelayAfterHangup)
	r.classifier = classify.New(spec, r.noiseFilter, r.debouncer)
	r.classifier.Logf = lm.Logf
	r.classifier.OnCallIntent = r.relayCallIntent
	r.classifier.OnTelemetry = r.relayTelemetry

	r.blocker = newTeamsBlocker(minimizerFunc(r.minimize), lm.Logf)
	r.WideSource = func() hidmon.Source {
		return hidmon.NewForRemap(r.HandleReport, lm.Logf)
	}

	h.Logf = lm.Logf
	h.OnReply = r.handleReply
	h.OnClientCountChanged = r.logClientCount
	h.OnClientConnected = r.logClientConnected
	h.OnClientDisconnected = func(id string) {
		lm.Logf("EXTENSION", "Extension disconnected (ID: %s)", utils.ShortID(id))
	}

	return r
}

// minimize defers to whatever Minimizer is installed at tick time, so tests
// and main can swap it after New.
type minimizerFunc func(seen map[int]struct{}) []int

func (f minimizerFunc) MinimizeNew(seen map[int]struct{}) []int { return f(seen) }

func (r *Responder) minimize(seen map[int]struct{}) []int {
	return r.Minimizer.MinimizeNew(seen)
}

// SetSource installs the HID report source. Must be called before Start; the
// source should deliver reports to HandleReport.
func (r *Responder) SetSource(src hidmon.Source) {
	r.source = src
}

// HandleReport is the entry point for raw reports from the device monitor.
// While a remap session is active the stream feeds the session instead of the
// classifier, so the calibration press is not relayed as a call.
func (r *Responder) HandleReport(report models.RawReport) {
	r.remapMu.Lock()
	session := r.remapSession
	r.remapMu.Unlock()
	if session != nil {
		session.Offer(report)
		return
	}
	r.classifier.Classify(report)
}

// StartRemap begins an interactive button calibration. The learned capture is
// delivered to onDone exactly once (press alone, or press,release), after
// which normal classification resumes. The captured pattern is applied as the
// live custom pattern; persisting it is the caller's business.
func (r *Responder) StartRemap(onDone func(models.RemapCapture)) {
	r.remapMu.Lock()
	defer r.remapMu.Unlock()
	if r.remapSession != nil {
		r.remapSession.Cancel()
	}

	session := remap.NewSession()
	session.Logf = r.logs.Logf
	session.OnFinalized = func(capture models.RemapCapture) {
		r.remapMu.Lock()
		if r.remapSession == session {
			r.remapSession = nil
		}
		aux := r.remapAux
		r.remapAux = nil
		r.remapMu.Unlock()
		if aux != nil {
			aux.Close()
		}

		spec, err := pattern.ParseSpec(capture.Pattern)
		if err == nil {
			r.classifier.SetSpec(spec)
			r.cfg.CallButtonPattern = capture.Pattern
			r.logs.Logf("REMAP", "Call button remapped to '%s' (VID=0x%04X PID=0x%04X)", capture.Pattern, capture.VendorID, capture.ProductID)
		}
		if onDone != nil {
			onDone(capture)
		}
	}
	r.remapSession = session

	// A pinned device path would hide every other interface from the
	// calibration; widen to all interfaces for the session's duration. The
	// pinned interface is read by both monitors meanwhile; the session's
	// state machine ignores the duplicate press.
	if r.cfg.DevicePath != "" && r.remapAux == nil {
		aux := r.WideSource()
		if err := aux.Start(); err != nil {
			r.logs.Logf("WARNING", "Could not watch all HID interfaces for remap: %v", err)
		} else {
			r.remapAux = aux
			r.logs.Logf("REMAP", "Watching all HID interfaces for the calibration press")
		}
	}

	r.logs.Logf("REMAP", "Remap started - press the button you want to use for call answer")
}

// CancelRemap abandons an in-flight calibration without changing the pattern.
func (r *Responder) CancelRemap() {
	r.remapMu.Lock()
	var aux hidmon.Source
	if r.remapSession != nil {
		r.remapSession.Cancel()
		r.remapSession = nil
		aux = r.remapAux
		r.remapAux = nil
		r.logs.Logf("REMAP", "Remap cancelled")
	}
	r.remapMu.Unlock()

	if aux != nil {
		aux.Close()
	}
}

// Start brings the hub and device monitor up. Resource errors (port in use,
// enumeration failure) are returned to the caller; everything later recovers
// locally.
func (r *Responder) Start() error {
	r.checkConflictingApplications()

	if err := r.hub.Start(); err != nil {
		return utils.WrapError(err, "starting WebSocket hub")
	}
	r.logs.Logf("EXTENSION", "WebSocket server started on %s (waiting for browser extensions to connect...)", r.hub.Addr())

	if p := strings.TrimSpace(r.cfg.CallButtonPattern); p != "" {
		r.logs.Logf("CALL-BUTTON", "Custom pattern enabled: '%s' - Only this pattern will trigger call answer", p)
	} else {
		r.logs.Logf("CALL-BUTTON", "Using auto-detection mode - all non-volume button patterns will trigger call answer")
	}

	if r.cfg.ReportLogToFile {
		if err := r.openReportLog(); err != nil {
			r.logs.Logf("WARNING", "Could not open report log: %v", err)
		}
	}

	if r.source != nil {
		if err := r.source.Start(); err != nil {
			return utils.WrapError(err, "starting HID monitor")
		}
	}

	r.logs.Logf("NOISE-FILTER", "Collecting noise patterns for %.0f seconds...", noise.CollectionWindow.Seconds())
	r.noiseTimer = time.AfterFunc(noise.CollectionWindow, func() {
		count := r.noiseFilter.EndCollection()
		r.logs.Logf("NOISE-FILTER", "Collection complete! Identified %d noise patterns.", count)
	})

	if r.cfg.BlockTeams {
		r.wg.Add(1)
		go r.blockerLoop()
	}

	r.watchConfig()
	return nil
}

// Stop tears everything down: no new connections, timers cancelled, device
// read loops drained.
func (r *Responder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.CancelRemap()
		if r.noiseTimer != nil {
			r.noiseTimer.Stop()
		}
		if r.watcher != nil {
			r.watcher.Close()
		}
		if r.source != nil {
			r.source.Close()
		}
		r.hub.Stop()
		r.wg.Wait()

		r.reportMu.Lock()
		if r.reportLog != nil {
			r.reportLog.Close()
			r.reportLog = nil
		}
		r.reportMu.Unlock()
	})
}

// relayCallIntent broadcasts a call-answer message to capable extensions and
// arms the competing-app blocker.
func (r *Responder) relayCallIntent(ev classify.Event) {
	active := r.hub.ActiveExtensionCount()

	if active == 0 {
		if r.hub.ExtensionCount() > 0 {
			r.logs.Logf("EXTENSION", "WARNING: Extensions connected but no Votacall tabs open! Button press detected but no active extension to receive it.")
		} else {
			r.logs.Logf("EXTENSION", "WARNING: No browser extensions connected! Button press detected but no extension to receive it.")
		}
	}

	payload, err := hub.NewCallAnswer(ev.Report, ev.DataHex).Encode()
	if err != nil {
		r.logs.Logf("WARNING", "Could not encode call message: %v", err)
		return
	}

	sent := r.hub.Broadcast(payload, hub.ActiveExtensions)
	if sent > 0 {
		r.logs.Logf("EXTENSION", "Message sent to %d extension(s) with active Votacall tabs", sent)
	} else {
		r.logs.Logf("EXTENSION", "Message could not be sent (no active extensions with Votacall tabs)")
	}

	r.blocker.NotePress(time.Now())
	r.writeReportLine(ev)
}

// relayTelemetry broadcasts a direct-hid message to every connected client.
func (r *Responder) relayTelemetry(ev classify.Event) {
	payload, err := hub.NewTelemetry(ev.Report, ev.DataHex).Encode()
	if err != nil {
		r.logs.Logf("WARNING", "Could not encode telemetry message: %v", err)
		return
	}
	r.hub.Broadcast(payload, nil)

	if !r.noiseFilter.Collecting() {
		r.writeReportLine(ev)
	}
}

// handleReply feeds confirmed actions into the debouncer. Which action
// succeeded is read from the reply text (the extension spells it out), with
// the message type as fallback. Failed replies never touch the timer.
func (r *Responder) handleReply(ev models.ReplyEvent) {
	short := utils.ShortID(ev.ClientID)

	if !ev.Success {
		// The extension answers "Neither ANSWER nor HANGUP button found" for
		// every press outside a call; that is routine, not a warning.
		if !strings.Contains(ev.Message, "Neither ANSWER nor HANGUP button found") {
			r.logs.Logf("EXTENSION", "Reply from extension (ID: %s): %s", short, ev.Message)
		}
		return
	}

	action := ev.Action
	lower := strings.ToLower(ev.Message)
	switch {
	case strings.Contains(lower, "answer"):
		action = models.ActionAnswer
	case strings.Contains(lower, "hangup"):
		action = models.ActionHangup
	}

	r.logs.Logf("EXTENSION", "Reply from extension (ID: %s): %s", short, ev.Message)
	r.debouncer.RecordConfirmed(action, time.Now())
	r.logs.Logf("DELAY", "%s action successful - delay timer reset", action)
}

// logClientCount reports the capable-extension count whenever it changes.
// Only identified extensions figure in the tab-less message; plain WebSocket
// clients are not extensions.
func (r *Responder) logClientCount(active int) {
	extensions := r.hub.ExtensionCount()
	switch {
	case active > 0:
		r.logs.Logf("EXTENSION", "Browser extension connected (%d with Votacall tab)", active)
	case extensions > 0:
		r.logs.Logf("EXTENSION", "%d extension(s) connected but no Votacall tabs open", extensions)
	default:
		r.logs.Logf("EXTENSION", "All browser extensions disconnected")
	}
}

func (r *Responder) logClientConnected(rec models.ClientRecord) {
	if !rec.IsExtension {
		return
	}
	if rec.HasVotacallTab {
		r.logs.Logf("EXTENSION", "Extension connected: %s %s (Votacall tab active)", rec.BrowserName, rec.BrowserVersion)
	} else {
		r.logs.Logf("EXTENSION", "Extension connected: %s %s (no Votacall tab)", rec.BrowserName, rec.BrowserVersion)
	}
}

// blockerLoop runs the competing-app suppression ticker.
func (r *Responder) blockerLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(blockerTick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.blocker.tick(now)
		case <-r.stopCh:
			return
		}
	}
}

// checkConflictingApplications warns about software known to hold the headset
// or race for its call events.
func (r *Responder) checkConflictingApplications() {
	if n := r.Lister.Count("YealinkUSBConnect", "Yealink USB Connect", "YUC"); n > 0 {
		r.logs.Logf("INFO", "Yealink USB Connect is running (%d process(es))", n)
		r.logs.Logf("INFO", "If button events aren't detected, enable '3rd-party calling control' in USB Connect settings")
	}
	if n := r.Lister.Count("Teams", "ms-teams", "Microsoft Teams"); n > 0 {
		r.logs.Logf("WARNING", "Microsoft Teams is running (%d process(es)) - Teams may have exclusive access to the headset", n)
	}
}

// watchConfig hot-reloads the live-tunable settings (custom pattern, safety
// delay) when the config file changes. Watch failures only cost the feature.
func (r *Responder) watchConfig() {
	if r.cfgPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if utils.CheckWarn(err, "creating config watcher") {
		return
	}
	if err := watcher.Add(r.cfgPath); err != nil {
		r.logs.Logf("WARNING", "Cannot watch config file %s: %v", r.cfgPath, err)
		watcher.Close()
		return
	}
	r.watcher = watcher

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					absEvent, _ := filepath.Abs(event.Name)
					absCfg, _ := filepath.Abs(r.cfgPath)
					if absEvent == absCfg {
						r.reloadConfig()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logs.Logf("WARNING", "Config watcher error: %v", err)
			case <-r.stopCh:
				return
			}
		}
	}()
}

// reloadConfig re-applies the tunable knobs from disk.
func (r *Responder) reloadConfig() {
	fresh, err := config.New(r.cfgPath)
	if err != nil {
		r.logs.Logf("WARNING", "Config reload failed: %v", err)
		return
	}

	spec, err := pattern.ParseSpec(fresh.CallButtonPattern)
	if err != nil {
		r.logs.Logf("WARNING", "Ignoring invalid call button pattern %q: %v", fresh.CallButtonPattern, err)
	} else {
		r.classifier.SetSpec(spec)
		r.cfg.CallButtonPattern = fresh.CallButtonPattern
	}

	r.debouncer.SetPolicy(fresh.SafetyDelaySeconds, fresh.DelayAfterHangup)
	r.cfg.SafetyDelaySeconds = fresh.SafetyDelaySeconds
	r.cfg.DelayAfterHangup = fresh.DelayAfterHangup

	r.logs.Logf("INFO", "Settings reloaded: pattern=%q safetyDelay=%ds delayAfterHangup=%v",
		fresh.CallButtonPattern, fresh.SafetyDelaySeconds, fresh.DelayAfterHangup)
}

// openReportLog starts the per-session plain-text report log.
func (r *Responder) openReportLog() error {
	name := fmt.Sprintf("votalink-log-%s.txt", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.reportMu.Lock()
	r.reportLog = f
	r.reportMu.Unlock()
	return nil
}

func (r *Responder) writeReportLine(ev classify.Event) {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	if r.reportLog == nil {
		return
	}
	fmt.Fprintf(r.reportLog, "[%s] [HID-DIRECT] REPORT | VID=0x%04X PID=0x%04X Data=%s\n",
		ev.Report.At.Format("15:04:05.000"), ev.Report.VendorID, ev.Report.ProductID, ev.DataHex)
}

// Devices exposes the devices seen this session (UI surface).
func (r *Responder) Devices() []models.DeviceInfo {
	return r.classifier.Devices()
}

// Logs exposes the retained log entries (UI surface).
func (r *Responder) Logs() []models.LogEntry {
	return r.logs.GetLogs()
}
