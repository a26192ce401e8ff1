package logs

import (
	"container/list"
	"fmt"
	"log"
	"sync"
	"time"

	"votalinkd/pkg/models"
)

const defaultMaxEntries = 100

// Manager collects the category-tagged message stream produced by the
// classifier, hub and service, keeps a bounded ring for the UI, and fans
// entries out to subscribers (log window, file sink).
type Manager struct {
	mu      sync.RWMutex
	entries *list.List
	limit   int
	subs    []chan models.LogEntry
	echo    bool
}

// NewManager creates a log manager keeping up to limit entries; a
// non-positive limit selects the default. When echo is set, entries are
// mirrored to the process log.
func NewManager(limit int, echo bool) *Manager {
	if limit <= 0 {
		limit = defaultMaxEntries
	}
	return &Manager{
		entries: list.New(),
		limit:   limit,
		echo:    echo,
	}
}

// Logf records one categorized message, e.g.
// Logf("CALL-BUTTON", "pressed: %s", hex).
func (m *Manager) Logf(category, format string, args ...interface{}) {
	now := time.Now()
	entry := models.LogEntry{
		Timestamp: now,
		UnixTime:  now.Unix(),
		Channel:   category,
		Message:   fmt.Sprintf(format, args...),
	}

	if m.echo {
		log.Printf("[%s] %s", entry.Channel, entry.Message)
	}

	m.mu.Lock()
	if m.entries.Len() >= m.limit {
		m.entries.Remove(m.entries.Front())
	}
	m.entries.PushBack(entry)
	subs := m.subs
	m.mu.Unlock()

	for _, ch := range subs {
		// Never block the report path on a slow sink.
		select {
		case ch <- entry:
		default:
		}
	}
}

// GetLogs returns the retained entries, oldest first.
func (m *Manager) GetLogs() []models.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]models.LogEntry, 0, m.entries.Len())
	for e := m.entries.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(models.LogEntry))
	}
	return entries
}

// Subscribe registers a sink for future entries. The channel is buffered;
// entries are dropped rather than letting a stalled sink block logging.
func (m *Manager) Subscribe() <-chan models.LogEntry {
	ch := make(chan models.LogEntry, 64)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Close closes all subscriber channels.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
