package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"votalinkd/pkg/models"
)

// client pairs one WebSocket connection with its identity record. The record
// is owned by the hub; other components only ever see copies.
type client struct {
	id   string
	conn *websocket.Conn

	// writeMu serializes writes; gorilla connections allow one writer at a
	// time and pongs race with broadcasts.
	writeMu sync.Mutex

	mu     sync.Mutex
	record models.ClientRecord
}

// send writes a text frame, giving up at the deadline.
func (c *client) send(payload []byte, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Record returns a copy of the client's identity record.
func (c *client) Record() models.ClientRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// applyIdentify merges an extension-identify message into the record and
// reports whether the has-tab capability flipped.
func (c *client) applyIdentify(msg identifyMessage) (models.ClientRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hadTab := c.record.HasVotacallTab
	if msg.Browser != "" {
		c.record.BrowserName = msg.Browser
	}
	if msg.Version != "" {
		c.record.BrowserVersion = msg.Version
	}
	if msg.HasVotacallTab != nil {
		c.record.HasVotacallTab = *msg.HasVotacallTab
	}
	if msg.VotacallTabCount != nil {
		c.record.VotacallTabCount = *msg.VotacallTabCount
	}
	if msg.ExtensionFingerprint != nil {
		c.record.ExtensionName = msg.ExtensionFingerprint.Name
		c.record.ExtensionVersion = msg.ExtensionFingerprint.Version
	}
	c.record.IsExtension = true

	return c.record, hadTab != c.record.HasVotacallTab
}

// detectBrowserName guesses the browser from the Upgrade request User-Agent,
// so a client has a usable identity before its first identify message.
func detectBrowserName(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "Unknown"
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	default:
		return "Unknown"
	}
}

// detectBrowserVersion extracts the Chrome/<version> token if present.
func detectBrowserVersion(userAgent string) string {
	const marker = "Chrome/"
	start := strings.Index(userAgent, marker)
	if start < 0 {
		return ""
	}
	start += len(marker)
	end := strings.IndexByte(userAgent[start:], ' ')
	if end < 0 {
		return userAgent[start:]
	}
	return userAgent[start : start+end]
}
