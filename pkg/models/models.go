package models

import (
	"time"
)

// Action identifies the last confirmed call action.
type Action int

const (
	ActionNone Action = iota
	ActionAnswer
	ActionHangup
)

// String returns the wire spelling of the action.
func (a Action) String() string {
	switch a {
	case ActionAnswer:
		return "answer"
	case ActionHangup:
		return "hangup"
	default:
		return "none"
	}
}

// RawReport is one HID input report as delivered by the device monitor.
type RawReport struct {
	VendorID  uint16    `json:"vendorId"`
	ProductID uint16    `json:"productId"`
	Path      string    `json:"path"`
	Data      []byte    `json:"data"`
	At        time.Time `json:"at"`
}

// DeviceInfo describes a headset seen on the report stream.
type DeviceInfo struct {
	Name      string `json:"name"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	Path      string `json:"path"`
}

// ClientRecord tracks one connected WebSocket client (browser extension).
type ClientRecord struct {
	ID               string    `json:"id"`
	BrowserName      string    `json:"browser"`
	BrowserVersion   string    `json:"version"`
	UserAgent        string    `json:"userAgent"`
	ConnectedAt      time.Time `json:"connectedAt"`
	IsExtension      bool      `json:"isExtension"`
	HasVotacallTab   bool      `json:"hasVotacallTab"`
	VotacallTabCount int       `json:"votacallTabCount"`
	ExtensionName    string    `json:"extensionName,omitempty"`
	ExtensionVersion string    `json:"extensionVersion,omitempty"`
}

// ReplyEvent is an extension's report on the outcome of a relayed button press.
type ReplyEvent struct {
	ClientID string
	Action   Action
	Success  bool
	Message  string
}

// LogEntry is one categorized log message for the UI/log sink.
type LogEntry struct {
	Timestamp time.Time `json:"when"`
	UnixTime  int64     `json:"utime"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
}

// RemapCapture is the result of an interactive button calibration session.
type RemapCapture struct {
	Pattern   string `json:"pattern"`
	Press     string `json:"press"`
	Release   string `json:"release,omitempty"`
	Path      string `json:"path"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
}
