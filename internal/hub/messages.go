package hub

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"votalinkd/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message types exchanged with browser extensions. JSON objects with a "type"
// discriminator over a persistent WebSocket per client.
const (
	typeDirectHID   = "direct-hid"
	typeCallAnswer  = "call-answer"
	typeIdentify    = "extension-identify"
	typePing        = "ping"
	typePong        = "pong"
	typeAnswerReply = "call-answer-reply"
	typeHangupReply = "call-hangup-reply"
)

// TelemetryMessage is the raw report broadcast (hub -> client).
type TelemetryMessage struct {
	Type      string `json:"type"`
	At        int64  `json:"at"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	DataHex   string `json:"dataHex"`
	Path      string `json:"path"`
}

// CallMessage is the call-intent broadcast (hub -> client). Button is always
// "answer": the extension inspects live call state and decides whether the
// press means answer or hangup, which keeps the hub stateless about calls.
type CallMessage struct {
	Type      string `json:"type"`
	At        int64  `json:"at"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	DataHex   string `json:"dataHex"`
	Button    string `json:"button"`
}

// NewTelemetry builds a direct-hid message for a classified raw report.
func NewTelemetry(report models.RawReport, dataHex string) TelemetryMessage {
	return TelemetryMessage{
		Type:      typeDirectHID,
		At:        time.Now().UnixMilli(),
		VendorID:  report.VendorID,
		ProductID: report.ProductID,
		DataHex:   dataHex,
		Path:      report.Path,
	}
}

// NewCallAnswer builds a call-answer message for a detected button press.
func NewCallAnswer(report models.RawReport, dataHex string) CallMessage {
	return CallMessage{
		Type:      typeCallAnswer,
		At:        time.Now().UnixMilli(),
		VendorID:  report.VendorID,
		ProductID: report.ProductID,
		DataHex:   dataHex,
		Button:    "answer",
	}
}

// Encode serializes a telemetry message for broadcast.
func (m TelemetryMessage) Encode() ([]byte, error) { return json.Marshal(m) }

// Encode serializes a call message for broadcast.
func (m CallMessage) Encode() ([]byte, error) { return json.Marshal(m) }

// envelope peeks at the type discriminator of an inbound message.
type envelope struct {
	Type string `json:"type"`
}

// identifyMessage is sent by an extension right after connecting and whenever
// its tab situation changes.
type identifyMessage struct {
	Browser              string `json:"browser"`
	Version              string `json:"version"`
	HasVotacallTab       *bool  `json:"hasVotacallTab"`
	VotacallTabCount     *int   `json:"votacallTabCount"`
	ExtensionFingerprint *struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"extensionFingerprint"`
}

// replyMessage reports the outcome of a relayed button press. Pointer fields
// distinguish missing properties from zero values; a reply missing either is
// malformed and dropped.
type replyMessage struct {
	Success *bool   `json:"success"`
	Message *string `json:"message"`
}

var pongPayload = []byte(`{"type":"pong"}`)
