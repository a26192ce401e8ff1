package hub

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"votalinkd/pkg/models"
	"votalinkd/pkg/utils"
)

// broadcastTimeout bounds every fan-out send. A client that cannot take the
// frame in time is skipped, not retried; one slow browser must not stall the
// others.
const broadcastTimeout = 100 * time.Millisecond

// Filter selects broadcast recipients from their identity records.
type Filter func(models.ClientRecord) bool

// ActiveExtensions matches extensions with a call-capable Votacall tab open.
func ActiveExtensions(rec models.ClientRecord) bool {
	return rec.IsExtension && rec.HasVotacallTab
}

// Hub is the loopback WebSocket endpoint the browser extensions connect to.
// It owns the client registry; all registry mutation funnels through hub
// methods, callers only see copies and derived counts.
type Hub struct {
	port string
	srv  *http.Server
	ln   net.Listener

	mu      sync.RWMutex
	clients map[string]*client

	pubMu      sync.Mutex
	lastActive int

	upgrader websocket.Upgrader

	// OnClientCountChanged publishes the count of extensions with an active
	// Votacall tab whenever it may have changed.
	OnClientCountChanged func(active int)
	// OnClientConnected fires on connect and again after identification.
	OnClientConnected func(models.ClientRecord)
	// OnClientDisconnected fires exactly once per departed client.
	OnClientDisconnected func(id string)
	// OnReply receives parsed call-answer-reply / call-hangup-reply messages.
	OnReply func(models.ReplyEvent)
	// Logf receives category-tagged diagnostics.
	Logf func(category, format string, args ...interface{})
}

// New creates a hub bound to the loopback interface on the given port.
func New(port int) *Hub {
	h := &Hub{
		port:    fmt.Sprintf("127.0.0.1:%d", port),
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Extensions connect with chrome-extension:// origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleRoot)
	h.srv = &http.Server{Handler: mux}
	return h
}

// Start binds the listener and begins accepting connections. A port already
// in use is returned to the caller, not swallowed.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.port, err)
	}
	h.ln = ln

	go func() {
		if err := h.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logf("EXTENSION", "WebSocket server stopped: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener and all client connections. Receive loops observe
// the closed connections and exit.
func (h *Hub) Stop() {
	h.srv.Close()

	h.mu.Lock()
	for _, c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
}

// Addr returns the bound address.
func (h *Hub) Addr() string {
	if h.ln != nil {
		return h.ln.Addr().String()
	}
	return h.port
}

// handleRoot upgrades WebSocket requests and answers anything else with a
// plain-text liveness line.
func (h *Hub) handleRoot(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "votalinkd running")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("EXTENSION", "upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	userAgent := r.Header.Get("User-Agent")
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		record: models.ClientRecord{
			BrowserName:    detectBrowserName(userAgent),
			BrowserVersion: detectBrowserVersion(userAgent),
			UserAgent:      userAgent,
			ConnectedAt:    time.Now(),
		},
	}
	c.record.ID = c.id

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.publishActiveCount()
	if h.OnClientConnected != nil {
		h.OnClientConnected(c.Record())
	}

	go h.readLoop(c)
}

// readLoop processes inbound messages until the connection dies, then removes
// the client.
func (h *Hub) readLoop(c *client) {
	defer h.dropClient(c)

	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage || len(payload) == 0 {
			continue
		}
		h.handleMessage(c, payload)
	}
}

// handleMessage dispatches one inbound frame. Protocol errors drop the
// message with a diagnostic and mutate nothing.
func (h *Hub) handleMessage(c *client, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logf("EXTENSION", "dropping malformed message from %s: %v", utils.ShortID(c.id), err)
		return
	}

	switch env.Type {
	case typeIdentify:
		var msg identifyMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logf("EXTENSION", "dropping malformed identify from %s: %v", utils.ShortID(c.id), err)
			return
		}
		rec, tabChanged := c.applyIdentify(msg)
		if tabChanged {
			h.publishActiveCount()
		}
		if h.OnClientConnected != nil {
			h.OnClientConnected(rec)
		}

	case typePing:
		if err := c.send(pongPayload, time.Now().Add(broadcastTimeout)); err != nil {
			h.logf("EXTENSION", "pong to %s failed: %v", utils.ShortID(c.id), err)
		}

	case typeAnswerReply, typeHangupReply:
		action := models.ActionAnswer
		if env.Type == typeHangupReply {
			action = models.ActionHangup
		}
		var msg replyMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logf("EXTENSION", "dropping malformed %s from %s: %v", env.Type, utils.ShortID(c.id), err)
			return
		}
		if msg.Success == nil || msg.Message == nil {
			h.logf("EXTENSION", "dropping %s from %s: missing success/message properties", env.Type, utils.ShortID(c.id))
			return
		}
		if h.OnReply != nil {
			h.OnReply(models.ReplyEvent{
				ClientID: c.id,
				Action:   action,
				Success:  *msg.Success,
				Message:  *msg.Message,
			})
		}
	}
}

// dropClient removes a departed client, republishing the active count exactly
// once regardless of whether the close came from a read error, a close frame
// or Stop.
func (h *Hub) dropClient(c *client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.conn.Close()
	if !present {
		return
	}

	h.publishActiveCount()
	if h.OnClientDisconnected != nil {
		h.OnClientDisconnected(c.id)
	}
}

// Broadcast fans a payload out to every connected client satisfying the
// filter and returns how many sends completed within the timeout. Partial
// failure is expected: a send that misses the deadline is abandoned and does
// not count, without aborting the rest.
func (h *Hub) Broadcast(payload []byte, filter Filter) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if filter == nil || filter(c.Record()) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	deadline := time.Now().Add(broadcastTimeout)
	var sent int64
	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if err := c.send(payload, deadline); err == nil {
				atomic.AddInt64(&sent, 1)
			}
		}(c)
	}
	wg.Wait()

	return int(atomic.LoadInt64(&sent))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ActiveExtensionCount returns the number of extensions with a Votacall tab.
func (h *Hub) ActiveExtensionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if ActiveExtensions(c.Record()) {
			n++
		}
	}
	return n
}

// ExtensionCount returns the number of identified extension clients,
// regardless of tab state. Never-identified connections don't count.
func (h *Hub) ExtensionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.Record().IsExtension {
			n++
		}
	}
	return n
}

// Clients returns a snapshot of the connected client records.
func (h *Hub) Clients() []models.ClientRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.ClientRecord, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c.Record())
	}
	return out
}

// publishActiveCount notifies only when the active-extension count actually
// moved; raw connects and drops of never-identified clients stay quiet.
func (h *Hub) publishActiveCount() {
	active := h.ActiveExtensionCount()
	h.pubMu.Lock()
	changed := active != h.lastActive
	h.lastActive = active
	h.pubMu.Unlock()

	if changed && h.OnClientCountChanged != nil {
		h.OnClientCountChanged(active)
	}
}

func (h *Hub) logf(category, format string, args ...interface{}) {
	if h.Logf != nil {
		h.Logf(category, format, args...)
	}
}
