package mock

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sendBuffer = 64

type peer struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newPeer(conn *websocket.Conn) *peer {
	p := &peer{conn: conn, send: make(chan []byte, sendBuffer)}
	go p.writePump()
	return p
}

func (p *peer) writePump() {
	defer p.conn.Close()
	for msg := range p.send {
		if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue reports false when the peer is closed or its buffer is full.
func (p *peer) enqueue(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// Hub broadcasts session snapshots, events and token counts to every
// connected dashboard, and answers get_history requests.
type Hub struct {
	store    *Store
	throttle time.Duration
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.RWMutex
	clients map[*peer]struct{}

	flushMu    sync.Mutex
	flushTimer *time.Timer
}

// NewHub creates a hub over store. Snapshot broadcasts are coalesced over
// throttle; zero sends each one immediately.
func NewHub(store *Store, throttle time.Duration, log zerolog.Logger) *Hub {
	return &Hub{
		store:    store,
		throttle: throttle,
		log:      log.With().Str("component", "hub").Logger(),
		clients:  make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	h.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	p := h.add(conn)
	defer func() {
		h.remove(p)
		h.log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handle(p, data)
	}
}

func (h *Hub) add(conn *websocket.Conn) *peer {
	p := newPeer(conn)
	h.mu.Lock()
	h.clients[p] = struct{}{}
	h.mu.Unlock()

	h.sendTo(p, client.MsgSessions, h.store.List())
	h.sendTo(p, client.MsgTokens, client.TokensMessage{Cumulative: h.store.Tokens()})
	return p
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	if _, ok := h.clients[p]; ok {
		delete(h.clients, p)
		p.close()
	}
	h.mu.Unlock()
}

func (h *Hub) handle(p *peer, data []byte) {
	var env client.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Debug().Err(err).Msg("ignoring malformed client frame")
		return
	}
	switch env.Type {
	case client.MsgGetHistory:
		req := client.HistoryRequest{Limit: client.DefaultHistoryLimit}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				h.log.Debug().Err(err).Msg("bad get_history payload")
			}
		}
		h.sendTo(p, client.MsgHistory, h.store.History(req.Limit))
	default:
		h.log.Debug().Str("type", string(env.Type)).Msg("ignoring client message")
	}
}

// PublishSessions schedules a snapshot broadcast.
func (h *Hub) PublishSessions() {
	if h.throttle <= 0 {
		h.flush()
		return
	}
	h.flushMu.Lock()
	defer h.flushMu.Unlock()
	if h.flushTimer == nil {
		h.flushTimer = time.AfterFunc(h.throttle, h.flush)
	}
}

func (h *Hub) flush() {
	h.flushMu.Lock()
	h.flushTimer = nil
	h.flushMu.Unlock()
	h.broadcast(client.MsgSessions, h.store.List())
}

// PublishEvent records ev in the history and broadcasts it.
func (h *Hub) PublishEvent(ev client.SessionEvent) {
	h.store.Record(ev)
	h.broadcast(client.MsgEvent, ev)
}

// PublishTokens broadcasts the cumulative token count.
func (h *Hub) PublishTokens(total float64) {
	h.broadcast(client.MsgTokens, client.TokensMessage{Cumulative: total})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.clients {
		delete(h.clients, p)
		p.close()
	}
}

func (h *Hub) sendTo(p *peer, t client.MessageType, payload any) {
	data, err := client.Encode(t, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(t)).Msg("encode failed")
		return
	}
	if !p.enqueue(data) {
		h.log.Warn().Str("type", string(t)).Msg("dropping message for slow or closed client")
	}
}

func (h *Hub) broadcast(t client.MessageType, payload any) {
	data, err := client.Encode(t, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(t)).Msg("encode failed")
		return
	}

	h.mu.RLock()
	peers := make([]*peer, 0, len(h.clients))
	for p := range h.clients {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		if !p.enqueue(data) {
			h.log.Warn().Msg("client too slow, disconnecting")
			h.remove(p)
		}
	}
}
