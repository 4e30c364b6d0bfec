package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 256
)

// session is one live WebSocket connection of a user.
type session struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks the live sessions on this instance. A user may hold several
// sessions (tabs, devices); each one receives every event.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[*session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int64]map[*session]struct{}),
	}
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.userID]
	if !ok {
		set = make(map[*session]struct{})
		h.sessions[s.userID] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.userID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.send)
	if len(set) == 0 {
		delete(h.sessions, s.userID)
	}
}

// Online returns the number of live sessions of userID on this instance.
func (h *Hub) Online(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Publish implements Broker for a single instance.
func (h *Hub) Publish(_ context.Context, userID int64, env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	h.Deliver(userID, data)
	return nil
}

// Deliver queues an encoded envelope on every session of userID and returns
// how many sessions accepted it. A session whose buffer is full is dropped so
// the client reconnects and resyncs from the backlog.
func (h *Hub) Deliver(userID int64, data []byte) int {
	h.mu.RLock()
	delivered := 0
	var slow []*session
	for s := range h.sessions[userID] {
		select {
		case s.send <- data:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		log.Printf("ws_session_evicted user_id=%d reason=buffer_full", userID)
		h.evict(s)
	}
	return delivered
}

// evict unregisters s and closes its connection. Safe to call more than once.
func (h *Hub) evict(s *session) {
	h.unregister(s)
	if s.conn != nil {
		s.conn.Close()
	}
}

// ServeWS registers conn, queues the initial messages and runs the read/write
// loops. It blocks until the connection closes.
func (h *Hub) ServeWS(conn *websocket.Conn, userID int64, initial ...[]byte) {
	s := &session{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	for _, msg := range initial {
		s.send <- msg
	}

	h.register(s)

	go h.writePump(s)
	h.readPump(s)
}

func (h *Hub) readPump(s *session) {
	defer func() {
		h.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMsgSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws_read_error user_id=%d err=%v", s.userID, err)
			}
			return
		}

		var in struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &in); err != nil {
			continue
		}

		switch in.Type {
		case "ping":
			pong, _ := json.Marshal(Envelope{Type: EventPong})
			h.mu.RLock()
			select {
			case s.send <- pong:
			default:
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || len(allowed) == 0 || allowed[origin]
		},
	}
}
