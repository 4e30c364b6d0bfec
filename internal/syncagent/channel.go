package syncagent

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel delivers push envelopes to registered handlers. Handlers run one at
// a time in arrival order. OnConnect callbacks run before any message of the
// new connection is dispatched; reconnect is false for the first connection.
type Channel interface {
	Handle(eventType string, h func(Envelope))
	OnConnect(fn func(reconnect bool))
	Run(ctx context.Context) error
}

type WSChannelConfig struct {
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
}

func DefaultWSChannelConfig() WSChannelConfig {
	return WSChannelConfig{
		MinBackoff:   500 * time.Millisecond,
		MaxBackoff:   30 * time.Second,
		PingInterval: 25 * time.Second,
	}
}

// WSChannel is a Channel over a reconnecting WebSocket.
type WSChannel struct {
	url    string
	dialer *websocket.Dialer
	cfg    WSChannelConfig

	mu        sync.RWMutex
	handlers  map[string][]func(Envelope)
	onConnect []func(bool)
}

func NewWSChannel(url string, cfg WSChannelConfig) *WSChannel {
	def := DefaultWSChannelConfig()
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &WSChannel{
		url:      url,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		cfg:      cfg,
		handlers: make(map[string][]func(Envelope)),
	}
}

func (c *WSChannel) Handle(eventType string, h func(Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

func (c *WSChannel) OnConnect(fn func(reconnect bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// Run connects and reconnects with exponential backoff until ctx is done.
func (c *WSChannel) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	connected := false

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("syncagent_dial_failed retry_in=%s err=%v", backoff, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			continue
		}

		backoff = c.cfg.MinBackoff
		c.connected(connected)
		connected = true

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("syncagent_disconnected err=%v", err)
	}
}

func (c *WSChannel) connected(reconnect bool) {
	c.mu.RLock()
	fns := append([]func(bool){}, c.onConnect...)
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(reconnect)
	}
}

func (c *WSChannel) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("syncagent_bad_message err=%v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *WSChannel) dispatch(env Envelope) {
	c.mu.RLock()
	hs := c.handlers[env.Type]
	c.mu.RUnlock()
	for _, h := range hs {
		h(env)
	}
}
