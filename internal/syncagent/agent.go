package syncagent

import (
	"context"
	"log"
	"sync"
	"time"
)

const DefaultBootstrapLimit = 50

// seenWindow is how many recent ids, as a multiple of the bootstrap limit,
// are remembered for duplicate detection. Redeliveries are always recent.
const seenWindow = 4

// Backlog is the authoritative side the agent resynchronizes from. *Client
// implements it.
type Backlog interface {
	ListNotifications(ctx context.Context, cursor string, limit int) (NotificationPage, error)
	GetCollaboration(ctx context.Context, id string) (Collaboration, error)
}

// Alerter raises a user-visible alert (desktop notification, terminal bell).
type Alerter interface {
	Alert(n Notification)
}

type Config struct {
	UserID         int64
	BootstrapLimit int
	AlertCooldown  time.Duration
	// OnChange, when set, is called after every state change with a copy of the state.
	OnChange func(State)
}

// State is what the agent shows: the recent items, newest first, and the unread count.
type State struct {
	Items  []Notification
	Unread int64
}

// Agent keeps one session's notification state in step with the server. Live
// pushes are applied as they arrive and duplicates are dropped by id; after a
// reconnect the state is replaced by a fresh fetch.
type Agent struct {
	backlog  Backlog
	cache    *SessionCache
	alerter  Alerter
	throttle *AlertThrottle
	cfg      Config

	mu         sync.Mutex
	seen       map[string]struct{}
	seenOrder  []string
	items      []Notification
	unread     int64
	views      map[string]Collaboration
	foreground bool
}

func NewAgent(backlog Backlog, cache *SessionCache, alerter Alerter, cfg Config) *Agent {
	if cfg.BootstrapLimit <= 0 {
		cfg.BootstrapLimit = DefaultBootstrapLimit
	}
	return &Agent{
		backlog:  backlog,
		cache:    cache,
		alerter:  alerter,
		throttle: NewAlertThrottle(cfg.AlertCooldown),
		cfg:      cfg,
		seen:     make(map[string]struct{}),
		views:    make(map[string]Collaboration),
	}
}

// Attach registers the agent's handlers on ch. Call before ch.Run.
func (a *Agent) Attach(ctx context.Context, ch Channel) {
	ch.Handle(EventNew, a.onNew)
	ch.Handle(EventCount, a.onCount)
	ch.Handle(EventRead, a.onRead)
	ch.Handle(EventReadAll, a.onReadAll)
	ch.OnConnect(func(reconnect bool) {
		if !reconnect {
			return
		}
		if err := a.Resync(ctx); err != nil {
			log.Printf("syncagent_resync_failed user_id=%d err=%v", a.cfg.UserID, err)
		}
	})
}

// Bootstrap loads the initial state through the session cache.
func (a *Agent) Bootstrap(ctx context.Context) error {
	snap, err := a.cache.Load(ctx, a.cfg.UserID, a.fetch)
	if err != nil {
		return err
	}
	a.replace(snap)
	return nil
}

// Resync discards the live state and reloads it from the backlog.
func (a *Agent) Resync(ctx context.Context) error {
	a.cache.Invalidate(a.cfg.UserID)
	snap, err := a.cache.Load(ctx, a.cfg.UserID, a.fetch)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.views = make(map[string]Collaboration)
	a.mu.Unlock()
	a.replace(snap)
	return nil
}

func (a *Agent) fetch(ctx context.Context) (Snapshot, error) {
	page, err := a.backlog.ListNotifications(ctx, "", a.cfg.BootstrapLimit)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Items: page.Notifications, Unread: page.UnreadCount}, nil
}

func (a *Agent) replace(snap Snapshot) {
	a.mu.Lock()
	a.items = append([]Notification(nil), snap.Items...)
	a.unread = snap.Unread
	for i := len(snap.Items) - 1; i >= 0; i-- {
		a.markSeenLocked(snap.Items[i].ID)
	}
	state := a.stateLocked()
	a.mu.Unlock()
	a.changed(state)
}

// SetForeground switches between in-app updates only (true) and OS alerts (false).
func (a *Agent) SetForeground(fg bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.foreground = fg
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

// View returns the collaboration view, fetching it when not cached. Any event
// about a collaboration drops its cached view.
func (a *Agent) View(ctx context.Context, id string) (Collaboration, error) {
	a.mu.Lock()
	v, ok := a.views[id]
	a.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := a.backlog.GetCollaboration(ctx, id)
	if err != nil {
		return Collaboration{}, err
	}
	a.mu.Lock()
	a.views[id] = v
	a.mu.Unlock()
	return v, nil
}

func (a *Agent) onNew(env Envelope) {
	if env.Notification == nil {
		return
	}
	n := *env.Notification

	a.mu.Lock()
	if !a.markSeenLocked(n.ID) {
		a.mu.Unlock()
		return
	}
	a.items = append([]Notification{n}, a.items...)
	if len(a.items) > a.cfg.BootstrapLimit {
		a.items = a.items[:a.cfg.BootstrapLimit]
	}
	if !n.Read {
		a.unread++
	}
	if id := n.CollaborationID(); id != "" {
		delete(a.views, id)
	}
	alert := !a.foreground
	state := a.stateLocked()
	a.mu.Unlock()

	a.changed(state)
	if alert && a.alerter != nil && a.throttle.Allow() {
		a.alerter.Alert(n)
	}
}

func (a *Agent) onCount(env Envelope) {
	if env.UnreadCount == nil {
		return
	}
	a.mu.Lock()
	a.unread = *env.UnreadCount
	state := a.stateLocked()
	a.mu.Unlock()
	a.changed(state)
}

func (a *Agent) onRead(env Envelope) {
	a.mu.Lock()
	for i := range a.items {
		if a.items[i].ID == env.ID {
			a.items[i].Read = true
		}
	}
	state := a.stateLocked()
	a.mu.Unlock()
	a.changed(state)
}

func (a *Agent) onReadAll(Envelope) {
	a.mu.Lock()
	for i := range a.items {
		a.items[i].Read = true
	}
	a.unread = 0
	state := a.stateLocked()
	a.mu.Unlock()
	a.changed(state)
}

// markSeenLocked records id and reports whether it was new. Only the most
// recent ids are kept.
func (a *Agent) markSeenLocked(id string) bool {
	if _, ok := a.seen[id]; ok {
		return false
	}
	a.seen[id] = struct{}{}
	a.seenOrder = append(a.seenOrder, id)
	if limit := seenWindow * a.cfg.BootstrapLimit; len(a.seenOrder) > limit {
		drop := len(a.seenOrder) - limit
		for _, old := range a.seenOrder[:drop] {
			delete(a.seen, old)
		}
		a.seenOrder = append([]string(nil), a.seenOrder[drop:]...)
	}
	return true
}

func (a *Agent) stateLocked() State {
	return State{Items: append([]Notification(nil), a.items...), Unread: a.unread}
}

func (a *Agent) changed(s State) {
	if a.cfg.OnChange != nil {
		a.cfg.OnChange(s)
	}
}
