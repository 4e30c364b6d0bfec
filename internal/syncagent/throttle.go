package syncagent

import (
	"sync"
	"time"
)

const DefaultAlertCooldown = 3 * time.Second

// AlertThrottle allows at most one alert per cooldown.
type AlertThrottle struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
	now      func() time.Time
}

func NewAlertThrottle(cooldown time.Duration) *AlertThrottle {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	return &AlertThrottle{cooldown: cooldown, now: time.Now}
}

// Allow reports whether an alert may fire now and, if so, starts a new cooldown.
func (t *AlertThrottle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.cooldown {
		return false
	}
	t.last = now
	return true
}
