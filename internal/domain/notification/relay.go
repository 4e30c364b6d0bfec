package notification

import (
	"context"
	"fmt"
	"log"
	"time"
)

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{PollInterval: 2 * time.Second, BatchSize: 100}
}

// Relay pushes committed events to the broker in insertion order and stamps
// them as pushed afterwards. A crash between the two re-pushes the same ids,
// which clients discard.
type Relay struct {
	repo   Repository
	outbox *Outbox
	broker Broker
	cfg    RelayConfig
	now    func() time.Time
}

func NewRelay(repo Repository, outbox *Outbox, broker Broker, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultRelayConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRelayConfig().BatchSize
	}
	return &Relay{
		repo:   repo,
		outbox: outbox,
		broker: broker,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run drains on every outbox wakeup and on each poll tick until ctx is done.
// The poll catches events committed by other instances or before a restart.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	log.Printf("notification_relay_started poll=%s batch=%d", r.cfg.PollInterval, r.cfg.BatchSize)
	r.drainLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("notification_relay_stopped")
			return
		case <-r.outbox.wakeups():
			r.drainLogged(ctx)
		case <-ticker.C:
			r.drainLogged(ctx)
		}
	}
}

func (r *Relay) drainLogged(ctx context.Context) {
	if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
		log.Printf("notification_relay_error err=%v", err)
	}
}

// Drain pushes pending events until none remain and returns how many were pushed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.pushBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.cfg.BatchSize {
			return total, nil
		}
	}
}

func (r *Relay) pushBatch(ctx context.Context) (int, error) {
	pending, err := r.repo.PendingPush(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	pushEnabled := make(map[int64]bool)
	var recipients []int64
	pushed := make([]int64, 0, len(pending))

	var pushErr error
	for i := range pending {
		n := &pending[i]
		enabled, seen := pushEnabled[n.RecipientID]
		if !seen {
			prefs, err := r.repo.GetPreferences(ctx, n.RecipientID)
			if err != nil {
				pushErr = fmt.Errorf("load preferences user_id=%d: %w", n.RecipientID, err)
				break
			}
			enabled = prefs.PushEnabled
			pushEnabled[n.RecipientID] = enabled
			if enabled {
				recipients = append(recipients, n.RecipientID)
			}
		}

		if enabled {
			if err := r.broker.Publish(ctx, n.RecipientID, NewEnvelope(n)); err != nil {
				pushErr = fmt.Errorf("publish seq=%d: %w", n.Seq, err)
				break
			}
		}
		pushed = append(pushed, n.Seq)
	}

	for _, userID := range recipients {
		unread, err := r.repo.CountUnread(ctx, userID)
		if err != nil {
			log.Printf("notification_count_failed user_id=%d err=%v", userID, err)
			continue
		}
		if err := r.broker.Publish(ctx, userID, CountEnvelope(unread)); err != nil {
			log.Printf("notification_push_failed user_id=%d type=%s err=%v", userID, EventCount, err)
		}
	}

	if err := r.repo.MarkPushed(ctx, pushed, r.now()); err != nil {
		return 0, fmt.Errorf("mark pushed: %w", err)
	}
	if pushErr != nil {
		return len(pushed), pushErr
	}
	return len(pushed), nil
}
