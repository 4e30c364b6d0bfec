package notification

import (
	"context"

	"gorm.io/gorm"
)

// Outbox is the write side of delivery: events are appended in the caller's
// transaction and the relay is woken after commit.
type Outbox struct {
	repo Repository
	wake chan struct{}
}

func NewOutbox(repo Repository) *Outbox {
	return &Outbox{repo: repo, wake: make(chan struct{}, 1)}
}

func (o *Outbox) Append(ctx context.Context, tx *gorm.DB, n *Notification) error {
	return o.repo.Append(ctx, tx, n)
}

// Wake never blocks; wakeups coalesce.
func (o *Outbox) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) wakeups() <-chan struct{} {
	return o.wake
}
