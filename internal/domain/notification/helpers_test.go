package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"estatecollab/internal/database"
)

var dbSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:notif_%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1)))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

type published struct {
	UserID   int64
	Envelope *Envelope
}

type fakeBroker struct {
	mu     sync.Mutex
	sent   []published
	failAt int // fail the n-th publish (1-based); 0 never fails
	calls  int
}

func (b *fakeBroker) Publish(_ context.Context, userID int64, env *Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failAt > 0 && b.calls == b.failAt {
		return fmt.Errorf("broker unavailable")
	}
	b.sent = append(b.sent, published{UserID: userID, Envelope: env})
	return nil
}

func (b *fakeBroker) ofType(typ string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.sent {
		if p.Envelope.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

func (b *fakeBroker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
	b.calls = 0
}

func seed(t *testing.T, repo Repository, recipientID int64, title string) *Notification {
	t.Helper()
	n := &Notification{
		RecipientID: recipientID,
		ActorID:     99,
		Type:        TypeNoteAdded,
		Title:       title,
		EntityType:  EntityCollaboration,
		EntityID:    "c-1",
	}
	require.NoError(t, repo.Append(context.Background(), nil, n))
	return n
}
