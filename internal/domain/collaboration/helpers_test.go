package collaboration

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"estatecollab/internal/config"
	"estatecollab/internal/database"
	"estatecollab/internal/domain/notification"
)

const (
	ownerID        int64 = 10
	collaboratorID int64 = 20
	strangerID     int64 = 30
)

type fakePosts map[PostRef]*Post

func (f fakePosts) Resolve(_ context.Context, ref PostRef) (*Post, error) {
	p, ok := f[ref]
	if !ok {
		return nil, ErrPostNotFound
	}
	return p, nil
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	notifs notification.Repository
	steps  *config.ProgressSteps
	posts  fakePosts
}

var dbSeq atomic.Int64

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:collab_%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1)))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, notification.Migrate(db))

	steps, err := config.ParseProgressSteps([]byte(`
steps:
  - key: agreement
  - key: visit
  - key: offer
`))
	require.NoError(t, err)

	posts := fakePosts{
		PropertyRef("P1"): {Ref: PropertyRef("P1"), OwnerID: ownerID, Title: "Loft on Abay"},
		PropertyRef("P2"): {Ref: PropertyRef("P2"), OwnerID: ownerID},
		SearchAdRef("S1"): {Ref: SearchAdRef("S1"), OwnerID: collaboratorID, Title: "2BR near park"},
	}

	notifs := notification.NewRepository(db)
	emitter := NewEmitter(notification.NewOutbox(notifs))
	svc := NewService(NewRepository(db, nil), posts, emitter, steps, opts)
	return &fixture{db: db, svc: svc, notifs: notifs, steps: steps, posts: posts}
}

func fixed(v float64) Compensation {
	return Compensation{Type: CompensationFixed, Amount: &v}
}

func (f *fixture) propose(t *testing.T, ref PostRef) *Collaboration {
	t.Helper()
	c, err := f.svc.Propose(context.Background(), ProposeInput{
		CollaboratorID: collaboratorID,
		Post:           ref,
		Compensation:   fixed(1500),
		Message:        "I have a buyer",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) accepted(t *testing.T) *Collaboration {
	t.Helper()
	c := f.propose(t, PropertyRef("P1"))
	c, err := f.svc.Respond(context.Background(), c.ID, ownerID, StatusAccepted)
	require.NoError(t, err)
	return c
}

func (f *fixture) active(t *testing.T) *Collaboration {
	t.Helper()
	ctx := context.Background()
	c := f.accepted(t)
	_, _, err := f.svc.Sign(ctx, c.ID, ownerID)
	require.NoError(t, err)
	_, _, err = f.svc.Sign(ctx, c.ID, collaboratorID)
	require.NoError(t, err)
	c, err = f.svc.RequestActivation(ctx, c.ID, collaboratorID)
	require.NoError(t, err)
	return c
}

// inbox returns the notifications of userID, oldest first.
func (f *fixture) inbox(t *testing.T, userID int64) []notification.Notification {
	t.Helper()
	items, err := f.notifs.List(context.Background(), userID, 0, 100)
	require.NoError(t, err)
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

func (f *fixture) lastEvent(t *testing.T, userID int64) notification.Notification {
	t.Helper()
	items := f.inbox(t, userID)
	require.NotEmpty(t, items)
	return items[len(items)-1]
}
