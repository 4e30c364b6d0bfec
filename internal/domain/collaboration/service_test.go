package collaboration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatecollab/internal/domain/notification"
)

func TestPropose_OpensPendingAndNotifiesOwner(t *testing.T) {
	f := newFixture(t, Options{})

	c := f.propose(t, PropertyRef("P1"))
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, ownerID, c.OwnerID)
	assert.Equal(t, collaboratorID, c.CollaboratorID)
	assert.Equal(t, 1, c.ContractVersion)
	assert.NotEmpty(t, c.ContractText)
	assert.Equal(t, ContractHash(c.ContractText), c.ContractHash)
	assert.False(t, c.FullySigned())

	ev := f.lastEvent(t, ownerID)
	assert.Equal(t, notification.TypeProposalReceived, ev.Type)
	assert.Equal(t, c.ID, ev.EntityID)
	assert.Equal(t, collaboratorID, ev.ActorID)
	assert.Empty(t, f.inbox(t, collaboratorID))
}

func TestPropose_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	pct := 150.0

	cases := []struct {
		name string
		in   ProposeInput
		want *Error
	}{
		{"missing post id", ProposeInput{CollaboratorID: collaboratorID, Post: PostRef{Type: PostTypeProperty}, Compensation: fixed(1)}, ErrValidation},
		{"bad post type", ProposeInput{CollaboratorID: collaboratorID, Post: PostRef{Type: "villa", ID: "P1"}, Compensation: fixed(1)}, ErrValidation},
		{"bad percentage", ProposeInput{CollaboratorID: collaboratorID, Post: PropertyRef("P1"), Compensation: Compensation{Type: CompensationPercentage, Percentage: &pct}}, ErrValidation},
		{"unknown post", ProposeInput{CollaboratorID: collaboratorID, Post: PropertyRef("nope"), Compensation: fixed(1)}, ErrNotFound},
		{"own post", ProposeInput{CollaboratorID: ownerID, Post: PropertyRef("P1"), Compensation: fixed(1)}, ErrInvalidActor},
		{"wrong owner", ProposeInput{OwnerID: strangerID, CollaboratorID: collaboratorID, Post: PropertyRef("P1"), Compensation: fixed(1)}, ErrInvalidActor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Propose(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPropose_SearchAdOwnerIsResolved(t *testing.T) {
	f := newFixture(t, Options{})

	c, err := f.svc.Propose(context.Background(), ProposeInput{
		CollaboratorID: ownerID,
		Post:           SearchAdRef("S1"),
		Compensation:   fixed(500),
	})
	require.NoError(t, err)
	assert.Equal(t, collaboratorID, c.OwnerID)
	id, ok := c.Post.SearchAd()
	assert.True(t, ok)
	assert.Equal(t, "S1", id)
}

func TestPropose_DuplicateWhileOpen(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	first := f.propose(t, PropertyRef("P1"))

	_, err := f.svc.Propose(ctx, ProposeInput{CollaboratorID: strangerID, Post: PropertyRef("P1"), Compensation: fixed(1)})
	assert.ErrorIs(t, err, ErrDuplicateProposal)

	// A different post is unaffected.
	f.propose(t, PropertyRef("P2"))

	_, err = f.svc.Respond(ctx, first.ID, ownerID, StatusRejected)
	require.NoError(t, err)

	again, err := f.svc.Propose(ctx, ProposeInput{CollaboratorID: strangerID, Post: PropertyRef("P1"), Compensation: fixed(1)})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
}

func TestPropose_ConcurrentDuplicatesOneWins(t *testing.T) {
	f := newFixture(t, Options{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Propose(context.Background(), ProposeInput{
				CollaboratorID: int64(100 + i),
				Post:           PropertyRef("P1"),
				Compensation:   fixed(1),
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateProposal)
	}
	assert.Equal(t, 1, ok)
}

func TestRespond_OwnerOnly(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.propose(t, PropertyRef("P1"))

	_, err := f.svc.Respond(ctx, c.ID, collaboratorID, StatusAccepted)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Respond(ctx, c.ID, strangerID, StatusAccepted)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Respond(ctx, "missing", ownerID, StatusAccepted)
	assert.ErrorIs(t, err, ErrNotFound)

	c, err = f.svc.Respond(ctx, c.ID, ownerID, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, c.Status)

	ev := f.lastEvent(t, collaboratorID)
	assert.Equal(t, notification.TypeProposalAccepted, ev.Type)
	assert.Equal(t, "accepted", ev.DataMap()["status"])

	_, err = f.svc.Respond(ctx, c.ID, ownerID, StatusRejected)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachine_OnlyGraphEdges(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	pending := f.propose(t, PropertyRef("P1"))
	_, err := f.svc.RequestActivation(ctx, pending.ID, ownerID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending -> active")
	_, err = f.svc.Terminate(ctx, pending.ID, ownerID, StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending -> completed")

	_, err = f.svc.Respond(ctx, pending.ID, ownerID, StatusRejected)
	require.NoError(t, err)
	for _, to := range []string{"accepted", "active", "completed", "cancelled", "pending"} {
		_, err := f.svc.UpdateStatus(ctx, pending.ID, ownerID, to)
		assert.ErrorIs(t, err, ErrInvalidTransition, "rejected -> %s", to)
	}

	activity, err := f.svc.Activities(ctx, pending.ID, ownerID, 0)
	require.NoError(t, err)
	assert.Len(t, activity, 2)
}

func TestUpdateStatus_UnknownValueIsRejected(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.propose(t, PropertyRef("P1"))

	_, err := f.svc.UpdateStatus(ctx, c.ID, ownerID, "on_hold")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	activity, err := f.svc.Activities(ctx, c.ID, ownerID, 0)
	require.NoError(t, err)
	assert.Len(t, activity, 1, "no fallback note is written")

	c, err = f.svc.UpdateStatus(ctx, c.ID, ownerID, "accepted")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, c.Status)
}

func TestTerminate_FromActive(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.active(t)

	c, err := f.svc.Terminate(ctx, c.ID, collaboratorID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.NotNil(t, c.ClosedAt)
	assert.Equal(t, notification.TypeCompleted, f.lastEvent(t, ownerID).Type)

	_, err = f.svc.Terminate(ctx, c.ID, ownerID, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The post is free again.
	_, err = f.svc.Propose(ctx, ProposeInput{CollaboratorID: strangerID, Post: PropertyRef("P1"), Compensation: fixed(1)})
	assert.NoError(t, err)
}

func TestGet_ParticipantsOnly(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.propose(t, PropertyRef("P1"))

	_, err := f.svc.Get(ctx, c.ID, strangerID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.Get(ctx, c.ID, collaboratorID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestListForUser_StatusFilter(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.accepted(t)
	f.propose(t, PropertyRef("P2"))

	all, err := f.svc.ListForUser(ctx, ownerID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.svc.ListForUser(ctx, collaboratorID, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "P2", pending[0].Post.ID)

	none, err := f.svc.ListForUser(ctx, strangerID, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.ListForUser(ctx, ownerID, "archived")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEveryTransitionNotifiesCounterpartOnce(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.active(t)

	before := len(f.inbox(t, collaboratorID)) + len(f.inbox(t, ownerID))
	_, err := f.svc.Terminate(ctx, c.ID, ownerID, StatusCancelled)
	require.NoError(t, err)

	after := len(f.inbox(t, collaboratorID)) + len(f.inbox(t, ownerID))
	assert.Equal(t, before+1, after)
	ev := f.lastEvent(t, collaboratorID)
	assert.Equal(t, notification.TypeCancelled, ev.Type)
	assert.Equal(t, ownerID, ev.ActorID)
}
