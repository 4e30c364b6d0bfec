package collaboration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatecollab/internal/domain/notification"
)

func TestValidateStep_CompletesWhenBothValidate(t *testing.T) {
	for _, order := range [][2]int64{{ownerID, collaboratorID}, {collaboratorID, ownerID}} {
		f := newFixture(t, Options{})
		ctx := context.Background()
		c := f.active(t)

		c, err := f.svc.ValidateStep(ctx, c.ID, order[0], "agreement", "")
		require.NoError(t, err)
		assert.False(t, c.Step("agreement").Completed)
		assert.Equal(t, "agreement", c.CurrentProgressStep)

		c, err = f.svc.ValidateStep(ctx, c.ID, order[1], "agreement", "")
		require.NoError(t, err)
		step := c.Step("agreement")
		assert.True(t, step.Completed)
		assert.NotNil(t, step.ValidatedAt)
		assert.Equal(t, "visit", c.CurrentProgressStep)

		// Persisted, not only in memory.
		got, err := f.svc.Get(ctx, c.ID, ownerID)
		require.NoError(t, err)
		assert.True(t, got.Step("agreement").Completed)
		assert.Equal(t, "visit", got.CurrentProgressStep)
	}
}

func TestValidateStep_EventsGoToCounterpart(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.active(t)

	_, err := f.svc.ValidateStep(ctx, c.ID, ownerID, "agreement", "")
	require.NoError(t, err)
	ev := f.lastEvent(t, collaboratorID)
	assert.Equal(t, notification.TypeStepValidated, ev.Type)
	assert.Equal(t, "agreement", ev.DataMap()["step_key"])

	_, err = f.svc.ValidateStep(ctx, c.ID, collaboratorID, "agreement", "")
	require.NoError(t, err)
	ev = f.lastEvent(t, ownerID)
	assert.Equal(t, notification.TypeStepCompleted, ev.Type)
	assert.Equal(t, "visit", ev.DataMap()["current_progress_step"])
}

func TestValidateStep_RepeatIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.active(t)

	_, err := f.svc.ValidateStep(ctx, c.ID, ownerID, "agreement", "")
	require.NoError(t, err)
	events := len(f.inbox(t, collaboratorID))

	c, err = f.svc.ValidateStep(ctx, c.ID, ownerID, "agreement", "called the buyer again")
	require.NoError(t, err)
	assert.Len(t, f.inbox(t, collaboratorID), events)
	assert.False(t, c.Step("agreement").Completed)
	require.Len(t, c.Step("agreement").Notes, 1)
	assert.Equal(t, "called the buyer again", c.Step("agreement").Notes[0].Content)
}

func TestValidateStep_OutOfOrderDoesNotMoveCurrent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.active(t)

	for _, actor := range []int64{ownerID, collaboratorID} {
		var err error
		c, err = f.svc.ValidateStep(ctx, c.ID, actor, "visit", "")
		require.NoError(t, err)
	}
	assert.True(t, c.Step("visit").Completed)
	assert.Equal(t, "agreement", c.CurrentProgressStep)

	// Completing the current step skips the already completed one.
	for _, actor := range []int64{ownerID, collaboratorID} {
		var err error
		c, err = f.svc.ValidateStep(ctx, c.ID, actor, "agreement", "")
		require.NoError(t, err)
	}
	assert.Equal(t, "offer", c.CurrentProgressStep)

	// The last step stays current once completed.
	for _, actor := range []int64{ownerID, collaboratorID} {
		var err error
		c, err = f.svc.ValidateStep(ctx, c.ID, actor, "offer", "")
		require.NoError(t, err)
	}
	assert.Equal(t, "offer", c.CurrentProgressStep)
	assert.Equal(t, StatusActive, c.Status)
}

func TestValidateStep_Guards(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	accepted := f.accepted(t)
	_, err := f.svc.ValidateStep(ctx, accepted.ID, ownerID, "agreement", "")
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = f.svc.Terminate(ctx, accepted.ID, ownerID, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f2 := newFixture(t, Options{})
	active := f2.active(t)
	_, err = f2.svc.ValidateStep(ctx, active.ID, strangerID, "agreement", "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f2.svc.ValidateStep(ctx, active.ID, ownerID, "closing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateStep_ConcurrentValidationsComplete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.active(t)

	var wg sync.WaitGroup
	for _, actor := range []int64{ownerID, collaboratorID, ownerID, collaboratorID} {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			_, err := f.svc.ValidateStep(ctx, c.ID, actor, "agreement", "")
			assert.NoError(t, err)
		}(actor)
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, c.ID, ownerID)
	require.NoError(t, err)
	assert.True(t, got.Step("agreement").Completed)
	assert.Equal(t, "visit", got.CurrentProgressStep)

	completed := 0
	for _, ev := range append(f.inbox(t, ownerID), f.inbox(t, collaboratorID)...) {
		if ev.Type == notification.TypeStepCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestAddNote(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.active(t)

	c, err := f.svc.AddNote(ctx, c.ID, collaboratorID, "Visit booked for Friday", "visit")
	require.NoError(t, err)
	require.Len(t, c.Step("visit").Notes, 1)
	assert.Equal(t, collaboratorID, c.Step("visit").Notes[0].AuthorID)
	assert.Equal(t, notification.TypeNoteAdded, f.lastEvent(t, ownerID).Type)

	_, err = f.svc.AddNote(ctx, c.ID, ownerID, "General remark", "")
	require.NoError(t, err)
	activity, err := f.svc.Activities(ctx, c.ID, ownerID, 1)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, ActivityNote, activity[0].Type)
	assert.Equal(t, "General remark", activity[0].Content)

	_, err = f.svc.AddNote(ctx, c.ID, ownerID, "", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.AddNote(ctx, c.ID, ownerID, "x", "closing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScenario_EditAfterActivationInvalidatesFullySignedView(t *testing.T) {
	f := newFixture(t, Options{AllowActiveContractEdits: true})
	ctx := context.Background()
	c := f.active(t)
	assert.True(t, NewCollaborationResponse(c, ownerID, nil).Signatures.FullySigned)

	_, err := f.svc.UpdateContract(ctx, c.ID, collaboratorID, "New clause")
	require.NoError(t, err)

	fresh, err := f.svc.Get(ctx, c.ID, ownerID)
	require.NoError(t, err)
	view := NewCollaborationResponse(fresh, ownerID, nil)
	assert.Equal(t, 2, view.Signatures.ContractVersion)
	assert.False(t, view.Signatures.OwnerSigned)
	assert.False(t, view.Signatures.CollaboratorSigned)
	assert.False(t, view.Signatures.FullySigned)
	assert.True(t, view.Signatures.AwaitingResignature)
	assert.Equal(t, RoleOwner, view.Role)
}
