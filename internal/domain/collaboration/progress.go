package collaboration

import (
	"context"
	"fmt"
	"strings"

	"estatecollab/internal/domain/notification"
)

// ValidateStep records the actor's sign-off on a progress step. The step
// completes once both roles have validated it, in either order. Repeating a
// validation changes nothing and emits nothing; a note passed along is still kept.
func (s *Service) ValidateStep(ctx context.Context, id string, actorID int64, stepKey, note string) (*Collaboration, error) {
	stepKey = strings.TrimSpace(stepKey)
	note = strings.TrimSpace(note)

	return s.mutate(ctx, id, func(tx *Tx) error {
		c := tx.Collaboration()
		role, err := participant(c, actorID)
		if err != nil {
			return err
		}
		if c.Status != StatusActive {
			return newError(CodeNotActive, "progress can only be validated while the collaboration is active (current status: %s)", c.Status)
		}
		if c.AwaitingResignature() {
			return newError(CodeContractNotSigned, "contract version %d must be signed by both parties before progress can continue", c.ContractVersion)
		}
		step := c.Step(stepKey)
		if step == nil {
			return newError(CodeNotFound, "unknown progress step %q", stepKey)
		}

		if note != "" {
			if err := tx.AppendStepNote(stepKey, note, actorID); err != nil {
				return err
			}
		}

		changed, err := tx.ValidateStep(stepKey, role)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		completed, err := tx.CompleteStep(stepKey)
		if err != nil {
			return err
		}

		if !completed {
			if err := tx.AppendActivity(ActivityStatusUpdate,
				fmt.Sprintf("The %s validated step %s", role.Label(), stepKey), actorID); err != nil {
				return err
			}
			return s.emitter.Emit(ctx, tx, actorID, role, notification.TypeStepValidated,
				"Progress step validated",
				fmt.Sprintf("The %s validated step %q and is waiting for your confirmation", role.Label(), stepKey),
				map[string]any{"step_key": stepKey})
		}

		if err := s.advance(tx, stepKey); err != nil {
			return err
		}
		if err := tx.AppendActivity(ActivityStatusUpdate,
			fmt.Sprintf("Step %s completed", stepKey), actorID); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, actorID, role, notification.TypeStepCompleted,
			"Progress step completed",
			fmt.Sprintf("Step %q is now validated by both parties", stepKey),
			map[string]any{"step_key": stepKey, "current_progress_step": c.CurrentProgressStep})
	})
}

// advance moves the current step past completed once it was the current one.
// Steps completed ahead of time are skipped; the last step stays current.
func (s *Service) advance(tx *Tx, completed string) error {
	c := tx.Collaboration()
	if c.CurrentProgressStep != completed {
		return nil
	}

	next := completed
	for {
		key, ok := s.steps.Next(next)
		if !ok {
			return nil
		}
		next = key
		if st := c.Step(key); st == nil || !st.Completed {
			return tx.SetCurrentStep(key)
		}
	}
}

// AddNote appends a note to a step when stepKey is set, otherwise to the activity log.
func (s *Service) AddNote(ctx context.Context, id string, actorID int64, content, stepKey string) (*Collaboration, error) {
	content = strings.TrimSpace(content)
	stepKey = strings.TrimSpace(stepKey)
	if content == "" {
		return nil, validationError("note content is required")
	}

	return s.mutate(ctx, id, func(tx *Tx) error {
		c := tx.Collaboration()
		role, err := participant(c, actorID)
		if err != nil {
			return err
		}
		if c.Status != StatusActive {
			return newError(CodeNotActive, "notes can only be added while the collaboration is active (current status: %s)", c.Status)
		}

		extra := map[string]any{}
		if stepKey != "" {
			if c.Step(stepKey) == nil {
				return newError(CodeNotFound, "unknown progress step %q", stepKey)
			}
			if err := tx.AppendStepNote(stepKey, content, actorID); err != nil {
				return err
			}
			extra["step_key"] = stepKey
		} else if err := tx.AppendActivity(ActivityNote, content, actorID); err != nil {
			return err
		}

		return s.emitter.Emit(ctx, tx, actorID, role, notification.TypeNoteAdded,
			"New note", fmt.Sprintf("The %s added a note: %s", role.Label(), preview(content, 120)), extra)
	})
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
