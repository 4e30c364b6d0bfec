package collaboration

import (
	"context"
	"fmt"
	"strings"

	"estatecollab/internal/domain/notification"
)

// UpdateContract replaces the contract text. Any edit bumps the version and
// clears both signatures.
func (s *Service) UpdateContract(ctx context.Context, id string, actorID int64, text string) (*Collaboration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("contract text is required")
	}

	return s.mutate(ctx, id, func(tx *Tx) error {
		c := tx.Collaboration()
		role, err := participant(c, actorID)
		if err != nil {
			return err
		}
		if err := s.checkContractEditable(c); err != nil {
			return err
		}
		if text == c.ContractText {
			return nil
		}

		if err := tx.ReplaceContract(text); err != nil {
			return err
		}
		content := fmt.Sprintf("Contract updated to version %d by the %s; signatures reset", c.ContractVersion, role.Label())
		if err := tx.AppendActivity(ActivityStatusUpdate, content, actorID); err != nil {
			return err
		}

		msg := fmt.Sprintf("The %s edited the contract (version %d). Both parties must sign again.", role.Label(), c.ContractVersion)
		return s.emitter.Emit(ctx, tx, actorID, role, notification.TypeContractUpdated, "Contract updated", msg, nil)
	})
}

func (s *Service) checkContractEditable(c *Collaboration) error {
	switch c.Status {
	case StatusAccepted:
		return nil
	case StatusActive:
		if s.opts.AllowActiveContractEdits {
			return nil
		}
		return newError(CodeNotActive, "the contract can no longer be edited once the collaboration is active")
	}
	return newError(CodeNotActive, "the contract can only be edited after the proposal is accepted (current status: %s)", c.Status)
}

// Sign records the actor's signature on the current contract version and
// reports whether both parties have now signed it.
func (s *Service) Sign(ctx context.Context, id string, actorID int64) (*Collaboration, bool, error) {
	c, err := s.mutate(ctx, id, func(tx *Tx) error {
		c := tx.Collaboration()
		role, err := participant(c, actorID)
		if err != nil {
			return err
		}
		if c.Status != StatusAccepted && c.Status != StatusActive {
			return newError(CodeNotActive, "the contract can only be signed after the proposal is accepted (current status: %s)", c.Status)
		}
		if c.SignedBy(role) {
			return nil
		}

		if err := tx.RecordSignature(role); err != nil {
			return err
		}
		if err := tx.AppendActivity(ActivityStatusUpdate,
			fmt.Sprintf("Contract version %d signed by the %s", c.ContractVersion, role.Label()), actorID); err != nil {
			return err
		}

		msg := fmt.Sprintf("The %s signed contract version %d. Your signature is still required.", role.Label(), c.ContractVersion)
		if c.FullySigned() {
			msg = fmt.Sprintf("Contract version %d is now signed by both parties.", c.ContractVersion)
		}
		return s.emitter.Emit(ctx, tx, actorID, role, notification.TypeContractSigned, "Contract signed", msg,
			map[string]any{"fully_signed": c.FullySigned()})
	})
	if err != nil {
		return nil, false, err
	}
	return c, c.FullySigned(), nil
}
