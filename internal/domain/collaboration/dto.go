package collaboration

import "time"

// ProposeRequest opens a collaboration. The proposer becomes the collaborator.
type ProposeRequest struct {
	Post               PostRef             `json:"post"`
	OwnerID            int64               `json:"owner_id,omitempty"`
	Compensation       CompensationRequest `json:"compensation"`
	ProposedCommission float64             `json:"proposed_commission" binding:"gte=0,lte=100"`
	Message            string              `json:"message" binding:"max=2000"`
	ContractText       string              `json:"contract_text" binding:"max=20000"`
}

type CompensationRequest struct {
	Type       CompensationType `json:"type" binding:"required,oneof=fixed percentage"`
	Amount     *float64         `json:"amount,omitempty"`
	Percentage *float64         `json:"percentage,omitempty"`
}

type RespondRequest struct {
	Decision Status `json:"decision" binding:"required,oneof=accepted rejected"`
}

type TerminateRequest struct {
	Outcome Status `json:"outcome" binding:"required,oneof=completed cancelled"`
}

// UpdateStatusRequest is validated by the state machine, not by binding, so
// unknown values surface as INVALID_TRANSITION.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type UpdateContractRequest struct {
	Text string `json:"text" binding:"required,max=20000"`
}

type ValidateStepRequest struct {
	Note string `json:"note" binding:"max=2000"`
}

type AddNoteRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
	StepKey string `json:"step_key,omitempty"`
}

type SignaturesResponse struct {
	ContractVersion      int        `json:"contract_version"`
	OwnerSigned          bool       `json:"owner_signed"`
	OwnerSignedAt        *time.Time `json:"owner_signed_at,omitempty"`
	CollaboratorSigned   bool       `json:"collaborator_signed"`
	CollaboratorSignedAt *time.Time `json:"collaborator_signed_at,omitempty"`
	FullySigned          bool       `json:"fully_signed"`
	AwaitingResignature  bool       `json:"awaiting_resignature"`
}

type StepNoteResponse struct {
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ProgressStepResponse struct {
	Key                   string             `json:"key"`
	Label                 string             `json:"label"`
	OwnerValidated        bool               `json:"owner_validated"`
	CollaboratorValidated bool               `json:"collaborator_validated"`
	Completed             bool               `json:"completed"`
	ValidatedAt           *time.Time         `json:"validated_at,omitempty"`
	Notes                 []StepNoteResponse `json:"notes"`
}

type CollaborationResponse struct {
	ID                  string                 `json:"id"`
	Post                PostRef                `json:"post"`
	OwnerID             int64                  `json:"owner_id"`
	CollaboratorID      int64                  `json:"collaborator_id"`
	Role                Role                   `json:"role,omitempty"`
	Status              Status                 `json:"status"`
	Compensation        Compensation           `json:"compensation"`
	ProposedCommission  float64                `json:"proposed_commission"`
	ProposalMessage     string                 `json:"proposal_message,omitempty"`
	CurrentProgressStep string                 `json:"current_progress_step,omitempty"`
	ContractText        string                 `json:"contract_text"`
	ContractHash        string                 `json:"contract_hash"`
	Signatures          SignaturesResponse     `json:"signatures"`
	Steps               []ProgressStepResponse `json:"progress_steps,omitempty"`
	ActivatedAt         *time.Time             `json:"activated_at,omitempty"`
	ClosedAt            *time.Time             `json:"closed_at,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// NewCollaborationResponse renders c for viewerID. labels may be nil.
func NewCollaborationResponse(c *Collaboration, viewerID int64, labels func(string) string) *CollaborationResponse {
	resp := &CollaborationResponse{
		ID:                  c.ID,
		Post:                c.Post,
		OwnerID:             c.OwnerID,
		CollaboratorID:      c.CollaboratorID,
		Status:              c.Status,
		Compensation:        c.Compensation,
		ProposedCommission:  c.ProposedCommission,
		ProposalMessage:     c.ProposalMessage,
		CurrentProgressStep: c.CurrentProgressStep,
		ContractText:        c.ContractText,
		ContractHash:        c.ContractHash,
		Signatures: SignaturesResponse{
			ContractVersion:     c.ContractVersion,
			OwnerSigned:         c.SignedBy(RoleOwner),
			CollaboratorSigned:  c.SignedBy(RoleCollaborator),
			FullySigned:         c.FullySigned(),
			AwaitingResignature: c.AwaitingResignature(),
		},
		ActivatedAt: c.ActivatedAt,
		ClosedAt:    c.ClosedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if resp.Signatures.OwnerSigned {
		resp.Signatures.OwnerSignedAt = c.Signatures.OwnerSignedAt
	}
	if resp.Signatures.CollaboratorSigned {
		resp.Signatures.CollaboratorSignedAt = c.Signatures.CollaboratorSignedAt
	}
	if role, ok := c.RoleOf(viewerID); ok {
		resp.Role = role
	}

	for _, s := range c.Steps {
		label := s.StepKey
		if labels != nil {
			label = labels(s.StepKey)
		}
		step := ProgressStepResponse{
			Key:                   s.StepKey,
			Label:                 label,
			OwnerValidated:        s.OwnerValidated,
			CollaboratorValidated: s.CollaboratorValidated,
			Completed:             s.Completed,
			ValidatedAt:           s.ValidatedAt,
			Notes:                 make([]StepNoteResponse, 0, len(s.Notes)),
		}
		for _, n := range s.Notes {
			step.Notes = append(step.Notes, StepNoteResponse{AuthorID: n.AuthorID, Content: n.Content, CreatedAt: n.CreatedAt})
		}
		resp.Steps = append(resp.Steps, step)
	}
	return resp
}

type ActivityResponse struct {
	ID        int64        `json:"id"`
	Type      ActivityType `json:"type"`
	Content   string       `json:"content"`
	CreatedBy int64        `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

type SignResponse struct {
	Collaboration *CollaborationResponse `json:"collaboration"`
	FullySigned   bool                   `json:"fully_signed"`
}

type StepCatalogEntry struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}
