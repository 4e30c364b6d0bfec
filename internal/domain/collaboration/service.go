package collaboration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"estatecollab/internal/domain/notification"
)

// PostLookup resolves a post reference to its owner.
type PostLookup interface {
	Resolve(ctx context.Context, ref PostRef) (*Post, error)
}

// ErrPostNotFound is returned by PostLookup implementations for unknown posts.
var ErrPostNotFound = errors.New("post not found")

// StepCatalog is the fixed, ordered progress step configuration.
type StepCatalog interface {
	Keys() []string
	First() string
	Next(key string) (string, bool)
	Index(key string) int
	Label(key string) string
}

type Options struct {
	// AllowActiveContractEdits permits contract edits after activation. Such an
	// edit clears both signatures and blocks progress until both re-sign.
	AllowActiveContractEdits bool
}

type Service struct {
	repo    Repository
	posts   PostLookup
	emitter *Emitter
	steps   StepCatalog
	opts    Options
}

func NewService(repo Repository, posts PostLookup, emitter *Emitter, steps StepCatalog, opts Options) *Service {
	return &Service{repo: repo, posts: posts, emitter: emitter, steps: steps, opts: opts}
}

type ProposeInput struct {
	// OwnerID is optional; when set it must match the post owner.
	OwnerID            int64
	CollaboratorID     int64
	Post               PostRef
	Compensation       Compensation
	ProposedCommission float64
	Message            string
	ContractText       string
}

// Propose opens a pending collaboration on a post owned by someone else.
func (s *Service) Propose(ctx context.Context, in ProposeInput) (*Collaboration, error) {
	if err := in.Post.Validate(); err != nil {
		return nil, err
	}
	if err := in.Compensation.Validate(); err != nil {
		return nil, err
	}
	if in.ProposedCommission < 0 || in.ProposedCommission > 100 {
		return nil, validationError("proposed commission must be between 0 and 100")
	}
	if in.CollaboratorID <= 0 {
		return nil, newError(CodeInvalidActor, "collaborator is required")
	}

	post, err := s.posts.Resolve(ctx, in.Post)
	if errors.Is(err, ErrPostNotFound) {
		return nil, newError(CodeNotFound, "%s %s not found", strings.ReplaceAll(string(in.Post.Type), "_", " "), in.Post.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve post %s: %w", in.Post, err)
	}
	if in.OwnerID != 0 && in.OwnerID != post.OwnerID {
		return nil, newError(CodeInvalidActor, "the proposal must be addressed to the owner of the post")
	}
	if post.OwnerID == in.CollaboratorID {
		return nil, ErrInvalidActor
	}

	contract := strings.TrimSpace(in.ContractText)
	c := &Collaboration{
		ID:                 uuid.NewString(),
		Post:               post.Ref,
		OwnerID:            post.OwnerID,
		CollaboratorID:     in.CollaboratorID,
		Status:             StatusPending,
		Compensation:       in.Compensation,
		ProposedCommission: in.ProposedCommission,
		ProposalMessage:    strings.TrimSpace(in.Message),
		ContractVersion:    1,
	}
	if contract == "" {
		contract = defaultContract(c, post.Title)
	}
	c.ContractText = contract
	c.ContractHash = ContractHash(contract)

	err = s.repo.Create(ctx, c, func(tx *Tx) error {
		if err := tx.AppendActivity(ActivityStatusUpdate, "Proposal sent", in.CollaboratorID); err != nil {
			return err
		}
		msg := fmt.Sprintf("You received a collaboration proposal on %s", postLabel(post))
		return s.emitter.Emit(ctx, tx, in.CollaboratorID, RoleCollaborator, notification.TypeProposalReceived,
			"New collaboration proposal", msg, nil)
	})
	if err != nil {
		return nil, err
	}
	s.emitter.Flush()

	log.Printf("collab_proposed id=%s post=%s owner=%d collaborator=%d", c.ID, c.Post, c.OwnerID, c.CollaboratorID)
	return c, nil
}

// Respond accepts or rejects a pending proposal. Owner only.
func (s *Service) Respond(ctx context.Context, id string, actorID int64, decision Status) (*Collaboration, error) {
	if decision != StatusAccepted && decision != StatusRejected {
		return nil, newError(CodeInvalidTransition, "a proposal can only be accepted or rejected")
	}

	return s.mutate(ctx, id, func(tx *Tx) error {
		c := tx.Collaboration()
		role, err := participant(c, actorID)
		if err != nil {
			return err
		}
		if role != RoleOwner {
			return newError(CodeForbidden, "only the listing owner can respond to this proposal")
		}
		if c.Status != StatusPending {
			return checkTransition(c.Status, decision)
		}
		return s.transition(ctx, tx, actorID, role, decision)
	})
}

// RequestActivation moves an accepted collaboration to active once the
// contract is fully signed at its current version.
func (s *Service) RequestActivation(ctx context.Context, id string, actorID int64) (*Collaboration, error) {
	return s.mutate(ctx, id, func(tx *Tx) error {
		c := tx.Collaboration()
		role, err := participant(c, actorID)
		if err != nil {
			return err
		}
		if err := checkTransition(c.Status, StatusActive); err != nil {
			return err
		}
		if !c.FullySigned() {
			return contractNotSignedError(c, role)
		}
		if err := tx.SetStatus(StatusActive); err != nil {
			return err
		}
		if err := tx.InitSteps(s.steps.Keys()); err != nil {
			return err
		}
		return s.recordTransition(ctx, tx, actorID, role, StatusAccepted, StatusActive)
	})
}

// Terminate closes an active collaboration as completed or cancelled.
func (s *Service) Terminate(ctx context.Context, id string, actorID int64, outcome Status) (*Collaboration, error) {
	if outcome != StatusCompleted && outcome != StatusCancelled {
		return nil, newError(CodeInvalidTransition, "a collaboration can only end as completed or cancelled")
	}

	return s.mutate(ctx, id, func(tx *Tx) error {
		role, err := participant(tx.Collaboration(), actorID)
		if err != nil {
			return err
		}
		return s.transition(ctx, tx, actorID, role, outcome)
	})
}

// UpdateStatus maps a requested status onto the matching operation. Values
// without a matching operation are rejected, never downgraded to a note.
func (s *Service) UpdateStatus(ctx context.Context, id string, actorID int64, raw string) (*Collaboration, error) {
	status, err := ParseStatus(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusAccepted, StatusRejected:
		return s.Respond(ctx, id, actorID, status)
	case StatusActive:
		return s.RequestActivation(ctx, id, actorID)
	case StatusCompleted, StatusCancelled:
		return s.Terminate(ctx, id, actorID, status)
	}
	return nil, newError(CodeInvalidTransition, "cannot move a collaboration back to %s", status)
}

// Get returns a collaboration visible to userID.
func (s *Service) Get(ctx context.Context, id string, userID int64) (*Collaboration, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := participant(c, userID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64, status string) ([]Collaboration, error) {
	var filter Status
	if status != "" {
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, validationError("unknown status filter %q", status)
		}
		filter = parsed
	}
	return s.repo.ListForUser(ctx, userID, filter)
}

func (s *Service) Activities(ctx context.Context, id string, userID int64, limit int) ([]Activity, error) {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.repo.ListActivities(ctx, id, limit)
}

// Steps exposes the configured step order.
func (s *Service) Steps() StepCatalog { return s.steps }

func (s *Service) mutate(ctx context.Context, id string, fn func(tx *Tx) error) (*Collaboration, error) {
	var out *Collaboration
	err := s.repo.Mutate(ctx, id, func(tx *Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		out = tx.Collaboration()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitter.Flush()
	return out, nil
}

func (s *Service) transition(ctx context.Context, tx *Tx, actorID int64, role Role, to Status) error {
	from := tx.Collaboration().Status
	if err := tx.SetStatus(to); err != nil {
		return err
	}
	return s.recordTransition(ctx, tx, actorID, role, from, to)
}

func (s *Service) recordTransition(ctx context.Context, tx *Tx, actorID int64, role Role, from, to Status) error {
	c := tx.Collaboration()
	content := fmt.Sprintf("Status changed from %s to %s by the %s", from, to, role.Label())
	if err := tx.AppendActivity(ActivityStatusUpdate, content, actorID); err != nil {
		return err
	}

	typ, title := transitionEvent(to)
	msg := fmt.Sprintf("The %s moved your collaboration to %s", role.Label(), to)
	if err := s.emitter.Emit(ctx, tx, actorID, role, typ, title, msg, map[string]any{"from": from}); err != nil {
		return err
	}

	log.Printf("collab_transition id=%s from=%s to=%s actor=%d role=%s", c.ID, from, to, actorID, role)
	return nil
}

func participant(c *Collaboration, actorID int64) (Role, error) {
	role, ok := c.RoleOf(actorID)
	if !ok {
		return "", ErrForbidden
	}
	return role, nil
}

func contractNotSignedError(c *Collaboration, role Role) *Error {
	ownerSigned, collabSigned := c.SignedBy(RoleOwner), c.SignedBy(RoleCollaborator)
	switch {
	case !ownerSigned && !collabSigned:
		return ErrContractNotSigned
	case role == RoleOwner && !ownerSigned, role == RoleCollaborator && !collabSigned:
		return newError(CodeContractNotSigned, "sign contract version %d before activating", c.ContractVersion)
	default:
		return newError(CodeContractNotSigned, "waiting for the %s to sign contract version %d",
			otherRole(role).Label(), c.ContractVersion)
	}
}

func otherRole(r Role) Role {
	if r == RoleOwner {
		return RoleCollaborator
	}
	return RoleOwner
}

func postLabel(p *Post) string {
	kind := "your listing"
	if p.Ref.Type == PostTypeSearchAd {
		kind = "your search ad"
	}
	if p.Title == "" {
		return kind
	}
	return fmt.Sprintf("%s %q", kind, p.Title)
}

func defaultContract(c *Collaboration, title string) string {
	var terms string
	switch c.Compensation.Type {
	case CompensationFixed:
		terms = fmt.Sprintf("a fixed fee of %.2f", *c.Compensation.Amount)
	case CompensationPercentage:
		terms = fmt.Sprintf("%.2f%% of the agency fee", *c.Compensation.Percentage)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Collaboration agreement for %s %s", strings.ReplaceAll(string(c.Post.Type), "_", " "), c.Post.ID)
	if title != "" {
		fmt.Fprintf(&b, " (%s)", title)
	}
	fmt.Fprintf(&b, ".\nOwner: user #%d. Collaborator: user #%d.\n", c.OwnerID, c.CollaboratorID)
	fmt.Fprintf(&b, "Compensation: %s.\n", terms)
	if c.ProposedCommission > 0 {
		fmt.Fprintf(&b, "Proposed commission split: %.2f%%.\n", c.ProposedCommission)
	}
	b.WriteString("Both parties validate each progress step before it is considered complete.\n")
	return b.String()
}
