package collaboration

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Status of a collaboration.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusActive, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// Blocking statuses hold the post: no second proposal may be opened on it.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusActive
}

var blockingStatuses = []Status{StatusPending, StatusAccepted, StatusActive}

// Role of a participant within one collaboration.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
)

func (r Role) Label() string {
	if r == RoleOwner {
		return "listing owner"
	}
	return "collaborator"
}

type PostType string

const (
	PostTypeProperty PostType = "property"
	PostTypeSearchAd PostType = "search_ad"
)

// PostRef points at exactly one of a property listing or a search ad.
type PostRef struct {
	Type PostType `gorm:"column:post_type;size:16;not null" json:"type" binding:"required,oneof=property search_ad"`
	ID   string   `gorm:"column:post_id;size:64;not null" json:"id" binding:"required"`
}

func PropertyRef(id string) PostRef { return PostRef{Type: PostTypeProperty, ID: id} }
func SearchAdRef(id string) PostRef { return PostRef{Type: PostTypeSearchAd, ID: id} }

// Property returns the listing id when the reference is a property.
func (r PostRef) Property() (string, bool) {
	return r.ID, r.Type == PostTypeProperty && r.ID != ""
}

// SearchAd returns the search ad id when the reference is a search ad.
func (r PostRef) SearchAd() (string, bool) {
	return r.ID, r.Type == PostTypeSearchAd && r.ID != ""
}

func (r PostRef) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return validationError("post id is required")
	}
	if r.Type != PostTypeProperty && r.Type != PostTypeSearchAd {
		return validationError("post type must be %q or %q", PostTypeProperty, PostTypeSearchAd)
	}
	return nil
}

func (r PostRef) String() string { return string(r.Type) + ":" + r.ID }

type CompensationType string

const (
	CompensationFixed      CompensationType = "fixed"
	CompensationPercentage CompensationType = "percentage"
)

type Compensation struct {
	Type       CompensationType `gorm:"column:compensation_type;size:16" json:"type"`
	Amount     *float64         `gorm:"column:compensation_amount" json:"amount,omitempty"`
	Percentage *float64         `gorm:"column:compensation_percentage" json:"percentage,omitempty"`
}

func (c Compensation) Validate() error {
	switch c.Type {
	case CompensationFixed:
		if c.Amount == nil || *c.Amount <= 0 {
			return validationError("fixed compensation requires a positive amount")
		}
		if c.Percentage != nil {
			return validationError("fixed compensation must not carry a percentage")
		}
	case CompensationPercentage:
		if c.Percentage == nil || *c.Percentage <= 0 || *c.Percentage > 100 {
			return validationError("percentage compensation must be in (0, 100]")
		}
		if c.Amount != nil {
			return validationError("percentage compensation must not carry an amount")
		}
	default:
		return validationError("compensation type must be %q or %q", CompensationFixed, CompensationPercentage)
	}
	return nil
}

// Signatures holds each party's signature. A signature counts only while its
// version and hash match the current contract.
type Signatures struct {
	OwnerVersion         int        `gorm:"column:owner_signed_version;not null;default:0"`
	OwnerHash            string     `gorm:"column:owner_signed_hash;size:64"`
	OwnerSignedAt        *time.Time `gorm:"column:owner_signed_at"`
	CollaboratorVersion  int        `gorm:"column:collaborator_signed_version;not null;default:0"`
	CollaboratorHash     string     `gorm:"column:collaborator_signed_hash;size:64"`
	CollaboratorSignedAt *time.Time `gorm:"column:collaborator_signed_at"`
}

type Collaboration struct {
	ID                  string       `gorm:"column:id;primaryKey;size:36"`
	Post                PostRef      `gorm:"embedded"`
	OwnerID             int64        `gorm:"column:owner_id;not null;index"`
	CollaboratorID      int64        `gorm:"column:collaborator_id;not null;index"`
	Status              Status       `gorm:"column:status;size:16;not null;index"`
	Compensation        Compensation `gorm:"embedded"`
	ProposedCommission  float64      `gorm:"column:proposed_commission;not null;default:0"`
	ProposalMessage     string       `gorm:"column:proposal_message;type:text"`
	CurrentProgressStep string       `gorm:"column:current_progress_step;size:64"`
	ContractText        string       `gorm:"column:contract_text;type:text"`
	ContractVersion     int          `gorm:"column:contract_version;not null"`
	ContractHash        string       `gorm:"column:contract_hash;size:64"`
	Signatures          Signatures   `gorm:"embedded"`
	ActivatedAt         *time.Time   `gorm:"column:activated_at"`
	ClosedAt            *time.Time   `gorm:"column:closed_at"`
	CreatedAt           time.Time    `gorm:"column:created_at"`
	UpdatedAt           time.Time    `gorm:"column:updated_at"`

	Steps []ProgressStep `gorm:"-"`
}

func (Collaboration) TableName() string { return "collaborations" }

// RoleOf resolves userID to a role; ok is false for non-participants.
func (c *Collaboration) RoleOf(userID int64) (Role, bool) {
	switch userID {
	case c.OwnerID:
		return RoleOwner, true
	case c.CollaboratorID:
		return RoleCollaborator, true
	}
	return "", false
}

// Counterpart returns the participant who is not role.
func (c *Collaboration) Counterpart(role Role) int64 {
	if role == RoleOwner {
		return c.CollaboratorID
	}
	return c.OwnerID
}

func (c *Collaboration) SignedBy(role Role) bool {
	s := c.Signatures
	if role == RoleOwner {
		return s.OwnerVersion == c.ContractVersion && s.OwnerHash == c.ContractHash
	}
	return s.CollaboratorVersion == c.ContractVersion && s.CollaboratorHash == c.ContractHash
}

// FullySigned reports both signatures at the current contract version.
func (c *Collaboration) FullySigned() bool {
	return c.SignedBy(RoleOwner) && c.SignedBy(RoleCollaborator)
}

// AwaitingResignature is true when the contract changed after activation.
func (c *Collaboration) AwaitingResignature() bool {
	return c.Status == StatusActive && !c.FullySigned()
}

func (c *Collaboration) Step(key string) *ProgressStep {
	for i := range c.Steps {
		if c.Steps[i].StepKey == key {
			return &c.Steps[i]
		}
	}
	return nil
}

type ProgressStep struct {
	CollaborationID       string     `gorm:"column:collaboration_id;primaryKey;size:36"`
	StepKey               string     `gorm:"column:step_key;primaryKey;size:64"`
	Position              int        `gorm:"column:position;not null"`
	OwnerValidated        bool       `gorm:"column:owner_validated;not null"`
	CollaboratorValidated bool       `gorm:"column:collaborator_validated;not null"`
	Completed             bool       `gorm:"column:completed;not null"`
	ValidatedAt           *time.Time `gorm:"column:validated_at"`
	CreatedAt             time.Time  `gorm:"column:created_at"`

	Notes []StepNote `gorm:"-"`
}

func (ProgressStep) TableName() string { return "collaboration_progress_steps" }

func (s *ProgressStep) ValidatedBy(role Role) bool {
	if role == RoleOwner {
		return s.OwnerValidated
	}
	return s.CollaboratorValidated
}

type StepNote struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CollaborationID string    `gorm:"column:collaboration_id;size:36;not null;index:idx_step_notes_step,priority:1"`
	StepKey         string    `gorm:"column:step_key;size:64;not null;index:idx_step_notes_step,priority:2"`
	AuthorID        int64     `gorm:"column:author_id;not null"`
	Content         string    `gorm:"column:content;type:text;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (StepNote) TableName() string { return "collaboration_step_notes" }

type ActivityType string

const (
	ActivityNote         ActivityType = "note"
	ActivityStatusUpdate ActivityType = "status_update"
)

// Activity is an append-only log entry. ID order is insertion order.
type Activity struct {
	ID              int64        `gorm:"column:id;primaryKey;autoIncrement"`
	CollaborationID string       `gorm:"column:collaboration_id;size:36;not null;index"`
	Type            ActivityType `gorm:"column:type;size:16;not null"`
	Content         string       `gorm:"column:content;type:text;not null"`
	CreatedBy       int64        `gorm:"column:created_by;not null"`
	CreatedAt       time.Time    `gorm:"column:created_at"`
}

func (Activity) TableName() string { return "collaboration_activities" }

// Post is what PostLookup resolves a reference to.
type Post struct {
	Ref     PostRef
	OwnerID int64
	Title   string
}

// ContractHash is the hex blake2b-256 digest of the contract text.
func ContractHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
