package collaboration

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estatecollab/internal/database"
)

// Repository is the Collaboration Store. All writes go through Create or Mutate.
type Repository interface {
	// Create inserts c and runs fn in the same transaction.
	Create(ctx context.Context, c *Collaboration, fn func(tx *Tx) error) error
	// Mutate runs fn in a transaction holding the row lock of collaboration id.
	// Calls for the same id are applied one at a time.
	Mutate(ctx context.Context, id string, fn func(tx *Tx) error) error
	GetByID(ctx context.Context, id string) (*Collaboration, error)
	ListForUser(ctx context.Context, userID int64, status Status) ([]Collaboration, error)
	ListActivities(ctx context.Context, id string, limit int) ([]Activity, error)
}

type repository struct {
	db    *gorm.DB
	now   func() time.Time
	locks [64]sync.Mutex
}

func NewRepository(db *gorm.DB, now func() time.Time) Repository {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &repository{db: db, now: now}
}

// Migrate creates the collaboration tables and the partial unique index that
// allows one blocking collaboration per post.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Collaboration{}, &ProgressStep{}, &StepNote{}, &Activity{}); err != nil {
		return fmt.Errorf("migrate collaborations: %w", err)
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_collaborations_blocking_post
		ON collaborations (post_type, post_id)
		WHERE status IN ('pending', 'accepted', 'active')`).Error
}

func (r *repository) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.locks[h.Sum32()%uint32(len(r.locks))]
}

func (r *repository) Create(ctx context.Context, c *Collaboration, fn func(tx *Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var open int64
		if err := db.Model(&Collaboration{}).
			Where("post_type = ? AND post_id = ? AND status IN ?", c.Post.Type, c.Post.ID, blockingStatuses).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrDuplicateProposal
		}

		now := r.now()
		c.CreatedAt, c.UpdatedAt = now, now
		if err := db.Create(c).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateProposal
			}
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(&Tx{db: db, c: c, now: now})
	})
}

func (r *repository) Mutate(ctx context.Context, id string, fn func(tx *Tx) error) error {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var c Collaboration
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if c.Steps, err = loadSteps(db, id); err != nil {
			return err
		}
		return fn(&Tx{db: db, c: &c, now: r.now()})
	})
}

func (r *repository) GetByID(ctx context.Context, id string) (*Collaboration, error) {
	db := r.db.WithContext(ctx)

	var c Collaboration
	err := db.Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Steps, err = loadSteps(db, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) ListForUser(ctx context.Context, userID int64, status Status) ([]Collaboration, error) {
	q := r.db.WithContext(ctx).
		Where("owner_id = ? OR collaborator_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var out []Collaboration
	if err := q.Order("updated_at DESC").Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListActivities(ctx context.Context, id string, limit int) ([]Activity, error) {
	q := r.db.WithContext(ctx).
		Where("collaboration_id = ?", id).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []Activity
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func loadSteps(db *gorm.DB, id string) ([]ProgressStep, error) {
	var steps []ProgressStep
	if err := db.Where("collaboration_id = ?", id).Order("position").Find(&steps).Error; err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return steps, nil
	}

	var notes []StepNote
	if err := db.Where("collaboration_id = ?", id).Order("id").Find(&notes).Error; err != nil {
		return nil, err
	}
	byKey := make(map[string][]StepNote, len(steps))
	for _, n := range notes {
		byKey[n.StepKey] = append(byKey[n.StepKey], n)
	}
	for i := range steps {
		steps[i].Notes = byKey[steps[i].StepKey]
	}
	return steps, nil
}

// Tx exposes field-scoped writes against one locked collaboration. Every
// method updates the database and the in-memory copy together.
type Tx struct {
	db  *gorm.DB
	c   *Collaboration
	now time.Time
}

func (t *Tx) DB() *gorm.DB                  { return t.db }
func (t *Tx) Collaboration() *Collaboration { return t.c }
func (t *Tx) Now() time.Time                { return t.now }

func (t *Tx) update(fields map[string]any) error {
	fields["updated_at"] = t.now
	if err := t.db.Model(&Collaboration{}).Where("id = ?", t.c.ID).Updates(fields).Error; err != nil {
		return err
	}
	t.c.UpdatedAt = t.now
	return nil
}

// SetStatus moves the collaboration along one edge. The update is conditioned
// on the current status so a stale read can never skip a state.
func (t *Tx) SetStatus(to Status) error {
	from := t.c.Status
	if err := checkTransition(from, to); err != nil {
		return err
	}

	fields := map[string]any{"status": to, "updated_at": t.now}
	switch {
	case to == StatusActive:
		fields["activated_at"] = t.now
	case to.Terminal():
		fields["closed_at"] = t.now
	}

	res := t.db.Model(&Collaboration{}).
		Where("id = ? AND status = ?", t.c.ID, from).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return newError(CodeInvalidTransition, "collaboration changed concurrently, reload and retry")
	}

	t.c.Status = to
	t.c.UpdatedAt = t.now
	if to == StatusActive {
		t.c.ActivatedAt = &t.now
	} else if to.Terminal() {
		t.c.ClosedAt = &t.now
	}
	return nil
}

func (t *Tx) InitSteps(keys []string) error {
	steps := make([]ProgressStep, len(keys))
	for i, k := range keys {
		steps[i] = ProgressStep{
			CollaborationID: t.c.ID,
			StepKey:         k,
			Position:        i,
			CreatedAt:       t.now,
		}
	}
	if err := t.db.Create(&steps).Error; err != nil {
		return fmt.Errorf("init progress steps: %w", err)
	}
	if err := t.update(map[string]any{"current_progress_step": keys[0]}); err != nil {
		return err
	}
	t.c.Steps = steps
	t.c.CurrentProgressStep = keys[0]
	return nil
}

// ValidateStep sets role's flag on key. changed is false when it was already set.
func (t *Tx) ValidateStep(key string, role Role) (changed bool, err error) {
	column := "collaborator_validated"
	if role == RoleOwner {
		column = "owner_validated"
	}

	res := t.db.Model(&ProgressStep{}).
		Where("collaboration_id = ? AND step_key = ? AND "+column+" = ?", t.c.ID, key, false).
		Update(column, true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if s := t.c.Step(key); s != nil {
		if role == RoleOwner {
			s.OwnerValidated = true
		} else {
			s.CollaboratorValidated = true
		}
	}
	return true, nil
}

// CompleteStep marks key completed once both flags are set. completed is false
// when a flag is still missing or the step was already completed.
func (t *Tx) CompleteStep(key string) (completed bool, err error) {
	res := t.db.Model(&ProgressStep{}).
		Where("collaboration_id = ? AND step_key = ? AND owner_validated = ? AND collaborator_validated = ? AND completed = ?",
			t.c.ID, key, true, true, false).
		Updates(map[string]any{"completed": true, "validated_at": t.now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if s := t.c.Step(key); s != nil {
		s.Completed = true
		s.ValidatedAt = &t.now
	}
	return true, nil
}

func (t *Tx) SetCurrentStep(key string) error {
	if key == t.c.CurrentProgressStep {
		return nil
	}
	if err := t.update(map[string]any{"current_progress_step": key}); err != nil {
		return err
	}
	t.c.CurrentProgressStep = key
	return nil
}

// ReplaceContract bumps the version and clears both signatures.
func (t *Tx) ReplaceContract(text string) error {
	version := t.c.ContractVersion + 1
	hash := ContractHash(text)
	err := t.update(map[string]any{
		"contract_text":               text,
		"contract_version":            version,
		"contract_hash":               hash,
		"owner_signed_version":        0,
		"owner_signed_hash":           "",
		"owner_signed_at":             nil,
		"collaborator_signed_version": 0,
		"collaborator_signed_hash":    "",
		"collaborator_signed_at":      nil,
	})
	if err != nil {
		return err
	}
	t.c.ContractText = text
	t.c.ContractVersion = version
	t.c.ContractHash = hash
	t.c.Signatures = Signatures{}
	return nil
}

// RecordSignature overwrites role's signature with the current version.
func (t *Tx) RecordSignature(role Role) error {
	prefix := "collaborator"
	if role == RoleOwner {
		prefix = "owner"
	}
	err := t.update(map[string]any{
		prefix + "_signed_version": t.c.ContractVersion,
		prefix + "_signed_hash":    t.c.ContractHash,
		prefix + "_signed_at":      t.now,
	})
	if err != nil {
		return err
	}

	at := t.now
	if role == RoleOwner {
		t.c.Signatures.OwnerVersion = t.c.ContractVersion
		t.c.Signatures.OwnerHash = t.c.ContractHash
		t.c.Signatures.OwnerSignedAt = &at
	} else {
		t.c.Signatures.CollaboratorVersion = t.c.ContractVersion
		t.c.Signatures.CollaboratorHash = t.c.ContractHash
		t.c.Signatures.CollaboratorSignedAt = &at
	}
	return nil
}

func (t *Tx) AppendActivity(typ ActivityType, content string, by int64) error {
	a := Activity{
		CollaborationID: t.c.ID,
		Type:            typ,
		Content:         content,
		CreatedBy:       by,
		CreatedAt:       t.now,
	}
	return t.db.Create(&a).Error
}

func (t *Tx) AppendStepNote(key, content string, by int64) error {
	n := StepNote{
		CollaborationID: t.c.ID,
		StepKey:         key,
		AuthorID:        by,
		Content:         content,
		CreatedAt:       t.now,
	}
	if err := t.db.Create(&n).Error; err != nil {
		return err
	}
	if s := t.c.Step(key); s != nil {
		s.Notes = append(s.Notes, n)
	}
	return nil
}
