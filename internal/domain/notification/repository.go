package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("notification not found")

type Repository interface {
	// Append persists n using tx when non-nil. Appending an id that already
	// exists is a no-op.
	Append(ctx context.Context, tx *gorm.DB, n *Notification) error
	GetByID(ctx context.Context, recipientID int64, id string) (*Notification, error)
	// List returns up to limit events older than beforeSeq (0 = newest), newest first.
	List(ctx context.Context, recipientID int64, beforeSeq int64, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	MarkRead(ctx context.Context, recipientID int64, id string, at time.Time) (changed bool, err error)
	MarkAllRead(ctx context.Context, recipientID int64, at time.Time) (int64, error)
	Delete(ctx context.Context, recipientID int64, id string) (*Notification, error)

	// PendingPush returns events not yet handed to the broker, oldest first.
	PendingPush(ctx context.Context, limit int) ([]Notification, error)
	MarkPushed(ctx context.Context, seqs []int64, at time.Time) error
	// PendingDigest returns unread, un-emailed events matching f, oldest first.
	PendingDigest(ctx context.Context, f DigestFilter) ([]Notification, error)
	MarkEmailed(ctx context.Context, seqs []int64, at time.Time) error
	// RecordDigestFailure bumps the attempt count of events whose digest failed.
	RecordDigestFailure(ctx context.Context, seqs []int64) error
	// PurgeDeleted hard-deletes events removed by their recipient before cutoff.
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)

	GetPreferences(ctx context.Context, userID int64) (*Preferences, error)
	SavePreferences(ctx context.Context, p *Preferences) error
}

// DigestFilter selects digest candidates. AfterSeq pages through one run;
// MaxAttempts (0 = unlimited) excludes events that failed too often.
type DigestFilter struct {
	Cutoff      time.Time
	AfterSeq    int64
	MaxAttempts int
	Limit       int
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Notification{}, &Preferences{}); err != nil {
		return fmt.Errorf("migrate notifications: %w", err)
	}
	return nil
}

func (r *repository) Append(ctx context.Context, tx *gorm.DB, n *Notification) error {
	if tx == nil {
		tx = r.db
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if !n.Type.Valid() {
		return fmt.Errorf("unknown notification type %q", n.Type)
	}

	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(n).Error
}

func (r *repository) GetByID(ctx context.Context, recipientID int64, id string) (*Notification, error) {
	var n Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND id = ?", recipientID, id).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repository) List(ctx context.Context, recipientID int64, beforeSeq int64, limit int) ([]Notification, error) {
	q := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}

	var out []Notification
	if err := q.Order("seq DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *repository) MarkRead(ctx context.Context, recipientID int64, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND id = ? AND is_read = ?", recipientID, id, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Already read, or not this recipient's.
	if _, err := r.GetByID(ctx, recipientID, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *repository) MarkAllRead(ctx context.Context, recipientID int64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *repository) Delete(ctx context.Context, recipientID int64, id string) (*Notification, error) {
	n, err := r.GetByID(ctx, recipientID, id)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&Notification{}, "seq = ?", n.Seq).Error; err != nil {
		return nil, err
	}
	return n, nil
}

func (r *repository) PendingPush(ctx context.Context, limit int) ([]Notification, error) {
	var out []Notification
	err := r.db.WithContext(ctx).
		Where("pushed_at IS NULL").
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repository) MarkPushed(ctx context.Context, seqs []int64, at time.Time) error {
	if len(seqs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Unscoped().
		Model(&Notification{}).
		Where("seq IN ?", seqs).
		Update("pushed_at", at).Error
}

func (r *repository) PendingDigest(ctx context.Context, f DigestFilter) ([]Notification, error) {
	q := r.db.WithContext(ctx).
		Where("is_read = ? AND emailed_at IS NULL AND created_at < ?", false, f.Cutoff)
	if f.AfterSeq > 0 {
		q = q.Where("seq > ?", f.AfterSeq)
	}
	if f.MaxAttempts > 0 {
		q = q.Where("digest_attempts < ?", f.MaxAttempts)
	}

	var out []Notification
	err := q.Order("seq ASC").Limit(f.Limit).Find(&out).Error
	return out, err
}

func (r *repository) MarkEmailed(ctx context.Context, seqs []int64, at time.Time) error {
	if len(seqs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("seq IN ?", seqs).
		Update("emailed_at", at).Error
}

func (r *repository) RecordDigestFailure(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("seq IN ?", seqs).
		Update("digest_attempts", gorm.Expr("digest_attempts + 1")).Error
}

func (r *repository) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Delete(&Notification{})
	return res.RowsAffected, res.Error
}

func (r *repository) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	var p Preferences
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) SavePreferences(ctx context.Context, p *Preferences) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"push_enabled", "email_digest_enabled", "updated_at"}),
		}).
		Create(p).Error
}
