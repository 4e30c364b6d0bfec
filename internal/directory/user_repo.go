package directory

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estatecollab/internal/domain/notification"
)

// UserRepository reads the identity service's users table. Only the
// contact fields needed for digests are mapped.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

type userModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	Email     string    `gorm:"column:email;size:255;uniqueIndex"`
	Name      string    `gorm:"column:name;size:255"`
	Role      string    `gorm:"column:role;size:32"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type User struct {
	ID    int64
	Email string
	Name  string
	Role  string
}

// Recipients implements notification.RecipientDirectory.
func (r *UserRepository) Recipients(ctx context.Context, ids []int64) (map[int64]notification.Recipient, error) {
	out := make(map[int64]notification.Recipient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []userModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.ID] = notification.Recipient{ID: m.ID, Email: m.Email, Name: m.Name}
	}
	return out, nil
}

// Upsert creates or refreshes a user. Used by the demo seed.
func (r *UserRepository) Upsert(ctx context.Context, u *User) error {
	m := userModel{
		ID:    u.ID,
		Email: strings.TrimSpace(strings.ToLower(u.Email)),
		Name:  strings.TrimSpace(u.Name),
		Role:  u.Role,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "name", "role", "updated_at"}),
		}).
		Create(&m).Error
	if err != nil {
		return err
	}
	u.ID = m.ID
	return nil
}
