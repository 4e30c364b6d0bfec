package directory

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estatecollab/internal/domain/collaboration"
)

// PostRepository resolves collaboration post references against the
// listings tables. It implements collaboration.PostLookup.
type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

type propertyModel struct {
	ID        string         `gorm:"column:id;primaryKey;size:64"`
	OwnerID   int64          `gorm:"column:owner_id;not null;index"`
	Title     string         `gorm:"column:title;size:255"`
	City      string         `gorm:"column:city;size:128"`
	Price     float64        `gorm:"column:price"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (propertyModel) TableName() string { return "properties" }

type searchAdModel struct {
	ID        string         `gorm:"column:id;primaryKey;size:64"`
	OwnerID   int64          `gorm:"column:owner_id;not null;index"`
	Title     string         `gorm:"column:title;size:255"`
	City      string         `gorm:"column:city;size:128"`
	MaxBudget float64        `gorm:"column:max_budget"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (searchAdModel) TableName() string { return "search_ads" }

// Listing is a property or search ad as written by the demo seed.
type Listing struct {
	Ref     collaboration.PostRef
	OwnerID int64
	Title   string
	City    string
	Amount  float64
}

// Resolve returns the owner and title of ref. Deleted posts are not found.
func (r *PostRepository) Resolve(ctx context.Context, ref collaboration.PostRef) (*collaboration.Post, error) {
	db := r.db.WithContext(ctx)

	var (
		ownerID int64
		title   string
		err     error
	)
	switch ref.Type {
	case collaboration.PostTypeProperty:
		var m propertyModel
		err = db.Where("id = ?", ref.ID).First(&m).Error
		ownerID, title = m.OwnerID, m.Title
	case collaboration.PostTypeSearchAd:
		var m searchAdModel
		err = db.Where("id = ?", ref.ID).First(&m).Error
		ownerID, title = m.OwnerID, m.Title
	default:
		return nil, collaboration.ErrPostNotFound
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, collaboration.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}

	return &collaboration.Post{Ref: ref, OwnerID: ownerID, Title: title}, nil
}

// Upsert writes a listing. Used by the demo seed.
func (r *PostRepository) Upsert(ctx context.Context, l Listing) error {
	db := r.db.WithContext(ctx)
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}

	if id, ok := l.Ref.Property(); ok {
		return db.Clauses(onConflict).Create(&propertyModel{
			ID: id, OwnerID: l.OwnerID, Title: l.Title, City: l.City, Price: l.Amount,
		}).Error
	}
	if id, ok := l.Ref.SearchAd(); ok {
		return db.Clauses(onConflict).Create(&searchAdModel{
			ID: id, OwnerID: l.OwnerID, Title: l.Title, City: l.City, MaxBudget: l.Amount,
		}).Error
	}
	return l.Ref.Validate()
}
