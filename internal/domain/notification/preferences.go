package notification

import "time"

// Preferences controls the optional delivery channels of one user. The
// durable log and backlog are not affected by them.
type Preferences struct {
	UserID             int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	PushEnabled        bool      `gorm:"column:push_enabled;not null"`
	EmailDigestEnabled bool      `gorm:"column:email_digest_enabled;not null"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

// TableName specifies table name for GORM
func (Preferences) TableName() string {
	return "user_notification_preferences"
}

// DefaultPreferences applies to users who never saved any.
func DefaultPreferences(userID int64) *Preferences {
	return &Preferences{
		UserID:             userID,
		PushEnabled:        true,
		EmailDigestEnabled: true,
	}
}

// Apply merges a partial update.
func (p *Preferences) Apply(req UpdatePreferencesRequest) {
	if req.PushEnabled != nil {
		p.PushEnabled = *req.PushEnabled
	}
	if req.EmailDigestEnabled != nil {
		p.EmailDigestEnabled = *req.EmailDigestEnabled
	}
}
