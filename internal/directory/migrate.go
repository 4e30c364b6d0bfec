package directory

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates the read-model tables for local development and tests. In
// production they belong to the identity and listings services.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&userModel{}, &propertyModel{}, &searchAdModel{}); err != nil {
		return fmt.Errorf("migrate directory: %w", err)
	}
	return nil
}
