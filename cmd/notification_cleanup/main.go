package main

import (
	"context"
	"log"

	"estatecollab/internal/config"
	"estatecollab/internal/database"
	"estatecollab/internal/domain/notification"
)

// Purges notifications that recipients deleted more than NOTIFICATION_PURGE_AFTER ago.
// Meant for cron when the API runs with several instances.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	cleanup := notification.NewCleanupService(notification.NewRepository(db))
	purged, err := cleanup.PurgeDeleted(context.Background(), cfg.NotificationPurgeAfter)
	if err != nil {
		log.Fatalf("notification cleanup failed: %v", err)
	}

	log.Printf("notification cleanup completed: purged=%d", purged)
}
