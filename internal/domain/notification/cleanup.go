package notification

import (
	"context"
	"log"
	"time"
)

// CleanupService purges notifications their recipients deleted. Deletion is a
// soft delete first so in-flight pushes and digests never see a missing row.
type CleanupService struct {
	repo Repository
	now  func() time.Time
}

// NewCleanupService creates cleanup service
func NewCleanupService(repo Repository) *CleanupService {
	return &CleanupService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// CleanupConfig holds configuration for cleanup tasks
type CleanupConfig struct {
	PurgeAfter             time.Duration // hard-delete soft-deleted rows older than this (default: 30 days)
	CleanupInterval        time.Duration // how often to run cleanup (default: 24h)
	EnableAutomaticCleanup bool
}

// DefaultCleanupConfig returns default cleanup configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		PurgeAfter:             30 * 24 * time.Hour,
		CleanupInterval:        24 * time.Hour,
		EnableAutomaticCleanup: true,
	}
}

// PurgeDeleted removes soft-deleted notifications older than purgeAfter.
func (c *CleanupService) PurgeDeleted(ctx context.Context, purgeAfter time.Duration) (int64, error) {
	startTime := time.Now()

	purged, err := c.repo.PurgeDeleted(ctx, c.now().Add(-purgeAfter))
	if err != nil {
		log.Printf("Error purging deleted notifications: %v", err)
		return 0, err
	}

	log.Printf("Cleanup completed: purged %d deleted notifications in %v", purged, time.Since(startTime))
	return purged, nil
}

// ScheduleCleanup starts a background goroutine for periodic cleanup
func (c *CleanupService) ScheduleCleanup(ctx context.Context, config CleanupConfig) chan struct{} {
	if !config.EnableAutomaticCleanup {
		log.Println("Automatic cleanup is disabled")
		return nil
	}

	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := c.PurgeDeleted(ctx, config.PurgeAfter); err != nil {
					log.Printf("Scheduled cleanup error: %v", err)
				}
			case <-stopCh:
				log.Println("Scheduled cleanup stopped")
				return
			case <-ctx.Done():
				log.Println("Scheduled cleanup stopped (context Done)")
				return
			}
		}
	}()

	log.Printf("Scheduled cleanup started with interval %v", config.CleanupInterval)
	return stopCh
}
