// Package app wires configuration, storage, services and HTTP routes into one
// runnable server.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"estatecollab/internal/config"
	"estatecollab/internal/database"
	"estatecollab/internal/directory"
	"estatecollab/internal/domain/collaboration"
	"estatecollab/internal/domain/notification"
	"estatecollab/internal/middleware"
	jwtsvc "estatecollab/internal/pkg/jwt"
)

// App holds the wired server. Router serves HTTP; Start runs the background
// workers.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Tokens *jwtsvc.Service

	Users          *directory.UserRepository
	Posts          *directory.PostRepository
	Collaborations *collaboration.Service
	Notifications  *notification.Service
	Hub            *notification.Hub

	relay   *notification.Relay
	redis   *redis.Client
	fanout  *notification.RedisBroker
	digest  *notification.DigestJob
	cleanup *notification.CleanupService
}

// New connects to the database (and Redis when configured), migrates the
// schema and builds the router.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return NewWithDB(ctx, cfg, db)
}

// NewWithDB is New over an existing connection.
func NewWithDB(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	if err := migrate(db); err != nil {
		return nil, err
	}

	steps, err := config.LoadProgressSteps(cfg.ProgressStepsFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Tokens: jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL),
		Users:  directory.NewUserRepository(db),
		Posts:  directory.NewPostRepository(db),
		Hub:    notification.NewHub(),
	}

	var broker notification.Broker = a.Hub
	if cfg.RedisURL != "" {
		client, err := notification.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.fanout = notification.NewRedisBroker(client, a.Hub)
		broker = a.fanout
	}

	notifRepo := notification.NewRepository(db)
	outbox := notification.NewOutbox(notifRepo)
	a.Notifications = notification.NewService(notifRepo, broker)
	a.relay = notification.NewRelay(notifRepo, outbox, broker, notification.RelayConfig{
		PollInterval: cfg.RelayPollInterval,
		BatchSize:    cfg.RelayBatchSize,
	})
	a.cleanup = notification.NewCleanupService(notifRepo)
	if cfg.ResendAPIKey != "" {
		a.digest = notification.NewDigestJob(notifRepo, a.Users,
			notification.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom),
			notification.DigestConfig{Delay: cfg.DigestDelay, BaseURL: cfg.PublicBaseURL})
	}

	a.Collaborations = collaboration.NewService(
		collaboration.NewRepository(db, nil),
		a.Posts,
		collaboration.NewEmitter(outbox),
		steps,
		collaboration.Options{AllowActiveContractEdits: cfg.AllowActiveContractEdits},
	)

	a.Router = a.routes()
	return a, nil
}

func migrate(db *gorm.DB) error {
	if err := directory.Migrate(db); err != nil {
		return fmt.Errorf("migrate directory: %w", err)
	}
	if err := collaboration.Migrate(db); err != nil {
		return fmt.Errorf("migrate collaborations: %w", err)
	}
	if err := notification.Migrate(db); err != nil {
		return fmt.Errorf("migrate notifications: %w", err)
	}
	return nil
}

func (a *App) routes() *gin.Engine {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorLogger(!a.Config.IsProduction()))
	r.Use(middleware.CORS(a.Config.CORSAllowedOrigins))

	r.GET("/health", a.health)

	v1 := r.Group("/api/v1")
	notification.RegisterWebSocket(v1, notification.NewWSHandler(a.Hub, a.Tokens, a.Notifications, a.Config.CORSAllowedOrigins))

	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(a.Tokens))
	{
		collaboration.RegisterRoutes(protected, collaboration.NewHandler(a.Collaborations))
		notification.RegisterRoutes(protected, notification.NewHandler(a.Notifications))
	}

	return r
}

func (a *App) health(c *gin.Context) {
	sqlDB, err := a.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the outbox relay, the Redis subscription, the digest mailer and
// notification cleanup until ctx is done.
func (a *App) Start(ctx context.Context) {
	go a.relay.Run(ctx)

	if a.fanout != nil {
		go a.fanout.Subscribe(ctx)
	}

	if a.digest != nil {
		a.digest.Schedule(ctx, a.Config.DigestInterval)
	} else {
		log.Println("RESEND_API_KEY not set, unread digest disabled")
	}

	a.cleanup.ScheduleCleanup(ctx, notification.CleanupConfig{
		PurgeAfter:             a.Config.NotificationPurgeAfter,
		CleanupInterval:        a.Config.CleanupInterval,
		EnableAutomaticCleanup: true,
	})
}

// Close releases the Redis client and the database pool.
func (a *App) Close() error {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("redis close: %v", err)
		}
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
