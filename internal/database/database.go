package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Connect opens PostgreSQL for postgres:// DSNs and the pure-Go SQLite driver otherwise.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	if IsPostgres(dsn) {
		log.Println("Connecting to PostgreSQL...")
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	log.Println("Using SQLite for local development:", dsn)

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer; one pooled connection keeps transactions from tripping SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// IsUniqueViolation recognises duplicate-key errors from PostgreSQL and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate key")
}
