package store

import (
	"embed"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

//go:embed migrations/*/*.sql
var embedMigrations embed.FS

// Config describes how to reach the database.
type Config struct {
	Driver string // postgres or sqlite
	DSN    string // full connection string for postgres; file path (or empty for a fresh private in-memory database) for sqlite
	Schema string // postgres search_path, optional
}

// Connect opens the database, ensures its schema exists, applies
// migrations, and returns a ready *gorm.DB.
func Connect(cfg Config) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres", "":
		return connectPostgres(cfg)
	case "sqlite":
		return connectSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func connectPostgres(cfg Config) (*gorm.DB, error) {
	if err := ensureSchema(cfg); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := migratePostgres(cfg); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: tablePrefix(cfg.Schema)},
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func connectSQLite(cfg Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	if cfg.DSN != "" {
		dsn = fmt.Sprintf("file:%s?cache=shared", cfg.DSN)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Address{}, &AddressBalance{}, &Asset{}, &Transaction{}, &PendingWithdrawal{}, &FailedWebhook{}); err != nil {
		return nil, err
	}
	return db, nil
}

func tablePrefix(schemaName string) string {
	if schemaName == "" {
		return ""
	}
	return schemaName + "."
}

func ensureSchema(cfg Config) error {
	if cfg.Schema == "" {
		return nil
	}

	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists int
	query := "SELECT 1 FROM information_schema.schemata WHERE schema_name=$1"
	if err := db.Get(&exists, query, cfg.Schema); err == nil {
		log.Printf("schema already exists: %s", cfg.Schema)
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", cfg.Schema)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	log.Printf("schema created: %s", cfg.Schema)
	return nil
}

func migratePostgres(cfg Config) error {
	db, err := goose.OpenDBWithDriver("postgres", cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Schema != "" {
		if _, err := db.Exec(fmt.Sprintf("SET search_path TO %s", cfg.Schema)); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "migrations/postgres"); err != nil {
		return err
	}
	return nil
}
