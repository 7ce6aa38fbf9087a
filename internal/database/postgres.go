package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

type PgTripChatRepository struct {
	conn *sql.DB
}

func NewPgTripChatRepository(dsn string) (*PgTripChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgTripChatRepository{conn: db}, nil
}

// Migrate applies pending schema migrations from sourceURL, e.g.
// "file://db/migrations".
func (db *PgTripChatRepository) Migrate(sourceURL string) error {
	driver, err := migratepg.WithInstance(db.conn, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

func (db *PgTripChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgTripChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
