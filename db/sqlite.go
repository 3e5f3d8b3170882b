package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database stores credentials by slot in SQLite
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
}

// NewDatabase creates a new SQLite database connection
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:  db,
		log: log,
	}

	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// initTables creates the necessary tables if they don't exist
func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS credentials (
		slot TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`

	_, err := d.db.Exec(query)
	return err
}

// GetToken returns the token in a slot, or "" if the slot is empty
func (d *Database) GetToken(slot string) (string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var token string
	err := d.db.QueryRow("SELECT token FROM credentials WHERE slot = ?", slot).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}

	return token, nil
}

// SaveToken writes a token into a slot, replacing what was there
func (d *Database) SaveToken(slot, token string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	INSERT OR REPLACE INTO credentials (slot, token, updated_at)
	VALUES (?, ?, ?)
	`

	if _, err := d.db.Exec(query, slot, token, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	d.log.WithField("slot", slot).Debug("Token saved")
	return nil
}

// DeleteToken clears a slot. Clearing an empty slot is not an error.
func (d *Database) DeleteToken(slot string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, err := d.db.Exec("DELETE FROM credentials WHERE slot = ?", slot); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}
