// Package sqlite provides a SQLite-backed PreferenceStore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ineyio/creditsync"
)

const suppressKey = "suppress_spend_confirmations"

// Store keeps preferences in a local SQLite database, one row per profile and name.
type Store struct {
	db      *sql.DB
	dbPath  string
	profile string
}

var _ creditsync.PreferenceStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithProfile scopes preferences to one signed-in user (default "default").
func WithProfile(profile string) Option {
	return func(s *Store) { s.profile = profile }
}

// Open opens or creates the database file at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("preference/sqlite: database path is required")
	}
	dbPath = filepath.Clean(dbPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("preference/sqlite: create data dir: %w", err)
	}

	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(5000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("preference/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:      db,
		dbPath:  dbPath,
		profile: "default",
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS preferences (
		profile TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (profile, name)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("preference/sqlite: init schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) SuppressConfirmations(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE profile = ? AND name = ?`,
		s.profile, suppressKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("preference/sqlite: read: %w", err)
	}

	suppress, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("preference/sqlite: stored value %q: %w", value, err)
	}
	return suppress, nil
}

func (s *Store) SetSuppressConfirmations(ctx context.Context, suppress bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (profile, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, s.profile, suppressKey, strconv.FormatBool(suppress), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("preference/sqlite: write: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
