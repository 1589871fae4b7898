package credstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLite keeps one token per profile so a machine can hold sessions against
// several backends.
type SQLite struct {
	db      *sql.DB
	profile string
}

var _ Store = &SQLite{}

func NewSQLite(dsn string, profile string) (*SQLite, error) {
	if dsn == "" {
		return nil, errors.New("sqlite credential store: empty dsn")
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite credential store: open")
	}
	s := &SQLite{db: db, profile: profile}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			profile TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite credential store: migrate")
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("sqlite credential store: db is nil")
	}
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM credentials WHERE profile = ?`, s.profile).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", errors.Wrap(err, "sqlite credential store: load")
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (s *SQLite) Save(ctx context.Context, token string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite credential store: db is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("sqlite credential store: empty token")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (profile, token, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			token = excluded.token,
			updated_at_ms = excluded.updated_at_ms
	`, s.profile, token, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite credential store: save")
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite credential store: db is nil")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE profile = ?`, s.profile); err != nil {
		return errors.Wrap(err, "sqlite credential store: clear")
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
