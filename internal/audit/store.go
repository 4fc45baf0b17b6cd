// Package audit provides PostgreSQL-backed storage for moderation events.
// Each event records which message was flagged, the keyword that matched,
// and whether the deletion and notice succeeded.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/whisper/spamguard/internal/moderation"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store manages moderation events in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	return db, nil
}

// Migrate applies all pending schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("audit: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("audit: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("audit: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("audit: migrate up: %w", err)
	}
	return nil
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a moderation event. It implements moderation.Auditor.
func (s *Store) Record(ctx context.Context, ev moderation.Event) error {
	if ev.ID == "" {
		return errors.New("audit: event without id")
	}

	const query = `
		INSERT INTO moderation_events
			(id, chat_id, message_id, sender_id, term, category, deleted, notified, excerpt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, to_timestamp($10))`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		ev.ChatID,
		ev.MessageID,
		ev.SenderID,
		ev.Term,
		ev.Category,
		ev.Deleted,
		ev.Notified,
		ev.Excerpt,
		ev.Ts,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of flagged messages in a chat within the
// given time window.
func (s *Store) CountRecent(ctx context.Context, chatID int64, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_events
		WHERE chat_id = $1
		  AND created_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, chatID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}

// TermCount is how often a keyword matched.
type TermCount struct {
	Term  string
	Count int
}

// TopTerms returns the most frequently matched keywords in a chat within the
// window, most frequent first.
func (s *Store) TopTerms(ctx context.Context, chatID int64, window time.Duration, limit int) ([]TermCount, error) {
	const query = `
		SELECT term, COUNT(*) AS n
		FROM moderation_events
		WHERE chat_id = $1
		  AND created_at >= NOW() - make_interval(secs => $2)
		GROUP BY term
		ORDER BY n DESC, term
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, chatID, window.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: top terms: %w", err)
	}
	defer rows.Close()

	var out []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("audit: top terms scan: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: top terms: %w", err)
	}
	return out, nil
}
