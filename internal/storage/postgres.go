package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/deusflow/topicnews/internal/article"
)

// PostgresArchive keeps every article ever committed to a section, keyed by
// section and dedup key, so history survives past the in-memory window.
type PostgresArchive struct {
	db *sql.DB
}

// ArchivedArticle is one row of the archive
type ArchivedArticle struct {
	Section     string
	LinkKey     string
	Title       string
	Link        string
	Source      string
	Published   time.Time
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// NewPostgresArchive connects and initializes the schema
func NewPostgresArchive(ctx context.Context, connectionString string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	archive := &PostgresArchive{db: db}
	if err := archive.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("postgres archive connected")
	return archive, nil
}

func (pa *PostgresArchive) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id SERIAL PRIMARY KEY,
		section VARCHAR(64) NOT NULL,
		link_key VARCHAR(64) NOT NULL,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		description TEXT,
		source VARCHAR(255),
		image TEXT,
		published_at TIMESTAMPTZ NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (section, link_key)
	);

	CREATE INDEX IF NOT EXISTS idx_articles_section_published ON articles(section, published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_last_seen ON articles(last_seen_at);
	`

	if _, err := pa.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// LinkKey hashes an article's dedup key into a fixed-width column value.
func LinkKey(a article.Article) string {
	sum := sha256.Sum256([]byte(a.Key()))
	return hex.EncodeToString(sum[:])
}

const upsertArticle = `
	INSERT INTO articles (section, link_key, title, link, description, source, image, published_at, first_seen_at, last_seen_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	ON CONFLICT (section, link_key) DO UPDATE SET
		title = EXCLUDED.title,
		link = EXCLUDED.link,
		description = EXCLUDED.description,
		source = EXCLUDED.source,
		image = EXCLUDED.image,
		published_at = EXCLUDED.published_at,
		last_seen_at = NOW()
`

// Archive upserts one section's articles in a single transaction.
func (pa *PostgresArchive) Archive(ctx context.Context, section string, articles []article.Article) error {
	if len(articles) == 0 {
		return nil
	}

	tx, err := pa.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertArticle)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range articles {
		if a.Key() == "" {
			continue
		}
		_, err := stmt.ExecContext(ctx, section, LinkKey(a), a.Title, a.Link, a.Description, a.Source, a.Image, a.Published.UTC())
		if err != nil {
			return fmt.Errorf("failed to archive %q: %w", a.Link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// Cleanup removes rows not seen for longer than retention
func (pa *PostgresArchive) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := pa.db.ExecContext(ctx, `DELETE FROM articles WHERE last_seen_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		slog.Info("archive cleanup", "deleted", rows)
	}
	return rows, nil
}

// GetStats returns row counts, overall and per section
func (pa *PostgresArchive) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	var total int
	if err := pa.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&total); err != nil {
		return nil, err
	}
	stats["total_items"] = total

	rows, err := pa.db.QueryContext(ctx, `SELECT section, COUNT(*) FROM articles GROUP BY section`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var section string
		var count int
		if err := rows.Scan(&section, &count); err != nil {
			return nil, err
		}
		stats["section_"+section] = count
	}
	return stats, rows.Err()
}

// Recent returns the newest archived articles, optionally for one section
func (pa *PostgresArchive) Recent(ctx context.Context, section string, limit int) ([]ArchivedArticle, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT section, link_key, title, link, COALESCE(source, ''), published_at, first_seen_at, last_seen_at
		FROM articles
		WHERE ($1 = '' OR section = $1)
		ORDER BY published_at DESC
		LIMIT $2
	`

	rows, err := pa.db.QueryContext(ctx, query, section, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ArchivedArticle
	for rows.Next() {
		var item ArchivedArticle
		err := rows.Scan(&item.Section, &item.LinkKey, &item.Title, &item.Link, &item.Source,
			&item.Published, &item.FirstSeenAt, &item.LastSeenAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Close closes the database connection
func (pa *PostgresArchive) Close() error {
	if pa.db != nil {
		return pa.db.Close()
	}
	return nil
}
