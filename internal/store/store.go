// Package store is the persistence adapter for the pipeline. It keeps the
// three collections (raw_items, generated_articles, generated_images) in a
// SQLite database and is the only shared mutable state between pipeline
// stages. Image locking and article creation use SQLite transactions so the
// compare-and-set semantics hold under arbitrary worker concurrency.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Seci84/ITriggr/internal/core"
	"github.com/mattn/go-sqlite3"
)

// ErrClusterExists is returned by CreateArticle when an article for the
// same cluster key already exists. Callers treat it as a silent skip.
var ErrClusterExists = errors.New("article already exists for cluster key")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the SQLite-backed document store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "itriggr.db")
	// _txlock=immediate makes write transactions take the write lock at
	// BEGIN, so concurrent acquirers serialize instead of deadlocking.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	rawItemsTable := `
	CREATE TABLE IF NOT EXISTS raw_items (
		id TEXT PRIMARY KEY,
		source TEXT,
		source_name TEXT,
		title TEXT,
		url TEXT,
		published_at INTEGER,
		content_hint TEXT,
		fingerprint TEXT,
		created_at DATETIME
	);`

	articlesTable := `
	CREATE TABLE IF NOT EXISTS generated_articles (
		id TEXT PRIMARY KEY,
		cluster_key TEXT NOT NULL,
		title TEXT,
		summary TEXT,
		bullets TEXT,
		facts TEXT,
		talks TEXT,
		evidence_urls TEXT,
		source_refs TEXT,
		window_start INTEGER,
		window_end INTEGER,
		model_used TEXT,
		latency_ms INTEGER,
		created_at DATETIME,
		image_status TEXT NOT NULL DEFAULT '',
		image_error TEXT NOT NULL DEFAULT '',
		image_lock_at DATETIME,
		hero_image TEXT
	);`

	clusterIndex := `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_cluster_key
	ON generated_articles (cluster_key);`

	imagesTable := `
	CREATE TABLE IF NOT EXISTS generated_images (
		id TEXT PRIMARY KEY,
		article_id TEXT,
		kind TEXT,
		url TEXT,
		prompt TEXT,
		meta TEXT,
		created_at DATETIME
	);`

	eventsTable := `
	CREATE TABLE IF NOT EXISTS ingest_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT,
		payload TEXT,
		ts DATETIME
	);`

	statements := []string{rawItemsTable, articlesTable, clusterIndex, imagesTable, eventsTable}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RawItemExists reports whether a raw item with the given content-address
// key is already stored.
func (s *Store) RawItemExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM raw_items WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check raw item existence: %w", err)
	}
	return true, nil
}

// SaveRawItem stores a raw item keyed by its content-address. The write is
// idempotent: re-saving the same key leaves the original record untouched.
func (s *Store) SaveRawItem(ctx context.Context, item core.RawItem) error {
	query := `
	INSERT OR IGNORE INTO raw_items
	(id, source, source_name, title, url, published_at, content_hint, fingerprint, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.Source,
		item.SourceName,
		item.Title,
		item.URL,
		item.PublishedAt,
		item.ContentHint,
		item.Fingerprint,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save raw item: %w", err)
	}
	return nil
}

// ListRawItemsSince returns all raw items published at or after the given
// unix timestamp.
func (s *Store) ListRawItemsSince(ctx context.Context, since int64) ([]core.RawItem, error) {
	query := `
	SELECT id, source, source_name, title, url, published_at, content_hint, fingerprint, created_at
	FROM raw_items
	WHERE published_at >= ?
	ORDER BY published_at ASC`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw items: %w", err)
	}
	defer rows.Close()

	var items []core.RawItem
	for rows.Next() {
		var item core.RawItem
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.SourceName,
			&item.Title,
			&item.URL,
			&item.PublishedAt,
			&item.ContentHint,
			&item.Fingerprint,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan raw item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// HasArticleForCluster reports whether an article already exists for the
// cluster key. This is the legacy, non-transactional generation gate: the
// answer can be stale by the time the caller writes.
func (s *Store) HasArticleForCluster(ctx context.Context, clusterKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM generated_articles WHERE cluster_key = ? LIMIT 1`, clusterKey).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check generated article: %w", err)
	}
	return true, nil
}

// CreateArticle inserts a new generated article. The unique index on
// cluster_key makes the insert itself the generation gate: a concurrent
// duplicate surfaces as ErrClusterExists instead of a second article.
func (s *Store) CreateArticle(ctx context.Context, article core.GeneratedArticle) error {
	bullets, _ := json.Marshal(article.Bullets)
	facts, _ := json.Marshal(article.Facts)
	talks, _ := json.Marshal(article.Talks)
	evidenceURLs, _ := json.Marshal(article.EvidenceURLs)
	sourceRefs, _ := json.Marshal(article.SourceRefs)

	query := `
	INSERT INTO generated_articles
	(id, cluster_key, title, summary, bullets, facts, talks, evidence_urls, source_refs,
	 window_start, window_end, model_used, latency_ms, created_at, image_status, image_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '')`

	_, err := s.db.ExecContext(ctx, query,
		article.ID,
		article.ClusterKey,
		article.Title,
		article.Summary,
		string(bullets),
		string(facts),
		string(talks),
		string(evidenceURLs),
		string(sourceRefs),
		article.PublishedWindow.Start,
		article.PublishedWindow.End,
		article.ModelUsed,
		article.LatencyMS,
		article.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrClusterExists
		}
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

// GetArticle looks up a generated article by id.
func (s *Store) GetArticle(ctx context.Context, id string) (*core.GeneratedArticle, error) {
	row := s.db.QueryRowContext(ctx, articleSelect+` WHERE id = ?`, id)
	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

// ListRecentArticles returns up to limit articles, newest first.
func (s *Store) ListRecentArticles(ctx context.Context, limit int) ([]core.GeneratedArticle, error) {
	rows, err := s.db.QueryContext(ctx,
		articleSelect+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []core.GeneratedArticle
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

// AcquireImageLock attempts to take the per-article image lock. It runs a
// single read-check-write transaction: the lock is granted only when the
// article has no hero image and its status is empty. It never blocks beyond
// the driver's busy timeout.
func (s *Store) AcquireImageLock(ctx context.Context, articleID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin lock transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	var hero sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT image_status, hero_image FROM generated_articles WHERE id = ?`, articleID).
		Scan(&status, &hero)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read image status: %w", err)
	}

	if hero.Valid && hero.String != "" {
		return false, nil
	}
	// pending and done are held by another caller; failed is terminal until
	// an operator resets it.
	if status != core.ImageStatusNone {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE generated_articles SET image_status = ?, image_lock_at = ? WHERE id = ?`,
		core.ImageStatusPending, time.Now().UTC(), articleID)
	if err != nil {
		return false, fmt.Errorf("failed to set pending status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit lock transaction: %w", err)
	}
	return true, nil
}

// MarkImageDone records a finished hero image: the article's hero slot and
// status flip to done, and an audit copy lands in generated_images keyed by
// "{article_id}_{kind}".
func (s *Store) MarkImageDone(ctx context.Context, articleID string, record core.ImageRecord) error {
	heroJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal image record: %w", err)
	}
	metaJSON, _ := json.Marshal(record.Meta)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE generated_articles SET image_status = ?, image_error = '', hero_image = ? WHERE id = ?`,
		core.ImageStatusDone, string(heroJSON), articleID)
	if err != nil {
		return fmt.Errorf("failed to update article image: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO generated_images (id, article_id, kind, url, prompt, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fmt.Sprintf("%s_%s", articleID, record.Kind),
		record.ArticleID,
		record.Kind,
		record.URL,
		record.Prompt,
		string(metaJSON),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write image audit record: %w", err)
	}

	return tx.Commit()
}

// MarkImageFailed records a terminal image failure. The pipeline never
// retries a failed article; ResetImageStatus is the repair path.
func (s *Store) MarkImageFailed(ctx context.Context, articleID string, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE generated_articles SET image_status = ?, image_error = ? WHERE id = ?`,
		core.ImageStatusFailed, message, articleID)
	if err != nil {
		return fmt.Errorf("failed to mark image failed: %w", err)
	}
	return nil
}

// ResetImageStatus clears a failed article's image state so a later run may
// retry it. Articles that are pending or done are left untouched.
func (s *Store) ResetImageStatus(ctx context.Context, articleID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generated_articles SET image_status = '', image_error = '', image_lock_at = NULL
		 WHERE id = ? AND image_status = ?`,
		articleID, core.ImageStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset image status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetImageRecord reads an audit image record by article id and kind.
func (s *Store) GetImageRecord(ctx context.Context, articleID, kind string) (*core.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT article_id, kind, url, prompt, meta, created_at FROM generated_images WHERE id = ?`,
		fmt.Sprintf("%s_%s", articleID, kind))

	var record core.ImageRecord
	var meta string
	err := row.Scan(&record.ArticleID, &record.Kind, &record.URL, &record.Prompt, &meta, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan image record: %w", err)
	}
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &record.Meta)
	}
	return &record, nil
}

// Counts returns the total number of stored raw items and generated
// articles.
func (s *Store) Counts(ctx context.Context) (items int64, articles int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_items`).Scan(&items); err != nil {
		return 0, 0, fmt.Errorf("failed to count raw items: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_articles`).Scan(&articles); err != nil {
		return 0, 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return items, articles, nil
}

// LogEvent appends a run event to the ingest_events audit table.
func (s *Store) LogEvent(ctx context.Context, kind string, payload map[string]any) error {
	data, _ := json.Marshal(payload)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_events (kind, payload, ts) VALUES (?, ?, ?)`,
		kind, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

const articleSelect = `
	SELECT id, cluster_key, title, summary, bullets, facts, talks, evidence_urls, source_refs,
	       window_start, window_end, model_used, latency_ms, created_at, image_status, image_error, hero_image
	FROM generated_articles`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*core.GeneratedArticle, error) {
	var article core.GeneratedArticle
	var bullets, facts, talks, evidenceURLs, sourceRefs string
	var hero sql.NullString

	err := row.Scan(
		&article.ID,
		&article.ClusterKey,
		&article.Title,
		&article.Summary,
		&bullets,
		&facts,
		&talks,
		&evidenceURLs,
		&sourceRefs,
		&article.PublishedWindow.Start,
		&article.PublishedWindow.End,
		&article.ModelUsed,
		&article.LatencyMS,
		&article.CreatedAt,
		&article.ImageStatus,
		&article.ImageError,
		&hero,
	)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(bullets), &article.Bullets)
	_ = json.Unmarshal([]byte(facts), &article.Facts)
	_ = json.Unmarshal([]byte(talks), &article.Talks)
	_ = json.Unmarshal([]byte(evidenceURLs), &article.EvidenceURLs)
	_ = json.Unmarshal([]byte(sourceRefs), &article.SourceRefs)
	if hero.Valid && hero.String != "" {
		var record core.ImageRecord
		if err := json.Unmarshal([]byte(hero.String), &record); err == nil {
			article.HeroImage = &record
		}
	}
	return &article, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
