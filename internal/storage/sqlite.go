package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// busyTimeout is how long a connection waits on a locked database before
// surfacing SQLITE_BUSY. Readers are safe concurrently under WAL; this only
// matters when a second writer shows up.
const busyTimeout = 5 * time.Second

// SQLiteStore implements the Store interface using SQLite with FTS5 and,
// when built with the sqlite_vec tag, the sqlite-vec extension.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// openDatabase opens a SQLite database with appropriate settings.
// The dsn may be a plain path, a file: URL, or ":memory:".
func openDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so concurrent readers don't block the single writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Single connection: SQLite wants one writer, and a shared :memory:
	// database must not be split across pooled connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// New creates a new SQLite store, applying schema migrations.
func New(dsn string) (*SQLiteStore, error) {
	db, err := openDatabase(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Source operations

const sourceColumns = `id, name, type, base_url, group_name, description, options, last_ingested_at, created_at, updated_at`

// UpsertSource inserts a source or, on a name conflict, updates every field.
func (s *SQLiteStore) UpsertSource(ctx context.Context, src *Source) error {
	options, err := marshalOptions(src.Options)
	if err != nil {
		return fmt.Errorf("failed to encode source options: %w", err)
	}

	query := `
		INSERT INTO sources (name, type, base_url, group_name, description, options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			base_url = excluded.base_url,
			group_name = excluded.group_name,
			description = excluded.description,
			options = excluded.options,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		src.Name, string(src.Type), src.BaseURL,
		nullString(src.GroupName), nullString(src.Description), options,
		now, now,
	).Scan(&src.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	src.UpdatedAt = now
	return nil
}

// GetSource retrieves a source by name.
func (s *SQLiteStore) GetSource(ctx context.Context, name string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ListSources returns all sources ordered by name.
func (s *SQLiteStore) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// RemoveSource deletes a source and everything that hangs off it: chunks,
// documents, progress rows, then the source row itself. Returns whether a
// source was removed.
func (s *SQLiteStore) RemoveSource(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var sourceID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM sources WHERE name = ?`, name).Scan(&sourceID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	stmts := []string{
		`DELETE FROM chunks WHERE document_id IN (SELECT id FROM documents WHERE source_id = ?)`,
		`DELETE FROM documents WHERE source_id = ?`,
		`DELETE FROM ingestion_progress WHERE source_id = ?`,
		`DELETE FROM sources WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, sourceID); err != nil {
			return false, fmt.Errorf("failed to remove source %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateSourceDescription persists a derived description.
func (s *SQLiteStore) UpdateSourceDescription(ctx context.Context, sourceID int64, description string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET description = ?, updated_at = ? WHERE id = ?`,
		description, time.Now(), sourceID)
	return err
}

// TouchSourceIngested stamps the source's last successful ingestion time.
func (s *SQLiteStore) TouchSourceIngested(ctx context.Context, sourceID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_ingested_at = ?, updated_at = ? WHERE id = ?`,
		time.Now(), time.Now(), sourceID)
	return err
}

// Group operations

// IsGroup reports whether name resolves to a group. Sources shadow groups:
// if a source carries the exact name, the name is not a group.
func (s *SQLiteStore) IsGroup(ctx context.Context, name string) (bool, error) {
	var shadowed int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE name = ?`, name).Scan(&shadowed); err != nil {
		return false, err
	}
	if shadowed > 0 {
		return false, nil
	}

	var members int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE group_name = ?`, name).Scan(&members); err != nil {
		return false, err
	}
	return members > 0, nil
}

// SourcesByGroup returns the member sources of a group ordered by name.
func (s *SQLiteStore) SourcesByGroup(ctx context.Context, name string) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE group_name = ? ORDER BY name`, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// RemoveGroup removes every source in the group. Returns whether any source
// was removed.
func (s *SQLiteStore) RemoveGroup(ctx context.Context, name string) (bool, error) {
	members, err := s.SourcesByGroup(ctx, name)
	if err != nil {
		return false, err
	}
	removed := false
	for _, src := range members {
		ok, err := s.RemoveSource(ctx, src.Name)
		if err != nil {
			return removed, err
		}
		removed = removed || ok
	}
	return removed, nil
}

// Document operations

// UpsertDocument inserts or replaces a document. The document's existing
// chunks are deleted in the same transaction so stale embeddings cannot
// survive a content change.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *Document) error {
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode document metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id IN (SELECT id FROM documents WHERE source_id = ? AND url = ?)`,
		doc.SourceID, doc.URL)
	if err != nil {
		return fmt.Errorf("failed to clear stale chunks: %w", err)
	}

	query := `
		INSERT INTO documents (source_id, url, title, path, content, content_hash, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, url) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			content = excluded.content,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err = tx.QueryRowContext(ctx, query,
		doc.SourceID, doc.URL, doc.Title, nullString(doc.Path),
		doc.Content, doc.ContentHash, metadata, now,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	doc.UpdatedAt = now
	return nil
}

const documentColumns = `id, source_id, url, title, path, content, content_hash, metadata, updated_at`

// GetDocumentByURL retrieves a document by its (source, url) key.
func (s *SQLiteStore) GetDocumentByURL(ctx context.Context, sourceID int64, url string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_id = ? AND url = ?`, sourceID, url)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocumentsByIDs fetches documents for the given ids. Missing ids are
// silently dropped; callers preserve their own ordering.
func (s *SQLiteStore) GetDocumentsByIDs(ctx context.Context, ids []int64) ([]*Document, error) {
	if len(ids) == 0 {
		return []*Document{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListDocumentURLs returns all document URLs for a source.
func (s *SQLiteStore) ListDocumentURLs(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM documents WHERE source_id = ? ORDER BY url`, sourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	urls := make([]string, 0)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// CountDocuments counts documents belonging to a source.
func (s *SQLiteStore) CountDocuments(ctx context.Context, sourceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE source_id = ?`, sourceID).Scan(&count)
	return count, err
}

// Chunk operations

// InsertChunk inserts a chunk; conflict on (document_id, chunk_index)
// overwrites content, embedding, and token count.
func (s *SQLiteStore) InsertChunk(ctx context.Context, chunk *Chunk) error {
	query := `
		INSERT INTO chunks (document_id, chunk_index, content, embedding, token_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, chunk_index) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			token_count = excluded.token_count
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		chunk.DocumentID, chunk.ChunkIndex, chunk.Content,
		serializeVector(chunk.Embedding), chunk.TokenCount,
	).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// CountChunks counts chunks belonging to a document.
func (s *SQLiteStore) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&count)
	return count, err
}

// Search operations

// VectorSearch returns chunks ordered by ascending cosine distance.
func (s *SQLiteStore) VectorSearch(ctx context.Context, embedding []float32, filters SearchFilters) ([]ChunkHit, error) {
	return searchVector(ctx, s.db, embedding, filters)
}

// LexicalSearch returns chunks ordered by BM25 rank; Distance carries the
// absolute BM25 value.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, query string, filters SearchFilters) ([]ChunkHit, error) {
	return searchLexical(ctx, s.db, query, filters)
}

// Progress operations

const progressColumns = `id, source_id, started_at, total, processed, skipped, failed, status, last_processed_url, error_message`

// GetIncompleteProgress returns the most recent in_progress row for the
// source, or ErrNotFound. The schema permits duplicates; the newest wins.
func (s *SQLiteStore) GetIncompleteProgress(ctx context.Context, sourceID int64) (*Progress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM ingestion_progress
		 WHERE source_id = ? AND status = ?
		 ORDER BY started_at DESC LIMIT 1`,
		sourceID, ProgressInProgress)
	p, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProgress starts a new in_progress row for a run.
func (s *SQLiteStore) CreateProgress(ctx context.Context, sourceID int64, total int) (*Progress, error) {
	p := &Progress{
		SourceID:  sourceID,
		StartedAt: time.Now(),
		Total:     total,
		Status:    ProgressInProgress,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO ingestion_progress (source_id, started_at, total, status)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		p.SourceID, p.StartedAt, p.Total, p.Status,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create progress: %w", err)
	}
	return p, nil
}

// UpdateProgress writes the current counters and cursor back to the row.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, p *Progress) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_progress
		 SET total = ?, processed = ?, skipped = ?, failed = ?, last_processed_url = ?, error_message = ?
		 WHERE id = ?`,
		p.Total, p.Processed, p.Skipped, p.Failed,
		nullString(p.LastProcessedURL), nullString(p.ErrorMessage), p.ID)
	return err
}

// CompleteProgress moves the row to its terminal status based on whether
// any documents failed.
func (s *SQLiteStore) CompleteProgress(ctx context.Context, p *Progress) error {
	status := ProgressCompleted
	if p.Failed > 0 {
		status = ProgressCompletedWithErrors
	}
	p.Status = status
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_progress
		 SET total = ?, processed = ?, skipped = ?, failed = ?, status = ?, last_processed_url = ?, error_message = ?
		 WHERE id = ?`,
		p.Total, p.Processed, p.Skipped, p.Failed, status,
		nullString(p.LastProcessedURL), nullString(p.ErrorMessage), p.ID)
	return err
}

// Scan helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSource(row rowScanner) (*Source, error) {
	var src Source
	var srcType string
	var groupName, description, options sql.NullString
	var lastIngestedAt sql.NullTime

	err := row.Scan(
		&src.ID, &src.Name, &srcType, &src.BaseURL,
		&groupName, &description, &options, &lastIngestedAt,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	src.Type = SourceType(srcType)
	src.GroupName = groupName.String
	src.Description = description.String
	if lastIngestedAt.Valid {
		src.LastIngestedAt = lastIngestedAt.Time
	}

	if options.Valid && options.String != "" {
		var opts SourceOptions
		if err := json.Unmarshal([]byte(options.String), &opts); err != nil {
			return nil, fmt.Errorf("failed to decode options for source %q: %w", src.Name, err)
		}
		src.Options = &opts
		// Older writers stored the description inside options
		if src.Description == "" && opts.Description != "" {
			src.Description = opts.Description
		}
	}

	return &src, nil
}

func scanSources(rows *sql.Rows) ([]*Source, error) {
	sources := make([]*Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var path, metadata sql.NullString

	err := row.Scan(
		&doc.ID, &doc.SourceID, &doc.URL, &doc.Title, &path,
		&doc.Content, &doc.ContentHash, &metadata, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Path = path.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for document %q: %w", doc.URL, err)
		}
	}
	return &doc, nil
}

func scanProgress(row rowScanner) (*Progress, error) {
	var p Progress
	var lastURL, errMsg sql.NullString

	err := row.Scan(
		&p.ID, &p.SourceID, &p.StartedAt,
		&p.Total, &p.Processed, &p.Skipped, &p.Failed,
		&p.Status, &lastURL, &errMsg,
	)
	if err != nil {
		return nil, err
	}
	p.LastProcessedURL = lastURL.String
	p.ErrorMessage = errMsg.String
	return &p, nil
}

func marshalOptions(opts *SourceOptions) (interface{}, error) {
	if opts == nil {
		return nil, nil
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func marshalMetadata(metadata map[string]string) (interface{}, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
