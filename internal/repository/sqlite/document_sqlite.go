// Package sqlite implements the document store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"docverify/internal/model"
	"docverify/internal/repository"
	"docverify/internal/stats"
)

// DocumentSQLite stores documents in SQLite. upload_date is kept as Unix nanoseconds.
// Inserts are serialized by a writer lock so timestamps never decrease with id.
type DocumentSQLite struct {
	db *sql.DB

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewDocumentSQLite creates a new DocumentSQLite repository.
func NewDocumentSQLite(db *sql.DB) *DocumentSQLite {
	return &DocumentSQLite{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.DocumentRepository = (*DocumentSQLite)(nil)

const documentColumns = `id, filename, content_type, size, file_hash, storage_path, upload_date, status, confidence, analysis`

// Create inserts a new document row and returns the stored record.
func (r *DocumentSQLite) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (filename, content_type, size, file_hash, storage_path, upload_date, status, confidence, analysis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	analysis, err := repository.EncodeAnalysis(doc.Analysis)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()
	if ts.Before(r.last) {
		ts = r.last
	}
	res, err := r.db.ExecContext(ctx, q,
		doc.Filename,
		doc.ContentType,
		doc.Size,
		doc.FileHash,
		doc.StoragePath,
		ts.UnixNano(),
		string(doc.Status),
		doc.Confidence,
		string(analysis),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	r.last = ts

	out := repository.CloneDocument(*doc)
	out.ID = id
	out.UploadDate = time.Unix(0, ts.UnixNano()).UTC()
	return &out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentSQLite) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns documents most recent first inside a single read transaction.
func (r *DocumentSQLite) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, err
	}

	limit := pq.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	offset := pq.Offset
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + documentColumns + ` FROM documents ORDER BY upload_date DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := tx.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// Counts aggregates in a single statement.
func (r *DocumentSQLite) Counts(ctx context.Context) (stats.Counts, error) {
	const q = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'FRAUD' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'GENUINE' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status = 'FRAUD' THEN confidence END), 0),
			COALESCE(AVG(CASE WHEN status = 'GENUINE' THEN confidence END), 0)
		FROM documents
	`
	var c stats.Counts
	if err := r.db.QueryRowContext(ctx, q).Scan(
		&c.Total,
		&c.Fraud,
		&c.Genuine,
		&c.FraudConfidence,
		&c.GenuineConfidence,
	); err != nil {
		return stats.Counts{}, fmt.Errorf("count documents: %w", err)
	}
	return c, nil
}

// Ping checks database connectivity.
func (r *DocumentSQLite) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d        model.Document
		ts       int64
		status   string
		analysis string
	)
	if err := row.Scan(
		&d.ID,
		&d.Filename,
		&d.ContentType,
		&d.Size,
		&d.FileHash,
		&d.StoragePath,
		&ts,
		&status,
		&d.Confidence,
		&analysis,
	); err != nil {
		return nil, err
	}
	a, err := repository.DecodeAnalysis([]byte(analysis))
	if err != nil {
		return nil, err
	}
	d.UploadDate = time.Unix(0, ts).UTC()
	d.Status = model.Status(status)
	d.Analysis = a
	return &d, nil
}
