package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docverify/internal/model"
	"docverify/internal/repository"
	"docverify/internal/stats"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
// Ids come from a BIGSERIAL sequence and upload_date from the column default, so a
// single INSERT both allocates and publishes the record.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, filename, content_type, size, file_hash, storage_path, upload_date, status, confidence, analysis`

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (filename, content_type, size, file_hash, storage_path, status, confidence, analysis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, upload_date
	`
	analysis, err := repository.EncodeAnalysis(doc.Analysis)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, q,
		doc.Filename,
		doc.ContentType,
		doc.Size,
		doc.FileHash,
		doc.StoragePath,
		string(doc.Status),
		doc.Confidence,
		analysis,
	)
	out := repository.CloneDocument(*doc)
	if err := row.Scan(&out.ID, &out.UploadDate); err != nil {
		return nil, err
	}
	out.UploadDate = out.UploadDate.UTC()
	return &out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List reads the count and the page inside one read-only snapshot.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	const qCount = `SELECT COUNT(*) FROM documents`
	var total int
	if err := tx.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	offset := pq.Offset
	if offset < 0 {
		offset = 0
	}
	var rows *sql.Rows
	if pq.Limit > 0 {
		q := `SELECT ` + documentColumns + ` FROM documents ORDER BY upload_date DESC, id DESC LIMIT $1 OFFSET $2`
		rows, err = tx.QueryContext(ctx, q, pq.Limit, offset)
	} else {
		q := `SELECT ` + documentColumns + ` FROM documents ORDER BY upload_date DESC, id DESC OFFSET $1`
		rows, err = tx.QueryContext(ctx, q, offset)
	}
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
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// Counts aggregates in a single statement so the numbers share one snapshot.
func (r *DocumentPostgres) Counts(ctx context.Context) (stats.Counts, error) {
	const q = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'FRAUD'),
			COUNT(*) FILTER (WHERE status = 'GENUINE'),
			COALESCE(AVG(confidence) FILTER (WHERE status = 'FRAUD'), 0),
			COALESCE(AVG(confidence) FILTER (WHERE status = 'GENUINE'), 0)
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
func (r *DocumentPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d        model.Document
		status   string
		analysis []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.Filename,
		&d.ContentType,
		&d.Size,
		&d.FileHash,
		&d.StoragePath,
		&d.UploadDate,
		&status,
		&d.Confidence,
		&analysis,
	); err != nil {
		return nil, err
	}
	a, err := repository.DecodeAnalysis(analysis)
	if err != nil {
		return nil, err
	}
	d.Status = model.Status(status)
	d.UploadDate = d.UploadDate.UTC()
	d.Analysis = a
	return &d, nil
}
