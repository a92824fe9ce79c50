// Package memory provides an in-process DocumentRepository.
package memory

import (
	"context"
	"sync"
	"time"

	"docverify/internal/model"
	"docverify/internal/repository"
	"docverify/internal/stats"
)

// DocumentMemory keeps documents in insertion order behind a RWMutex.
// Inserts are O(1); ids come from a counter guarded by the same lock, so they are
// unique and increase with upload_date.
type DocumentMemory struct {
	mu     sync.RWMutex
	docs   []model.Document
	byID   map[int64]int
	nextID int64
	now    func() time.Time
}

// NewDocumentMemory creates an empty store.
func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{
		byID:   make(map[int64]int),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

// Create stores a copy of doc with a fresh id and timestamp.
func (r *DocumentMemory) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := repository.CloneDocument(*doc)

	r.mu.Lock()
	rec.ID = r.nextID
	rec.UploadDate = r.now()
	// upload_date must never go backwards relative to a lower id.
	if n := len(r.docs); n > 0 && rec.UploadDate.Before(r.docs[n-1].UploadDate) {
		rec.UploadDate = r.docs[n-1].UploadDate
	}
	r.nextID++
	r.byID[rec.ID] = len(r.docs)
	r.docs = append(r.docs, rec)
	r.mu.Unlock()

	out := repository.CloneDocument(rec)
	return &out, nil
}

// FindByID returns a copy of the stored document.
func (r *DocumentMemory) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := repository.CloneDocument(r.docs[i])
	return &out, nil
}

// List walks the insertion log backwards, which is upload_date DESC, id DESC.
func (r *DocumentMemory) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.docs)
	start := pq.Offset
	if start < 0 {
		start = 0
	}
	end := total
	if pq.Limit > 0 && pq.Limit < end-start {
		end = start + pq.Limit
	}

	items := make([]model.Document, 0)
	for i := start; i < end; i++ {
		items = append(items, repository.CloneDocument(r.docs[total-1-i]))
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// Counts summarizes the store under the read lock.
func (r *DocumentMemory) Counts(ctx context.Context) (stats.Counts, error) {
	if err := ctx.Err(); err != nil {
		return stats.Counts{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	return stats.Count(r.docs), nil
}

// Ping always succeeds.
func (r *DocumentMemory) Ping(ctx context.Context) error {
	return ctx.Err()
}
