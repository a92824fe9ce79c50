package repository

import (
	"context"
	"errors"

	"docverify/internal/model"
	"docverify/internal/stats"
)

// ErrNotFound is returned by FindByID for an id the store has never assigned.
var ErrNotFound = errors.New("document not found")

// DocumentRepository is the authoritative, append-only store of verification results.
// No business logic here, persistence only.
type DocumentRepository interface {
	// Create assigns a new unique id and the upload timestamp, then stores the document
	// in a single atomic step. The returned document is immediately visible to
	// FindByID and List.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// List returns documents most recent first (upload_date DESC, id DESC) and the
	// total row count. A zero Limit returns every row.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// Counts aggregates the store in one coherent read.
	Counts(ctx context.Context) (stats.Counts, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
