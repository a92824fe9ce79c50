package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docverify/internal/model"
	"docverify/internal/repository"
)

var columns = []string{"id", "filename", "content_type", "size", "file_hash", "storage_path", "upload_date", "status", "confidence", "analysis"}

const analysisJSON = `{"reasons":["Low sharpness"],"features":{"sharpness":42.5,"contrast":18}}`

func TestDocumentPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	doc := &model.Document{
		Filename:    "passport.png",
		ContentType: "image/png",
		Size:        123,
		FileHash:    "deadbeef",
		Status:      model.StatusFraud,
		Confidence:  75,
		Analysis:    model.Analysis{Reasons: []string{"Low sharpness"}},
	}

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.Filename, doc.ContentType, doc.Size, doc.FileHash, doc.StoragePath, "FRAUD", doc.Confidence, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "upload_date"}).AddRow(int64(7), now))

	result, err := repo.Create(ctx, doc)

	require.NoError(t, err)
	assert.Equal(t, int64(7), result.ID)
	assert.Equal(t, now, result.UploadDate)
	assert.Equal(t, doc.Filename, result.Filename)
	assert.Zero(t, doc.ID, "input must not be mutated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_CreateNilReasons(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	now := time.Now().UTC()
	sharp := 42.5
	doc := &model.Document{
		Filename: "letter.pdf",
		Status:   model.StatusGenuine,
		Analysis: model.Analysis{Features: model.Features{Sharpness: &sharp}},
	}

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.Filename, doc.ContentType, doc.Size, doc.FileHash, doc.StoragePath, "GENUINE", doc.Confidence, []byte(`{"reasons":[],"features":{"sharpness":42.5}}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "upload_date"}).AddRow(int64(1), now))

	result, err := repo.Create(context.Background(), doc)
	require.NoError(t, err)

	// Same shape FindByID decodes from the stored column.
	assert.Equal(t, []string{}, result.Analysis.Reasons)
	assert.Nil(t, doc.Analysis.Reasons)
	*result.Analysis.Features.Sharpness = 0
	assert.Equal(t, 42.5, sharp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_CreateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)

	mock.ExpectQuery("INSERT INTO documents").WillReturnError(errors.New("constraint violation"))

	result, err := repo.Create(context.Background(), &model.Document{Status: model.StatusGenuine})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(columns).
			AddRow(int64(1), "file.png", "image/png", int64(100), "hash", "", time.Now(), "GENUINE", 88.5, []byte(analysisJSON))

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(1)).
			WillReturnRows(rows)

		doc, err := repo.FindByID(ctx, 1)

		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.ID)
		assert.Equal(t, model.StatusGenuine, doc.Status)
		assert.Equal(t, []string{"Low sharpness"}, doc.Analysis.Reasons)
		require.NotNil(t, doc.Analysis.Features.Sharpness)
		assert.Equal(t, 42.5, *doc.Analysis.Features.Sharpness)
		assert.Nil(t, doc.Analysis.Features.Brightness)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(999)).
			WillReturnRows(sqlmock.NewRows(columns))

		doc, err := repo.FindByID(ctx, 999)

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, doc)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("paged", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		now := time.Now()
		rows := sqlmock.NewRows(columns).
			AddRow(int64(2), "b.pdf", "application/pdf", int64(10), "h2", "", now, "FRAUD", 60.0, []byte(`{"reasons":[]}`)).
			AddRow(int64(1), "a.png", "image/png", int64(10), "h1", "", now, "GENUINE", 90.0, []byte(analysisJSON))

		mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY upload_date DESC, id DESC LIMIT").
			WithArgs(10, 0).
			WillReturnRows(rows)
		mock.ExpectCommit()

		res, err := repo.List(ctx, repository.PageQuery{Limit: 10, Offset: 0})

		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		require.Len(t, res.Items, 2)
		assert.Equal(t, int64(2), res.Items[0].ID)
		assert.Equal(t, []string{}, res.Items[0].Analysis.Reasons)
	})

	t.Run("all rows", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY upload_date DESC, id DESC OFFSET").
			WithArgs(0).
			WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectCommit()

		res, err := repo.List(ctx, repository.PageQuery{Offset: -5})

		require.NoError(t, err)
		assert.Equal(t, 0, res.Total)
		assert.NotNil(t, res.Items)
		assert.Empty(t, res.Items)
	})

	t.Run("count error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents").WillReturnError(errors.New("db down"))
		mock.ExpectRollback()

		res, err := repo.List(ctx, repository.PageQuery{})

		assert.Error(t, err)
		assert.Nil(t, res)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)

	mock.ExpectQuery("SELECT (.+) FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"total", "fraud", "genuine", "avg_fraud", "avg_genuine"}).
			AddRow(3, 1, 2, 70.0, 85.5))

	c, err := repo.Counts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, 1, c.Fraud)
	assert.Equal(t, 2, c.Genuine)
	assert.Equal(t, 70.0, c.FraudConfidence)
	assert.Equal(t, 85.5, c.GenuineConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("unreachable"))

	err = NewDocumentPostgres(db).Ping(context.Background())

	assert.EqualError(t, err, "unreachable")
}
