package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docverify/internal/analyzer"
	analyzerMocks "docverify/internal/analyzer/mocks"
	"docverify/internal/config"
	"docverify/internal/dispatch"
	"docverify/internal/intake"
	"docverify/internal/logging"
	"docverify/internal/model"
	"docverify/internal/repository"
	"docverify/internal/repository/memory"
	repoMocks "docverify/internal/repository/mocks"
	"docverify/internal/stats"
	"docverify/internal/storage"
	storeMocks "docverify/internal/storage/mocks"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, uploads []model.RawUpload) []dispatch.Result {
	args := m.Called(ctx, uploads)
	if f, ok := args.Get(0).(func([]model.RawUpload) []dispatch.Result); ok {
		return f(uploads)
	}
	return args.Get(0).([]dispatch.Result)
}

func newIntake() *intake.Intake {
	return intake.New(config.DefaultMaxUploadBytes, config.DefaultAllowedContentTypes)
}

func rawUpload(name, contentType, content string) model.RawUpload {
	return model.RawUpload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// analyzeAll turns every upload into a successful GENUINE outcome.
func analyzeAll(uploads []model.RawUpload) []dispatch.Result {
	out := make([]dispatch.Result, len(uploads))
	for i, u := range uploads {
		out[i] = dispatch.Result{Upload: u, Outcome: &model.Outcome{
			Upload:   u,
			FileHash: fmt.Sprintf("hash-%d", u.Index),
			Content:  []byte("content"),
			Verdict:  model.Verdict{Status: model.StatusGenuine, Confidence: 80, Analysis: model.Analysis{Reasons: []string{}}},
		}}
	}
	return out
}

func TestVerificationService_Upload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		files      []model.RawUpload
		setupMocks func(mDisp *mockDispatcher, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		check      func(t *testing.T, res *BatchResult)
	}{
		{
			name:       "empty batch",
			setupMocks: func(mDisp *mockDispatcher, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrNoFiles,
			check: func(t *testing.T, res *BatchResult) {
				assert.Nil(t, res)
			},
		},
		{
			name: "all rejected",
			files: []model.RawUpload{
				rawUpload("notes.txt", "text/plain", "hello"),
				rawUpload("empty.png", "image/png", ""),
			},
			setupMocks: func(mDisp *mockDispatcher, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrAllRejected,
			check: func(t *testing.T, res *BatchResult) {
				require.NotNil(t, res)
				assert.Equal(t, 2, res.Total)
				assert.Equal(t, 2, res.Rejected)
				assert.Equal(t, intake.ReasonUnsupportedType, res.Results[0].Reason)
				assert.Equal(t, intake.ReasonEmptyFile, res.Results[1].Reason)
				assert.Equal(t, OutcomeRejected, res.Results[1].Outcome)
			},
		},
		{
			name: "all analyses failed",
			files: []model.RawUpload{
				rawUpload("a.png", "image/png", "a"),
			},
			setupMocks: func(mDisp *mockDispatcher, mRepo *repoMocks.MockDocumentRepository) {
				mDisp.On("Dispatch", ctx, mock.Anything).Return(func(uploads []model.RawUpload) []dispatch.Result {
					return []dispatch.Result{{Upload: uploads[0], Err: &dispatch.AnalysisError{
						Filename: "a.png", Reason: dispatch.ReasonTimeout, Err: context.DeadlineExceeded,
					}}}
				})
			},
			wantErr: ErrAllFailed,
			check: func(t *testing.T, res *BatchResult) {
				require.NotNil(t, res)
				assert.Equal(t, 1, res.Failed)
				assert.Equal(t, OutcomeAnalysisFailed, res.Results[0].Outcome)
				assert.Equal(t, dispatch.ReasonTimeout, res.Results[0].Reason)
				assert.Equal(t, context.DeadlineExceeded.Error(), res.Results[0].Error)
			},
		},
		{
			name: "persist failure is reported per file",
			files: []model.RawUpload{
				rawUpload("a.png", "image/png", "a"),
				rawUpload("b.pdf", "application/pdf", "b"),
			},
			setupMocks: func(mDisp *mockDispatcher, mRepo *repoMocks.MockDocumentRepository) {
				mDisp.On("Dispatch", ctx, mock.Anything).Return(analyzeAll)
				mRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool { return d.Filename == "a.png" })).
					Return(nil, errors.New("db fail"))
				mRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool { return d.Filename == "b.pdf" })).
					Return(func(ctx context.Context, d *model.Document) *model.Document {
						out := *d
						out.ID = 7
						return &out
					}, nil)
			},
			check: func(t *testing.T, res *BatchResult) {
				require.NotNil(t, res)
				assert.Equal(t, 1, res.Persisted)
				assert.Equal(t, 1, res.Failed)
				assert.Equal(t, OutcomePersistFailed, res.Results[0].Outcome)
				assert.Equal(t, ReasonPersistError, res.Results[0].Reason)
				assert.Equal(t, OutcomePersisted, res.Results[1].Outcome)
				assert.Equal(t, int64(7), res.Results[1].ID)
				assert.Equal(t, model.StatusGenuine, res.Results[1].Status)
				require.NotNil(t, res.Results[1].Confidence)
				assert.Equal(t, 80.0, *res.Results[1].Confidence)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mDisp := new(mockDispatcher)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewVerificationService(mRepo, newIntake(), mDisp, WithLogger(logging.Discard()))

			tt.setupMocks(mDisp, mRepo)

			res, err := svc.Upload(ctx, tt.files)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			tt.check(t, res)

			mDisp.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestVerificationService_UploadArchivesOriginals(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "documents/hash-0/") && strings.HasSuffix(key, ".png")
				}), mock.Anything, storage.PutObjectOptions{
					Size:        7,
					ContentType: "image/png",
					Metadata:    map[string]string{"original-filename": "scan.png", "file-hash": "hash-0"},
				}).Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
					return storage.ObjectInfo{Key: key, Size: opt.Size}
				}, nil)
				mRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
					return strings.HasPrefix(d.StoragePath, "documents/hash-0/")
				})).Return(&model.Document{ID: 1, Status: model.StatusGenuine}, nil)
			},
		},
		{
			name: "storage error",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("storage fail"))
			},
			wantErr: ErrAllFailed,
		},
		{
			name: "repository error with rollback",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				var putKey string
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
						putKey = key
						return storage.ObjectInfo{Key: key}
					}, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, mock.MatchedBy(func(key string) bool { return key == putKey })).Return(nil)
			},
			wantErr: ErrAllFailed,
		},
		{
			name: "repository error with failed rollback",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
						return storage.ObjectInfo{Key: key}
					}, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, mock.Anything).Return(errors.New("delete fail"))
			},
			wantErr: ErrAllFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			mDisp := new(mockDispatcher)
			mDisp.On("Dispatch", ctx, mock.Anything).Return(func(uploads []model.RawUpload) []dispatch.Result {
				res := analyzeAll(uploads)
				res[0].Outcome.Content = []byte("PNGDATA")
				return res
			})
			svc := NewVerificationService(mRepo, newIntake(), mDisp, WithStorage(mStore), WithLogger(logging.Discard()))

			tt.setupMocks(mStore, mRepo)

			res, err := svc.Upload(ctx, []model.RawUpload{rawUpload("scan.png", "image/png", "PNGDATA")})

			require.NotNil(t, res)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, OutcomePersistFailed, res.Results[0].Outcome)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, 1, res.Persisted)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestVerificationService_Persist_RollbackMessages(t *testing.T) {
	ctx := context.Background()
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{Key: "k"}, nil)
	mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
	mStore.On("Delete", ctx, mock.Anything).Return(errors.New("delete fail"))

	svc := NewVerificationService(mRepo, newIntake(), nil, WithStorage(mStore)).(*verificationService)
	_, err := svc.persist(ctx, &model.Outcome{
		Upload:   model.RawUpload{Filename: "a.png", ContentType: "image/png"},
		FileHash: "abc",
		Content:  []byte("x"),
		Verdict:  model.Verdict{Status: model.StatusFraud, Confidence: 10},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db save failed: db fail")
	assert.Contains(t, err.Error(), "rollback delete failed: delete fail")
}

// Three files, the second over 16 MiB: two are analyzed and stored, one is rejected.
func TestVerificationService_Upload_OversizedFileScenario(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDocumentMemory()
	m := new(analyzerMocks.MockAnalyzer)
	m.On("Analyze", mock.Anything, mock.Anything).Return(&model.Verdict{
		Status: model.StatusFraud, Confidence: 75, Analysis: model.Analysis{Reasons: []string{"Low quality (blur)"}},
	}, nil)

	svc := NewVerificationService(repo, newIntake(), dispatch.New(m, dispatch.WithLogger(logging.Discard())), WithLogger(logging.Discard()))

	big := rawUpload("big.pdf", "application/pdf", "")
	big.Size = 17 << 20

	res, err := svc.Upload(ctx, []model.RawUpload{
		rawUpload("a.png", "image/png", "aaa"),
		big,
		rawUpload("c.jpg", "image/jpeg", "ccc"),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, OutcomePersisted, res.Results[0].Outcome)
	assert.Equal(t, OutcomeRejected, res.Results[1].Outcome)
	assert.Equal(t, intake.ReasonTooLarge, res.Results[1].Reason)
	assert.Equal(t, OutcomePersisted, res.Results[2].Outcome)
	assert.Equal(t, []string{"Low quality (blur)"}, res.Results[2].Reasons)
	m.AssertNumberOfCalls(t, "Analyze", 2)

	st, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 2, st.Fraud)
	assert.Equal(t, 100.0, st.FraudPercentage)

	doc, err := svc.Get(ctx, res.Results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "a.png", doc.Filename)
	assert.Equal(t, int64(3), doc.Size)
	assert.Len(t, doc.FileHash, 64)
}

// Two files, the collaborator fails on one: the other is still stored.
func TestVerificationService_Upload_CollaboratorFailureScenario(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDocumentMemory()
	m := new(analyzerMocks.MockAnalyzer)
	m.On("Analyze", mock.Anything, mock.MatchedBy(func(p analyzer.Payload) bool { return p.Filename == "bad.png" })).
		Return(nil, fmt.Errorf("%w: status 500", analyzer.ErrCollaborator))
	m.On("Analyze", mock.Anything, mock.Anything).
		Return(&model.Verdict{Status: model.StatusGenuine, Confidence: 90, Analysis: model.Analysis{Reasons: []string{}}}, nil)

	svc := NewVerificationService(repo, newIntake(), dispatch.New(m, dispatch.WithLogger(logging.Discard())), WithLogger(logging.Discard()))

	res, err := svc.Upload(ctx, []model.RawUpload{
		rawUpload("bad.png", "image/png", "x"),
		rawUpload("good.png", "image/png", "y"),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, OutcomeAnalysisFailed, res.Results[0].Outcome)
	assert.Equal(t, dispatch.ReasonCollaboratorError, res.Results[0].Reason)
	assert.Equal(t, OutcomePersisted, res.Results[1].Outcome)

	list, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, "good.png", list.Documents[0].Filename)
	assert.Equal(t, 1, list.Total)
}

func TestVerificationService_List(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		limit      int
		offset     int
		setupMocks func(mRepo *repoMocks.MockDocumentRepository)
		wantErr    bool
		checkRes   func(t *testing.T, res *DocumentListResult)
	}{
		{
			name:  "happy path",
			limit: 10,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", ctx, repository.PageQuery{Limit: 10, Offset: 0}).
					Return(&repository.PageResult[model.Document]{
						Items: []model.Document{
							{ID: 2, Filename: "b.png", UploadDate: now, Status: model.StatusFraud, Confidence: 60, FileHash: "h"},
							{ID: 1, Filename: "a.png", UploadDate: now, Status: model.StatusGenuine, Confidence: 95},
						},
						Total: 2,
					}, nil)
			},
			checkRes: func(t *testing.T, res *DocumentListResult) {
				require.Len(t, res.Documents, 2)
				assert.Equal(t, model.DocumentSummary{ID: 2, Filename: "b.png", UploadDate: now, Status: model.StatusFraud, Confidence: 60}, res.Documents[0])
				assert.Equal(t, 2, res.Total)
			},
		},
		{
			name:   "negative bounds are clamped, zero limit means all",
			limit:  -5,
			offset: -1,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", ctx, repository.PageQuery{Limit: 0, Offset: 0}).
					Return(&repository.PageResult[model.Document]{Items: []model.Document{}, Total: 0}, nil)
			},
			checkRes: func(t *testing.T, res *DocumentListResult) {
				assert.NotNil(t, res.Documents)
				assert.Empty(t, res.Documents)
			},
		},
		{
			name: "repository error",
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", ctx, mock.Anything).Return(nil, errors.New("db fail"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewVerificationService(mRepo, newIntake(), nil)

			tt.setupMocks(mRepo)

			res, err := svc.List(ctx, tt.limit, tt.offset)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				tt.checkRes(t, res)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestVerificationService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   4,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(4)).Return(&model.Document{ID: 4}, nil)
			},
		},
		{
			name:       "validation - non-positive id",
			id:         0,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrInvalidID,
		},
		{
			name: "not found",
			id:   999,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(999)).Return(nil, repository.ErrNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "generic repository error",
			id:   5,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, int64(5)).Return(nil, errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewVerificationService(mRepo, newIntake(), nil)

			tt.setupMocks(mRepo)

			doc, err := svc.Get(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrInvalidID) || errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Error(t, err)
				}
				assert.Nil(t, doc)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.id, doc.ID)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestVerificationService_Statistics(t *testing.T) {
	ctx := context.Background()

	t.Run("from store counts", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("Counts", ctx).Return(stats.Counts{Total: 3, Fraud: 1, Genuine: 2, FraudConfidence: 70, GenuineConfidence: 85.556}, nil)
		svc := NewVerificationService(mRepo, newIntake(), nil)

		st, err := svc.Statistics(ctx)

		require.NoError(t, err)
		assert.Equal(t, model.Statistics{
			Total: 3, Fraud: 1, Genuine: 2, FraudPercentage: 33.33,
			AvgFraudConfidence: 70, AvgGenuineConfidence: 85.56,
		}, *st)
	})

	t.Run("fresh store is all zero", func(t *testing.T) {
		svc := NewVerificationService(memory.NewDocumentMemory(), newIntake(), nil)

		st, err := svc.Statistics(ctx)

		require.NoError(t, err)
		assert.Equal(t, model.Statistics{}, *st)
	})

	t.Run("repository error", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("Counts", ctx).Return(stats.Counts{}, errors.New("db fail"))
		svc := NewVerificationService(mRepo, newIntake(), nil)

		st, err := svc.Statistics(ctx)

		assert.Error(t, err)
		assert.Nil(t, st)
	})
}

func TestVerificationService_FileURL(t *testing.T) {
	ctx := context.Background()

	t.Run("presigns archived original", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mStore := new(storeMocks.MockStorage)
		mRepo.On("FindByID", ctx, int64(1)).Return(&model.Document{ID: 1, StoragePath: "documents/h/x.png"}, nil)
		mStore.On("PresignGet", ctx, "documents/h/x.png", 5*time.Minute).Return("http://minio/x", nil)
		svc := NewVerificationService(mRepo, newIntake(), nil, WithStorage(mStore), WithPresignExpiry(5*time.Minute))

		url, err := svc.FileURL(ctx, 1)

		require.NoError(t, err)
		assert.Equal(t, "http://minio/x", url)
		mStore.AssertExpectations(t)
	})

	t.Run("not archived", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", ctx, int64(1)).Return(&model.Document{ID: 1}, nil)
		svc := NewVerificationService(mRepo, newIntake(), nil)

		_, err := svc.FileURL(ctx, 1)

		assert.ErrorIs(t, err, ErrNotArchived)
	})

	t.Run("unknown document", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", ctx, int64(9)).Return(nil, repository.ErrNotFound)
		svc := NewVerificationService(mRepo, newIntake(), nil, WithStorage(new(storeMocks.MockStorage)))

		_, err := svc.FileURL(ctx, 9)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}
