package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docverify/internal/dispatch"
	"docverify/internal/intake"
	"docverify/internal/logging"
	"docverify/internal/metrics"
	"docverify/internal/model"
	"docverify/internal/repository"
	"docverify/internal/stats"
	"docverify/internal/storage"
)

var (
	ErrNoFiles     = errors.New("no files provided")
	ErrAllRejected = errors.New("no file passed validation")
	ErrAllFailed   = errors.New("no file could be analyzed and stored")
	ErrNotFound    = errors.New("document not found")
	ErrInvalidID   = errors.New("invalid document id")
	ErrNotArchived = errors.New("document original is not archived")
)

// Per-file outcomes reported in a BatchResult.
const (
	OutcomePersisted      = "persisted"
	OutcomeRejected       = "rejected"
	OutcomeAnalysisFailed = "analysis_failed"
	OutcomePersistFailed  = "persist_failed"
)

// ReasonPersistError is the reason attached to files whose analysis succeeded but could not be stored.
const ReasonPersistError = "persist_error"

// Batch lifecycle states, logged as the batch advances.
const (
	StateReceived    = "RECEIVED"
	StateFiltered    = "FILTERED"
	StateDispatched  = "DISPATCHED"
	StatePersisted   = "PERSISTED"
	StateResponded   = "RESPONDED"
	StateRejectedAll = "REJECTED_ALL"
	StateFailedAll   = "FAILED_ALL"
)

// FileResult reports what happened to one file of a batch.
type FileResult struct {
	Index      int          `json:"index"`
	Filename   string       `json:"filename"`
	Outcome    string       `json:"outcome"`
	ID         int64        `json:"id,omitempty"`
	Status     model.Status `json:"status,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
	Reasons    []string     `json:"reasons,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// BatchResult is the per-batch response. Results has one entry per submitted file, in submission order.
type BatchResult struct {
	Total     int          `json:"total"`
	Accepted  int          `json:"accepted"`
	Rejected  int          `json:"rejected"`
	Persisted int          `json:"persisted"`
	Failed    int          `json:"failed"`
	Results   []FileResult `json:"results"`
}

// DocumentListResult is the service-level DTO for listed documents.
type DocumentListResult struct {
	Documents []model.DocumentSummary `json:"documents"`
	Total     int                     `json:"total"`
}

// Dispatcher runs the analysis of accepted uploads.
type Dispatcher interface {
	Dispatch(ctx context.Context, uploads []model.RawUpload) []dispatch.Result
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)

// VerificationService defines the use cases of the verification pipeline.
type VerificationService interface {
	// Upload validates, analyzes and stores a batch. On ErrAllRejected and ErrAllFailed
	// the BatchResult is still returned so every file's reason can be reported.
	Upload(ctx context.Context, files []model.RawUpload) (*BatchResult, error)

	// List returns stored documents most recent first. A zero limit returns all of them.
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id int64) (*model.Document, error)

	// Statistics aggregates the store as of this call.
	Statistics(ctx context.Context) (*model.Statistics, error)

	// FileURL returns a short-lived download URL for the archived original.
	FileURL(ctx context.Context, id int64) (string, error)
}

type verificationService struct {
	repo          repository.DocumentRepository
	intake        *intake.Intake
	dispatcher    Dispatcher
	store         storage.Storage
	metrics       *metrics.Metrics
	logger        *slog.Logger
	presignExpiry time.Duration
}

type Option func(*verificationService)

// WithStorage enables archiving of analyzed originals.
func WithStorage(s storage.Storage) Option {
	return func(v *verificationService) {
		v.store = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *verificationService) {
		v.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *verificationService) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithPresignExpiry sets the lifetime of URLs returned by FileURL.
func WithPresignExpiry(d time.Duration) Option {
	return func(v *verificationService) {
		if d > 0 {
			v.presignExpiry = d
		}
	}
}

// NewVerificationService constructs a new VerificationService.
func NewVerificationService(repo repository.DocumentRepository, in *intake.Intake, d Dispatcher, opts ...Option) VerificationService {
	s := &verificationService{
		repo:          repo,
		intake:        in,
		dispatcher:    d,
		logger:        slog.Default(),
		presignExpiry: 15 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *verificationService) Upload(ctx context.Context, files []model.RawUpload) (*BatchResult, error) {
	log := s.logger.With("batch_id", uuid.NewString(), "request_id", logging.RequestID(ctx))
	if len(files) == 0 {
		log.Info("batch_state", "state", StateRejectedAll, "files", 0)
		return nil, ErrNoFiles
	}

	// Slots are addressed by position; Index is rewritten so every stage agrees.
	batch := make([]model.RawUpload, len(files))
	copy(batch, files)
	for i := range batch {
		batch[i].Index = i
	}

	res := &BatchResult{Total: len(batch), Results: make([]FileResult, len(batch))}
	for i, f := range batch {
		res.Results[i] = FileResult{Index: i, Filename: f.Filename}
	}
	log.Info("batch_state", "state", StateReceived, "files", len(batch))

	accepted, rejected := s.intake.Accept(batch)
	for _, r := range rejected {
		fr := &res.Results[r.Upload.Index]
		fr.Outcome = OutcomeRejected
		fr.Reason = r.Err.Reason
		fr.Error = r.Err.Message
		s.metrics.ObserveRejection(r.Err.Reason)
	}
	res.Accepted = len(accepted)
	res.Rejected = len(rejected)
	log.Info("batch_state", "state", StateFiltered, "accepted", res.Accepted, "rejected", res.Rejected)

	if len(accepted) == 0 {
		log.Info("batch_state", "state", StateRejectedAll)
		return res, ErrAllRejected
	}

	results := s.dispatcher.Dispatch(ctx, accepted)
	log.Info("batch_state", "state", StateDispatched, "analyzed", countAnalyzed(results))

	// Analyses that already finished are stored even if the client has gone away.
	persistCtx := context.WithoutCancel(ctx)
	for _, r := range results {
		fr := &res.Results[r.Upload.Index]
		if r.Err != nil {
			fr.Outcome = OutcomeAnalysisFailed
			fr.Reason = r.Err.Reason
			fr.Error = r.Err.Err.Error()
			res.Failed++
			continue
		}

		doc, err := s.persist(persistCtx, r.Outcome)
		if err != nil {
			log.Error("persist_failed", "filename", r.Upload.Filename, "error", err.Error())
			fr.Outcome = OutcomePersistFailed
			fr.Reason = ReasonPersistError
			fr.Error = "failed to store verification result"
			res.Failed++
			continue
		}

		confidence := doc.Confidence
		fr.Outcome = OutcomePersisted
		fr.ID = doc.ID
		fr.Status = doc.Status
		fr.Confidence = &confidence
		fr.Reasons = doc.Analysis.Reasons
		res.Persisted++
	}
	log.Info("batch_state", "state", StatePersisted, "persisted", res.Persisted, "failed", res.Failed)

	if res.Persisted == 0 {
		log.Info("batch_state", "state", StateFailedAll)
		return res, ErrAllFailed
	}
	log.Info("batch_state", "state", StateResponded)
	return res, nil
}

// persist archives the original when storage is configured, then inserts the record.
// The archived object is removed if the insert fails.
func (s *verificationService) persist(ctx context.Context, o *model.Outcome) (*model.Document, error) {
	name := intake.SanitizeFilename(o.Upload.Filename)
	doc := &model.Document{
		Filename:    name,
		ContentType: o.Upload.ContentType,
		Size:        int64(len(o.Content)),
		FileHash:    o.FileHash,
		Status:      o.Verdict.Status,
		Confidence:  o.Verdict.Confidence,
		Analysis:    o.Verdict.Analysis,
	}

	var key string
	if s.store != nil {
		key = objectKey(o.FileHash, name)
		info, err := s.store.Put(ctx, key, bytes.NewReader(o.Content), storage.PutObjectOptions{
			Size:        int64(len(o.Content)),
			ContentType: o.Upload.ContentType,
			Metadata: map[string]string{
				"original-filename": name,
				"file-hash":         o.FileHash,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("upload to storage: %w", err)
		}
		doc.StoragePath = info.Key
	}

	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		if key != "" {
			if delErr := s.store.Delete(ctx, key); delErr != nil {
				return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
			}
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	s.metrics.ObserveDocument(string(stored.Status))
	return stored, nil
}

// List returns documents without exposing repository types.
func (s *verificationService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	out := &DocumentListResult{Documents: make([]model.DocumentSummary, 0, len(res.Items)), Total: res.Total}
	for _, d := range res.Items {
		out.Documents = append(out.Documents, d.Summary())
	}
	return out, nil
}

// Get returns a document by ID.
func (s *verificationService) Get(ctx context.Context, id int64) (*model.Document, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *verificationService) Statistics(ctx context.Context) (*model.Statistics, error) {
	c, err := s.repo.Counts(ctx)
	if err != nil {
		return nil, err
	}
	st := stats.FromCounts(c)
	return &st, nil
}

func (s *verificationService) FileURL(ctx context.Context, id int64) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if s.store == nil || doc.StoragePath == "" {
		return "", ErrNotArchived
	}
	url, err := s.store.PresignGet(ctx, doc.StoragePath, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return url, nil
}

// objectKey builds documents/<hash>/<uuid><ext>.
func objectKey(hash, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join("documents", hash, uuid.NewString()+ext)
}

func countAnalyzed(results []dispatch.Result) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}
