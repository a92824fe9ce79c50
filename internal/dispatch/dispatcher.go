// Package dispatch fans a batch of accepted uploads out to the analysis collaborator.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"docverify/internal/analyzer"
	"docverify/internal/metrics"
	"docverify/internal/model"
)

// Failure reasons attached to AnalysisError.
const (
	ReasonReadError         = "read_error"
	ReasonTimeout           = "timeout"
	ReasonCanceled          = "canceled"
	ReasonMalformedResponse = "malformed_response"
	ReasonCollaboratorError = "collaborator_error"
)

// AnalysisError is the failure of a single document's analysis.
type AnalysisError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %s: %v", e.Filename, e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Result is the outcome for one upload. Exactly one of Outcome and Err is set.
type Result struct {
	Upload  model.RawUpload
	Outcome *model.Outcome
	Err     *AnalysisError
}

// Dispatcher runs analyses on a bounded pool of workers per batch.
type Dispatcher struct {
	analyzer analyzer.Analyzer
	workers  int
	timeout  time.Duration
	maxBytes int64
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Dispatcher)

// WithWorkers bounds concurrent collaborator calls per batch.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithTimeout sets the deadline of each collaborator call.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithMaxBytes caps how many bytes are read from an upload.
func WithMaxBytes(n int64) Option {
	return func(d *Dispatcher) {
		d.maxBytes = n
	}
}

// WithRateLimit throttles outbound calls across all batches. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(d *Dispatcher) {
		if rps <= 0 {
			d.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher around a.
func New(a analyzer.Analyzer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		analyzer: a,
		workers:  4,
		timeout:  60 * time.Second,
		logger:   slog.Default(),
		tracer:   otel.Tracer("docverify/dispatch"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch analyzes every upload and returns one Result per input, in input order.
// A failing item never affects its siblings. Items not yet started when ctx is
// cancelled are reported as canceled.
func (d *Dispatcher) Dispatch(ctx context.Context, uploads []model.RawUpload) []Result {
	results := make([]Result, len(uploads))
	if len(uploads) == 0 {
		return results
	}

	workers := d.workers
	if workers > len(uploads) {
		workers = len(uploads)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = d.process(ctx, uploads[i])
			}
		}()
	}
	for i := range uploads {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (d *Dispatcher) process(ctx context.Context, u model.RawUpload) (res Result) {
	res.Upload = u
	fail := func(reason string, err error) Result {
		res.Err = &AnalysisError{Filename: u.Filename, Reason: reason, Err: err}
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("analysis_panic", "filename", u.Filename, "panic", fmt.Sprint(r))
			res.Outcome = nil
			res.Err = &AnalysisError{Filename: u.Filename, Reason: ReasonCollaboratorError, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return fail(ReasonCanceled, err)
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.analyze", trace.WithAttributes(
		attribute.String("document.filename", u.Filename),
		attribute.String("document.content_type", u.ContentType),
		attribute.Int64("document.size", u.Size),
	))
	defer span.End()

	content, err := readUpload(u, d.maxBytes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ReasonReadError)
		return fail(ReasonReadError, err)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fail(classify(err), err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	start := time.Now()
	verdict, err := d.analyzer.Analyze(callCtx, analyzer.Payload{
		Filename:    u.Filename,
		ContentType: u.ContentType,
		Content:     content,
	})
	elapsed := time.Since(start)
	cancel()

	if err == nil {
		err = checkVerdict(verdict)
	}
	if err != nil {
		reason := classify(err)
		d.metrics.ObserveAnalysis(reason, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		d.logger.Warn("analysis_failed",
			"filename", u.Filename,
			"reason", reason,
			"error", err.Error(),
			"elapsed_ms", elapsed.Milliseconds(),
		)
		return fail(reason, err)
	}

	d.metrics.ObserveAnalysis("ok", elapsed)
	span.SetAttributes(
		attribute.String("verdict.status", string(verdict.Status)),
		attribute.Float64("verdict.confidence", verdict.Confidence),
	)

	sum := sha256.Sum256(content)
	res.Outcome = &model.Outcome{
		Upload:   u,
		FileHash: hex.EncodeToString(sum[:]),
		Content:  content,
		Verdict:  *verdict,
	}
	return res
}

// checkVerdict guards the store against analyzers that skip response validation.
func checkVerdict(v *model.Verdict) error {
	if v == nil {
		return fmt.Errorf("%w: empty verdict", analyzer.ErrMalformedResponse)
	}
	if !v.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", analyzer.ErrMalformedResponse, v.Status)
	}
	if v.Confidence < 0 || v.Confidence > 100 {
		return fmt.Errorf("%w: confidence %v out of range", analyzer.ErrMalformedResponse, v.Confidence)
	}
	return nil
}

func classify(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	case errors.Is(err, analyzer.ErrMalformedResponse):
		return ReasonMalformedResponse
	default:
		return ReasonCollaboratorError
	}
}

func readUpload(u model.RawUpload, maxBytes int64) ([]byte, error) {
	if u.Open == nil {
		return nil, errors.New("upload has no content")
	}
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if maxBytes > 0 && int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxBytes)
	}
	return b, nil
}
