package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docverify/internal/config"
	"docverify/internal/model"
)

// maxResponseBytes caps how much of a collaborator response is read.
const maxResponseBytes = 1 << 20

// verdictResponse is the wire shape returned by the collaborator.
type verdictResponse struct {
	IsFraud    bool           `json:"is_fraud"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"reasons"`
	Features   model.Features `json:"features"`
	TextLength *int           `json:"text_length"`
}

// HTTPAnalyzer calls the collaborator's POST /analyze endpoint with the raw document
// bytes and validates the JSON verdict it returns.
type HTTPAnalyzer struct {
	endpoint string
	client   *http.Client
	schema   *jsonschema.Schema
	logger   *slog.Logger
}

// NewHTTP builds an HTTPAnalyzer for cfg.BaseURL. The transport is instrumented
// with OpenTelemetry; per-call deadlines come from the caller's context.
func NewHTTP(cfg config.AnalyzerConfig, logger *slog.Logger) (*HTTPAnalyzer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("analyzer url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileSchema(verdictSchema)
	if err != nil {
		return nil, err
	}
	return &HTTPAnalyzer{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/analyze",
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		schema:   schema,
		logger:   logger,
	}, nil
}

var _ Analyzer = (*HTTPAnalyzer)(nil)

// Analyze sends one document and returns the collaborator's verdict.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, p Payload) (*model.Verdict, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(p.Content))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", p.ContentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Filename", p.Filename)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("analyzer.http.send_error", "filename", p.Filename, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			a.logger.Warn("analyzer.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	a.logger.Info("analyzer.http.response",
		"filename", p.Filename,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d", ErrCollaborator, resp.StatusCode)
	}
	return a.decode(raw)
}

func (a *HTTPAnalyzer) decode(raw []byte) (*model.Verdict, error) {
	if err := validateJSON(a.schema, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var vr verdictResponse
	if err := json.Unmarshal(raw, &vr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	status := model.StatusGenuine
	if vr.IsFraud {
		status = model.StatusFraud
	}
	reasons := vr.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &model.Verdict{
		Status:     status,
		Confidence: vr.Confidence,
		Analysis: model.Analysis{
			Reasons:    reasons,
			Features:   vr.Features,
			TextLength: vr.TextLength,
		},
	}, nil
}
