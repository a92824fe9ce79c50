package intake

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"docverify/internal/model"
)

// Rejection reasons reported per file.
const (
	ReasonUnsupportedType = "unsupported_type"
	ReasonTooLarge        = "too_large"
	ReasonEmptyFile       = "empty_file"
)

// extensionTypes maps file extensions to the content type assumed when the client
// did not declare one.
var extensionTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"pdf":  "application/pdf",
}

// ValidationError describes why a single file was rejected at intake.
type ValidationError struct {
	Filename string
	Reason   string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Message)
}

// Rejection pairs a rejected upload with its validation error.
type Rejection struct {
	Upload model.RawUpload
	Err    *ValidationError
}

// Intake validates uploaded batches against a content-type allow-list and a size limit.
// It holds no mutable state and is safe for concurrent use.
type Intake struct {
	maxBytes int64
	allowed  map[string]struct{}
}

// New creates an Intake. maxBytes <= 0 disables the size check.
func New(maxBytes int64, allowedContentTypes []string) *Intake {
	allowed := make(map[string]struct{}, len(allowedContentTypes))
	for _, ct := range allowedContentTypes {
		allowed[normalizeContentType(ct)] = struct{}{}
	}
	return &Intake{maxBytes: maxBytes, allowed: allowed}
}

// MaxBytes returns the per-file size limit.
func (in *Intake) MaxBytes() int64 {
	return in.maxBytes
}

// Accept partitions files into accepted and rejected entries.
// Every input lands in exactly one of the two outputs, in input order.
// Accepted uploads carry their resolved content type.
func (in *Intake) Accept(files []model.RawUpload) ([]model.RawUpload, []Rejection) {
	accepted := make([]model.RawUpload, 0, len(files))
	var rejected []Rejection

	for _, f := range files {
		ct := ResolveContentType(f.ContentType, f.Filename)
		if verr := in.validate(f, ct); verr != nil {
			rejected = append(rejected, Rejection{Upload: f, Err: verr})
			continue
		}
		f.ContentType = ct
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

func (in *Intake) validate(f model.RawUpload, ct string) *ValidationError {
	if _, ok := in.allowed[ct]; !ok {
		declared := ct
		if declared == "" {
			declared = "unknown"
		}
		return &ValidationError{
			Filename: f.Filename,
			Reason:   ReasonUnsupportedType,
			Message:  fmt.Sprintf("file type not allowed: %s", declared),
		}
	}
	if f.Size <= 0 {
		return &ValidationError{
			Filename: f.Filename,
			Reason:   ReasonEmptyFile,
			Message:  "file is empty",
		}
	}
	if in.maxBytes > 0 && f.Size > in.maxBytes {
		return &ValidationError{
			Filename: f.Filename,
			Reason:   ReasonTooLarge,
			Message:  fmt.Sprintf("file size %d exceeds limit of %d bytes", f.Size, in.maxBytes),
		}
	}
	return nil
}

// ResolveContentType normalizes the declared content type. When nothing useful was
// declared it falls back to the file extension.
func ResolveContentType(declared, filename string) string {
	ct := normalizeContentType(declared)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if byExt, ok := extensionTypes[ext]; ok {
		return byExt
	}
	return ct
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(ct)
}

// SanitizeFilename reduces a client supplied name to a safe display name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "document"
	}
	return out
}
