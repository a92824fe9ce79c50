package model

import (
	"io"
	"time"
)

// Status is the verdict assigned to a document by the analysis collaborator.
type Status string

const (
	StatusGenuine Status = "GENUINE"
	StatusFraud   Status = "FRAUD"
)

// Valid reports whether s is one of the known verdicts.
func (s Status) Valid() bool {
	return s == StatusGenuine || s == StatusFraud
}

// Features holds the image measurements reported by the collaborator.
// A nil field means the collaborator could not compute it.
type Features struct {
	Sharpness   *float64 `json:"sharpness,omitempty"`
	Contrast    *float64 `json:"contrast,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`
	EdgeDensity *float64 `json:"edge_density,omitempty"`
}

// Analysis is the structured part of a verdict.
type Analysis struct {
	Reasons    []string `json:"reasons"`
	Features   Features `json:"features"`
	TextLength *int     `json:"text_length,omitempty"`
}

// Verdict is what the analysis collaborator returns for one document.
type Verdict struct {
	Status     Status
	Confidence float64
	Analysis   Analysis
}

// Document is one analyzed upload and its verdict.
// It is a pure domain model with no database-specific dependencies or tags.
// ID and UploadDate are assigned by the store on insert and never change.
type Document struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	FileHash    string    `json:"file_hash"`
	StoragePath string    `json:"storage_path,omitempty"`
	UploadDate  time.Time `json:"upload_date"`
	Status      Status    `json:"status"`
	Confidence  float64   `json:"confidence"`
	Analysis    Analysis  `json:"analysis"`
}

// DocumentSummary is the listing projection of a Document.
type DocumentSummary struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"upload_date"`
	Status     Status    `json:"status"`
	Confidence float64   `json:"confidence"`
}

// Summary projects d onto the listing fields.
func (d Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:         d.ID,
		Filename:   d.Filename,
		UploadDate: d.UploadDate,
		Status:     d.Status,
		Confidence: d.Confidence,
	}
}

// RawUpload is one file of an incoming batch before validation.
// Index is the file's position in the batch and is carried through every stage.
type RawUpload struct {
	Index       int
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Outcome is a successfully analyzed upload that is ready to be persisted.
type Outcome struct {
	Upload   RawUpload
	FileHash string
	Content  []byte
	Verdict  Verdict
}
