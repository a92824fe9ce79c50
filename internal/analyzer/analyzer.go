// Package analyzer talks to the external document analysis collaborator.
package analyzer

import (
	"context"
	"errors"

	"docverify/internal/model"
)

var (
	// ErrMalformedResponse means the collaborator answered 2xx with a body that does
	// not match the verdict contract.
	ErrMalformedResponse = errors.New("malformed analysis response")
	// ErrCollaborator means the collaborator reported a failure (non-2xx).
	ErrCollaborator = errors.New("analysis collaborator error")
)

// Payload is one document handed to the collaborator.
type Payload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Analyzer produces a verdict for a single document.
type Analyzer interface {
	Analyze(ctx context.Context, p Payload) (*model.Verdict, error)
}
