package repository

import (
	"encoding/json"
	"fmt"

	"docverify/internal/model"
)

// EncodeAnalysis serializes the analysis column. Reasons are always an array.
func EncodeAnalysis(a model.Analysis) ([]byte, error) {
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return b, nil
}

// DecodeAnalysis parses the analysis column written by EncodeAnalysis.
func DecodeAnalysis(b []byte) (model.Analysis, error) {
	a := model.Analysis{Reasons: []string{}}
	if len(b) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return model.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	return a, nil
}
