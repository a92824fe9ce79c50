// Package stats derives summary statistics from verification records.
package stats

import (
	"math"

	"docverify/internal/model"
)

// Counts is a single coherent aggregate read from a store.
type Counts struct {
	Total             int
	Fraud             int
	Genuine           int
	FraudConfidence   float64 // average confidence of FRAUD documents
	GenuineConfidence float64 // average confidence of GENUINE documents
}

// Summarize computes statistics from a full listing of documents.
func Summarize(docs []model.Document) model.Statistics {
	return FromCounts(Count(docs))
}

// Count aggregates docs into Counts.
func Count(docs []model.Document) Counts {
	var c Counts
	var fraudSum, genuineSum float64
	for _, d := range docs {
		c.Total++
		switch d.Status {
		case model.StatusFraud:
			c.Fraud++
			fraudSum += d.Confidence
		case model.StatusGenuine:
			c.Genuine++
			genuineSum += d.Confidence
		}
	}
	if c.Fraud > 0 {
		c.FraudConfidence = fraudSum / float64(c.Fraud)
	}
	if c.Genuine > 0 {
		c.GenuineConfidence = genuineSum / float64(c.Genuine)
	}
	return c
}

// FromCounts turns a store aggregate into a statistics snapshot.
// FraudPercentage is 0 for an empty store.
func FromCounts(c Counts) model.Statistics {
	s := model.Statistics{
		Total:                c.Total,
		Fraud:                c.Fraud,
		Genuine:              c.Genuine,
		AvgFraudConfidence:   round2(c.FraudConfidence),
		AvgGenuineConfidence: round2(c.GenuineConfidence),
	}
	if c.Total > 0 {
		s.FraudPercentage = round2(100 * float64(c.Fraud) / float64(c.Total))
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
