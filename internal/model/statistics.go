package model

// Statistics is a derived snapshot of the store; it is never persisted.
type Statistics struct {
	Total                int     `json:"total"`
	Fraud                int     `json:"fraud"`
	Genuine              int     `json:"genuine"`
	FraudPercentage      float64 `json:"fraud_percentage"`
	AvgFraudConfidence   float64 `json:"avg_fraud_confidence"`
	AvgGenuineConfidence float64 `json:"avg_genuine_confidence"`
}
