package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuoteRecord is one issued quote as stored
type QuoteRecord struct {
	ID             string          `json:"id" db:"id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	Probability    float64         `json:"probability" db:"probability"`
	BaseKBM        float64         `json:"base_kbm" db:"base_kbm"`
	RecommendedKBM float64         `json:"recommended_kbm" db:"recommended_kbm"`
	FinalKBM       float64         `json:"final_kbm" db:"final_kbm"`
	Adjustments    []string        `json:"adjustments" db:"adjustments"`
	Tariff         float64         `json:"tariff" db:"tariff"`
	TelemetryPath  string          `json:"telemetry_path,omitempty" db:"telemetry_path"`
	ModelName      string          `json:"model_name" db:"model_name"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
}

// QuotePage is one page of stored quotes, newest first
type QuotePage struct {
	Quotes []QuoteRecord `json:"quotes"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// NewQuoteID returns a fresh quote identifier
func NewQuoteID() string {
	return uuid.New().String()
}
