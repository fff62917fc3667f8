// Package quote turns driver records into bonus-malus quotes: feature preparation,
// risk scoring, coefficient adjustment, telemetry penalty and premium assembly.
package quote

import (
	"time"

	"github.com/ZanzyTHEbar/kbm-risk/internal/features"
	"github.com/ZanzyTHEbar/kbm-risk/internal/premium"
	"github.com/ZanzyTHEbar/kbm-risk/internal/telemetry"
)

// AdjustmentDTCFault marks a quote raised because telemetry reported a fault code
const AdjustmentDTCFault = "dtc_fault"

// DefaultBaseKBM is used when a record carries no usable base_kbm
const DefaultBaseKBM = 1.0

// PremiumInput overrides the rating coefficients of one quote. Omitted
// coefficients default to 1.0 and an omitted base tariff to the configured one.
type PremiumInput struct {
	BaseTariff       *float64 `json:"base_tariff,omitempty"`
	Region           *float64 `json:"region_coeff,omitempty"`
	EnginePower      *float64 `json:"engine_power_coeff,omitempty"`
	AgeExperience    *float64 `json:"age_exp_coeff,omitempty"`
	Season           *float64 `json:"season_coeff,omitempty"`
	UnlimitedDrivers bool     `json:"unlimited_drivers"`
}

// Request asks for a quote for one driver
type Request struct {
	Driver        features.Record `json:"driver" binding:"required"`
	TelemetryPath string          `json:"telemetry_path,omitempty"`
	Premium       *PremiumInput   `json:"premium,omitempty"`
}

// BatchRequest asks for quotes for many drivers
type BatchRequest struct {
	Requests []Request `json:"requests" binding:"required"`
}

// Quote is an issued bonus-malus quote
type Quote struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	Probability    float64           `json:"probability"`
	HighRisk       bool              `json:"high_risk"`
	Threshold      float64           `json:"threshold"`
	BaseKBM        float64           `json:"base_kbm"`
	RecommendedKBM float64           `json:"recommended_kbm"`
	FinalKBM       float64           `json:"final_kbm"`
	Adjustments    []string          `json:"adjustments"`
	Premium        premium.Result    `json:"premium"`
	Telemetry      *telemetry.Report `json:"telemetry,omitempty"`
	Model          string            `json:"model"`
}

// BatchResponse holds quotes in request order
type BatchResponse struct {
	Quotes []*Quote `json:"quotes"`
	Count  int      `json:"count"`
}

// Score is a probability-only result
type Score struct {
	Probability float64 `json:"probability"`
	HighRisk    bool    `json:"high_risk"`
	Threshold   float64 `json:"threshold"`
}

// ScoreRequest asks for probabilities only
type ScoreRequest struct {
	Drivers []features.Record `json:"drivers" binding:"required"`
}

// ScoreResponse holds scores in request order
type ScoreResponse struct {
	Scores []Score `json:"scores"`
}

func coefficient(v *float64) float64 {
	if v == nil {
		return 1.0
	}
	return *v
}

func (p *PremiumInput) factors(defaultBaseTariff, finalKBM float64) premium.Factors {
	f := premium.Factors{
		BaseTariff:    defaultBaseTariff,
		Region:        1.0,
		EnginePower:   1.0,
		AgeExperience: 1.0,
		FinalKBM:      finalKBM,
		Season:        1.0,
	}
	if p == nil {
		return f
	}

	if p.BaseTariff != nil {
		f.BaseTariff = *p.BaseTariff
	}
	f.Region = coefficient(p.Region)
	f.EnginePower = coefficient(p.EnginePower)
	f.AgeExperience = coefficient(p.AgeExperience)
	f.Season = coefficient(p.Season)
	f.UnlimitedDrivers = p.UnlimitedDrivers
	return f
}
