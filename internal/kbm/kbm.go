// Package kbm adjusts a bonus-malus coefficient by predicted claim risk.
package kbm

import (
	"fmt"
	"math"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
)

const (
	// MinCoefficient and MaxCoefficient bound every coefficient this package returns
	MinCoefficient = 0.46
	MaxCoefficient = 3.92

	DefaultAvgProba = 0.3
	DefaultBeta     = 1.5

	// FaultPenalty multiplies the coefficient when telemetry reports a fault code
	FaultPenalty = 1.5
)

// Adjuster scales a base coefficient around the portfolio's average claim probability
type Adjuster struct {
	AvgProba float64
	Beta     float64
}

// NewAdjuster returns an adjuster with the default sensitivity
func NewAdjuster() Adjuster {
	return Adjuster{AvgProba: DefaultAvgProba, Beta: DefaultBeta}
}

// Adjust returns base × (1 + Beta × (proba − AvgProba)), clipped to the coefficient
// bounds and rounded to 2 decimals. Any finite input is accepted.
func (a Adjuster) Adjust(base, proba float64) (float64, error) {
	if !finite(base) {
		return 0, apperrors.NewInvalidCoefficientError(fmt.Sprintf("base coefficient %v is not finite", base))
	}
	if !finite(proba) {
		return 0, apperrors.NewInvalidCoefficientError(fmt.Sprintf("probability %v is not finite", proba))
	}

	adjusted := base * (1 + a.Beta*(proba-a.AvgProba))
	return bound(adjusted), nil
}

// Adjust uses the default adjuster
func Adjust(base, proba float64) (float64, error) {
	return NewAdjuster().Adjust(base, proba)
}

// ApplyFaultPenalty raises an adjusted coefficient by FaultPenalty.
// It is applied after Adjust, never before.
func ApplyFaultPenalty(coef float64) (float64, error) {
	if !finite(coef) {
		return 0, apperrors.NewInvalidCoefficientError(fmt.Sprintf("coefficient %v is not finite", coef))
	}
	return bound(coef * FaultPenalty), nil
}

// InBounds reports whether coef lies within the coefficient bounds
func InBounds(coef float64) bool {
	return coef >= MinCoefficient && coef <= MaxCoefficient
}

func bound(x float64) float64 {
	x = math.Max(MinCoefficient, math.Min(MaxCoefficient, x))
	return math.Round(x*100) / 100
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
