// Package premium multiplies a baseline tariff by its rating coefficients.
package premium

import (
	"math"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/ZanzyTHEbar/kbm-risk/internal/kbm"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseTariff            = 2000.0
	DefaultUnlimitedDriversCoeff = 1.8
)

// Factors are the inputs of one premium calculation
type Factors struct {
	BaseTariff       float64 `json:"base_tariff"`
	Region           float64 `json:"region_coeff"`
	EnginePower      float64 `json:"engine_power_coeff"`
	AgeExperience    float64 `json:"age_exp_coeff"`
	FinalKBM         float64 `json:"final_kbm"`
	UnlimitedDrivers bool    `json:"unlimited_drivers"`
	Season           float64 `json:"season_coeff"`
}

// Result is the premium with every coefficient that produced it
type Result struct {
	BaseTariff    float64 `json:"base_tariff"`
	Region        float64 `json:"region_coeff"`
	EnginePower   float64 `json:"engine_power_coeff"`
	AgeExperience float64 `json:"age_exp_coeff"`
	FinalKBM      float64 `json:"final_kbm"`
	KO            float64 `json:"ko_coeff"`
	Season        float64 `json:"season_coeff"`
	Tariff        float64 `json:"tariff"`
	Display       string  `json:"tariff_display"`

	amount decimal.Decimal
}

// Amount returns the tariff as an exact decimal
func (r Result) Amount() decimal.Decimal { return r.amount }

// Assembler computes premiums for one driver at a time
type Assembler struct {
	UnlimitedDriversCoeff float64
}

// NewAssembler returns an assembler with the standard multi-driver coefficient
func NewAssembler() Assembler {
	return Assembler{UnlimitedDriversCoeff: DefaultUnlimitedDriversCoeff}
}

// Assemble multiplies the base tariff by the region, engine power, age/experience,
// final KBM, driver-count and season coefficients and rounds to 2 decimals.
func (a Assembler) Assemble(f Factors) (Result, error) {
	if !finite(f.BaseTariff) || f.BaseTariff <= 0 {
		return Result{}, apperrors.NewInvalidTariffError("base_tariff", f.BaseTariff)
	}
	if !finite(f.FinalKBM) || !kbm.InBounds(f.FinalKBM) {
		return Result{}, apperrors.NewInvalidTariffError("final_kbm", f.FinalKBM)
	}

	ko := 1.0
	if f.UnlimitedDrivers {
		ko = a.UnlimitedDriversCoeff
	}

	coefficients := []struct {
		name  string
		value float64
	}{
		{"region_coeff", f.Region},
		{"engine_power_coeff", f.EnginePower},
		{"age_exp_coeff", f.AgeExperience},
		{"ko_coeff", ko},
		{"season_coeff", f.Season},
	}

	product := decimal.NewFromFloat(f.BaseTariff).Mul(decimal.NewFromFloat(f.FinalKBM))
	for _, c := range coefficients {
		if !finite(c.value) || c.value <= 0 {
			return Result{}, apperrors.NewInvalidTariffError(c.name, c.value)
		}
		product = product.Mul(decimal.NewFromFloat(c.value))
	}
	product = product.Round(2)

	return Result{
		BaseTariff:    f.BaseTariff,
		Region:        f.Region,
		EnginePower:   f.EnginePower,
		AgeExperience: f.AgeExperience,
		FinalKBM:      f.FinalKBM,
		KO:            ko,
		Season:        f.Season,
		Tariff:        product.InexactFloat64(),
		Display:       product.StringFixed(2),
		amount:        product,
	}, nil
}

// Assemble uses the default assembler
func Assemble(baseTariff, region, enginePower, ageExperience, finalKBM float64, unlimitedDrivers bool, season float64) (Result, error) {
	return NewAssembler().Assemble(Factors{
		BaseTariff:       baseTariff,
		Region:           region,
		EnginePower:      enginePower,
		AgeExperience:    ageExperience,
		FinalKBM:         finalKBM,
		UnlimitedDrivers: unlimitedDrivers,
		Season:           season,
	})
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
