package premium

import (
	"encoding/json"
	"math"
	"testing"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble(t *testing.T) {
	tests := []struct {
		name      string
		unlimited bool
		finalKBM  float64
		tariff    float64
		display   string
		ko        float64
	}{
		{"named drivers", false, 1.0, 6048.00, "6048.00", 1.0},
		{"unlimited drivers", true, 1.0, 10886.40, "10886.40", 1.8},
		{"discounted driver", false, 0.46, 2782.08, "2782.08", 1.0},
		{"maximum malus", true, 3.92, 42674.69, "42674.69", 1.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Assemble(2000, 1.8, 1.2, 1.4, tt.finalKBM, tt.unlimited, 1.0)
			require.NoError(t, err)
			assert.Equal(t, tt.tariff, res.Tariff)
			assert.Equal(t, tt.display, res.Display)
			assert.Equal(t, tt.display, res.Amount().StringFixed(2))
			assert.Equal(t, tt.ko, res.KO)
		})
	}
}

func TestAssemble_CustomUnlimitedCoefficient(t *testing.T) {
	a := Assembler{UnlimitedDriversCoeff: 2.0}

	res, err := a.Assemble(Factors{
		BaseTariff:       1000,
		Region:           1,
		EnginePower:      1,
		AgeExperience:    1,
		FinalKBM:         1,
		UnlimitedDrivers: true,
		Season:           0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.Tariff)
	assert.Equal(t, 2.0, res.KO)
}

func TestAssemble_InvalidInput(t *testing.T) {
	valid := Factors{BaseTariff: 2000, Region: 1.8, EnginePower: 1.2, AgeExperience: 1.4, FinalKBM: 1, Season: 1}

	tests := []struct {
		name   string
		mutate func(f *Factors)
		factor string
	}{
		{"zero base", func(f *Factors) { f.BaseTariff = 0 }, "base_tariff"},
		{"negative base", func(f *Factors) { f.BaseTariff = -10 }, "base_tariff"},
		{"nan base", func(f *Factors) { f.BaseTariff = math.NaN() }, "base_tariff"},
		{"negative region", func(f *Factors) { f.Region = -1.8 }, "region_coeff"},
		{"zero power", func(f *Factors) { f.EnginePower = 0 }, "engine_power_coeff"},
		{"infinite age", func(f *Factors) { f.AgeExperience = math.Inf(1) }, "age_exp_coeff"},
		{"zero season", func(f *Factors) { f.Season = 0 }, "season_coeff"},
		{"kbm below floor", func(f *Factors) { f.FinalKBM = 0.3 }, "final_kbm"},
		{"kbm above ceiling", func(f *Factors) { f.FinalKBM = 4.5 }, "final_kbm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)

			_, err := NewAssembler().Assemble(f)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInvalidTariff))
			assert.Contains(t, err.Error(), tt.factor)
		})
	}
}

func TestAssemble_BrokenUnlimitedCoefficient(t *testing.T) {
	a := Assembler{UnlimitedDriversCoeff: 0}

	_, err := a.Assemble(Factors{BaseTariff: 2000, Region: 1, EnginePower: 1, AgeExperience: 1, FinalKBM: 1, UnlimitedDrivers: true, Season: 1})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInvalidTariff))
}

func TestResult_JSON(t *testing.T) {
	res, err := Assemble(2000, 1.8, 1.2, 1.4, 1.0, true, 1.0)
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"base_tariff": 2000,
		"region_coeff": 1.8,
		"engine_power_coeff": 1.2,
		"age_exp_coeff": 1.4,
		"final_kbm": 1,
		"ko_coeff": 1.8,
		"season_coeff": 1,
		"tariff": 10886.4,
		"tariff_display": "10886.40"
	}`, string(data))
}
