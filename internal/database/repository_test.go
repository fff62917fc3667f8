package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	q := &QuoteRecord{
		Probability:    0.89,
		BaseKBM:        1.0,
		RecommendedKBM: 1.89,
		FinalKBM:       2.84,
		Adjustments:    []string{"dtc_fault"},
		Tariff:         17176.32,
		TelemetryPath:  "obd/trip.csv",
		ModelName:      "kbm-risk-test",
		Payload:        json.RawMessage(`{"final_kbm":2.84}`),
	}
	require.NoError(t, repo.SaveQuote(ctx, q))
	assert.NotEmpty(t, q.ID)
	assert.False(t, q.CreatedAt.IsZero())

	got, err := repo.GetQuote(ctx, q.ID)
	require.NoError(t, err)

	assert.Equal(t, q.ID, got.ID)
	assert.Equal(t, q.Probability, got.Probability)
	assert.Equal(t, q.FinalKBM, got.FinalKBM)
	assert.Equal(t, []string{"dtc_fault"}, got.Adjustments)
	assert.Equal(t, q.Tariff, got.Tariff)
	assert.Equal(t, "obd/trip.csv", got.TelemetryPath)
	assert.JSONEq(t, `{"final_kbm":2.84}`, string(got.Payload))
	assert.WithinDuration(t, q.CreatedAt, got.CreatedAt, time.Second)
}

func TestRepository_SaveWithoutOptionalFields(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	q := &QuoteRecord{Probability: 0.1, BaseKBM: 1, RecommendedKBM: 0.7, FinalKBM: 0.7, Tariff: 1400, ModelName: "m"}
	require.NoError(t, repo.SaveQuote(ctx, q))

	got, err := repo.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Adjustments)
	assert.Empty(t, got.TelemetryPath)
	assert.JSONEq(t, `{}`, string(got.Payload))
}

func TestRepository_GetMissing(t *testing.T) {
	repo := openTestRepository(t)

	got, err := repo.GetQuote(context.Background(), "no-such-quote")
	assert.Nil(t, got)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

func TestRepository_DuplicateID(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	q := &QuoteRecord{ID: "fixed", ModelName: "m", FinalKBM: 1}
	require.NoError(t, repo.SaveQuote(ctx, q))

	dup := &QuoteRecord{ID: "fixed", ModelName: "m", FinalKBM: 1}
	assert.Error(t, repo.SaveQuote(ctx, dup))
}

func TestRepository_SaveQuotes(t *testing.T) {
	tests := []struct {
		name      string
		ids       []string
		wantErr   bool
		wantTotal int
	}{
		{"whole batch stored", []string{"a", "b", "c"}, false, 3},
		{"empty batch", nil, false, 0},
		{"duplicate rolls back the batch", []string{"a", "b", "a"}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := openTestRepository(t)
			ctx := context.Background()

			quotes := make([]*QuoteRecord, 0, len(tt.ids))
			for _, id := range tt.ids {
				quotes = append(quotes, &QuoteRecord{ID: id, ModelName: "m", FinalKBM: 1})
			}

			err := repo.SaveQuotes(ctx, quotes)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			page, err := repo.ListQuotes(ctx, 10, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, page.Total)
		})
	}
}

func TestRepository_SaveQuotesAfterRollback(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	require.Error(t, repo.SaveQuotes(ctx, []*QuoteRecord{
		{ID: "x", ModelName: "m", FinalKBM: 1},
		{ID: "x", ModelName: "m", FinalKBM: 1},
	}))

	q := &QuoteRecord{ID: "x", ModelName: "m", FinalKBM: 1}
	require.NoError(t, repo.SaveQuotes(ctx, []*QuoteRecord{q}))

	got, err := repo.GetQuote(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.FinalKBM)
}

func TestRepository_ListQuotes(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.SaveQuote(ctx, &QuoteRecord{
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			FinalKBM:  float64(i + 1),
			ModelName: "m",
		}))
	}

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantKBM   []float64
		wantLimit int
	}{
		{"first page", 2, 0, []float64{5, 4}, 2},
		{"second page", 2, 2, []float64{3, 2}, 2},
		{"tail", 2, 4, []float64{1}, 2},
		{"past the end", 2, 10, []float64{}, 2},
		{"default limit", 0, 0, []float64{5, 4, 3, 2, 1}, MaxPageSize},
		{"negative offset", 1, -3, []float64{5}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.ListQuotes(ctx, tt.limit, tt.offset)
			require.NoError(t, err)

			assert.Equal(t, 5, page.Total)
			assert.Equal(t, tt.wantLimit, page.Limit)

			got := make([]float64, 0, len(page.Quotes))
			for _, q := range page.Quotes {
				got = append(got, q.FinalKBM)
			}
			assert.Equal(t, tt.wantKBM, got)
		})
	}
}

func TestDB_PoolStats(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "quotes.db"))
	require.NoError(t, err)
	defer db.Close()

	stats := db.GetPoolStats()
	assert.Equal(t, 4, stats["max_open_connections"])

	_, err = db.GetPreparedStatement("missing")
	assert.Error(t, err)
}
