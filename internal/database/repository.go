package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
)

// MaxPageSize bounds ListQuotes
const MaxPageSize = 100

// Repository stores and retrieves issued quotes
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveQuote inserts q, assigning an ID and timestamp when missing
func (r *Repository) SaveQuote(ctx context.Context, q *QuoteRecord) error {
	return r.SaveQuotes(ctx, []*QuoteRecord{q})
}

// SaveQuotes inserts all quotes in one transaction. Either every quote is stored or none is.
func (r *Repository) SaveQuotes(ctx context.Context, quotes []*QuoteRecord) error {
	if len(quotes) == 0 {
		return nil
	}

	stmt, err := r.db.GetPreparedStatement(stmtInsertQuote)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStmt := tx.StmtContext(ctx, stmt)
	for _, q := range quotes {
		args, err := insertArgs(q)
		if err != nil {
			return err
		}
		if _, err := txStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to save quote %s: %w", q.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quotes: %w", err)
	}
	return nil
}

func insertArgs(q *QuoteRecord) ([]any, error) {
	if q.ID == "" {
		q.ID = NewQuoteID()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	// stored as text, so one zone keeps ordering lexical
	q.CreatedAt = q.CreatedAt.UTC()

	adjustments := q.Adjustments
	if adjustments == nil {
		adjustments = []string{}
	}
	adjJSON, err := json.Marshal(adjustments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode adjustments: %w", err)
	}

	payload := q.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	return []any{
		q.ID, q.CreatedAt, q.Probability, q.BaseKBM, q.RecommendedKBM, q.FinalKBM,
		string(adjJSON), q.Tariff, nullString(q.TelemetryPath), q.ModelName, string(payload),
	}, nil
}

// GetQuote returns the quote with the given ID
func (r *Repository) GetQuote(ctx context.Context, id string) (*QuoteRecord, error) {
	stmt, err := r.db.GetPreparedStatement(stmtGetQuote)
	if err != nil {
		return nil, err
	}

	q, err := scanQuote(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("quote", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	return q, nil
}

// ListQuotes returns a page of quotes, newest first
func (r *Repository) ListQuotes(ctx context.Context, limit, offset int) (*QuotePage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	countStmt, err := r.db.GetPreparedStatement(stmtCountQuotes)
	if err != nil {
		return nil, err
	}
	var total int
	if err := countStmt.QueryRowContext(ctx).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count quotes: %w", err)
	}

	listStmt, err := r.db.GetPreparedStatement(stmtListQuotes)
	if err != nil {
		return nil, err
	}
	rows, err := listStmt.QueryContext(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	page := &QuotePage{Quotes: []QuoteRecord{}, Total: total, Limit: limit, Offset: offset}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		page.Quotes = append(page.Quotes, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quotes: %w", err)
	}

	return page, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuote(s scanner) (*QuoteRecord, error) {
	var (
		q         QuoteRecord
		adjJSON   string
		telemetry sql.NullString
		payload   string
	)

	err := s.Scan(
		&q.ID, &q.CreatedAt, &q.Probability, &q.BaseKBM, &q.RecommendedKBM, &q.FinalKBM,
		&adjJSON, &q.Tariff, &telemetry, &q.ModelName, &payload,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(adjJSON), &q.Adjustments); err != nil {
		return nil, fmt.Errorf("failed to decode adjustments: %w", err)
	}
	q.TelemetryPath = telemetry.String
	q.Payload = json.RawMessage(payload)

	return &q, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
