package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/kbm-risk/internal/database"
	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/ZanzyTHEbar/kbm-risk/internal/features"
	"github.com/ZanzyTHEbar/kbm-risk/internal/kbm"
	"github.com/ZanzyTHEbar/kbm-risk/internal/model"
	"github.com/ZanzyTHEbar/kbm-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/kbm-risk/internal/premium"
	"github.com/ZanzyTHEbar/kbm-risk/internal/resilience"
	"github.com/ZanzyTHEbar/kbm-risk/internal/telemetry"
)

// Classifier scores prepared feature vectors
type Classifier interface {
	Predict(v features.Vector) (model.Prediction, error)
	Info() model.Info
}

// Store keeps issued quotes
type Store interface {
	SaveQuotes(ctx context.Context, quotes []*database.QuoteRecord) error
	GetQuote(ctx context.Context, id string) (*database.QuoteRecord, error)
	ListQuotes(ctx context.Context, limit, offset int) (*database.QuotePage, error)
}

// Options tune the pipeline
type Options struct {
	Adjuster          kbm.Adjuster
	Assembler         premium.Assembler
	DefaultBaseTariff float64
	Concurrency       int
	MaxBatchSize      int
	// StoreRetry retries quote writes; zero MaxAttempts means storeRetry()
	StoreRetry resilience.RetryConfig
	// TracerProvider defaults to the otel global
	TracerProvider trace.TracerProvider
}

// storeRetry retries writes sqlite rejected while another connection held the lock
func storeRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.Retryable = database.IsBusy
	return cfg
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		Adjuster:          kbm.NewAdjuster(),
		Assembler:         premium.NewAssembler(),
		DefaultBaseTariff: premium.DefaultBaseTariff,
		Concurrency:       8,
		MaxBatchSize:      500,
		StoreRetry:        storeRetry(),
	}
}

// Service issues quotes
type Service struct {
	preparer   *features.Preparer
	classifier Classifier
	inspector  *telemetry.Inspector
	store      Store
	logger     *monitoring.Logger
	metrics    *monitoring.Metrics
	tracer     trace.Tracer
	opts       Options
}

// NewService wires the pipeline. store may be nil, in which case quotes are not kept.
func NewService(classifier Classifier, inspector *telemetry.Inspector, store Store, logger *monitoring.Logger, metrics *monitoring.Metrics, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxBatchSize < 1 {
		opts.MaxBatchSize = 1
	}
	if opts.StoreRetry.MaxAttempts == 0 {
		opts.StoreRetry = storeRetry()
	}
	if inspector == nil {
		inspector = telemetry.NewInspector("")
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Service{
		preparer:   features.NewPreparer(),
		classifier: classifier,
		inspector:  inspector,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		tracer:     opts.TracerProvider.Tracer("github.com/ZanzyTHEbar/kbm-risk/quote"),
		opts:       opts,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Model describes the loaded classifier
func (s *Service) Model() model.Info {
	return s.classifier.Info()
}

// Quote issues a quote for one driver
func (s *Service) Quote(ctx context.Context, req Request) (*Quote, error) {
	quotes, err := s.QuoteBatch(ctx, []Request{req})
	if err != nil {
		return nil, err
	}
	return quotes[0], nil
}

// QuoteBatch issues quotes for many drivers. Missing numeric attributes are imputed
// from the whole batch; scoring then runs in parallel and results keep request order.
// Any failing driver fails the batch.
func (s *Service) QuoteBatch(ctx context.Context, reqs []Request) (quotes []*Quote, err error) {
	ctx, span := s.tracer.Start(ctx, "quote.batch", trace.WithAttributes(attribute.Int("batch.size", len(reqs))))
	defer func() { endSpan(span, err) }()

	if err := s.checkBatch(len(reqs)); err != nil {
		return nil, err
	}

	start := time.Now()

	records := make([]features.Record, len(reqs))
	for i, r := range reqs {
		if r.Driver == nil {
			return nil, apperrors.NewMalformedInputError(i, "driver", "is missing")
		}
		records[i] = r.Driver
	}

	vectors, err := s.preparer.Prepare(records)
	if err != nil {
		return nil, err
	}

	reports, err := s.inspectAll(ctx, reqs)
	if err != nil {
		return nil, err
	}

	quotes = make([]*Quote, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i := range reqs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			q, err := s.build(reqs[i], vectors[i], reports[reqs[i].TelemetryPath])
			if err != nil {
				return err
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.save(ctx, reqs, quotes); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	faults := 0
	for _, q := range quotes {
		fault := len(q.Adjustments) > 0
		if fault {
			faults++
		}
		if s.metrics != nil {
			s.metrics.RecordQuote(q.Probability, q.FinalKBM, fault)
		}
		if s.logger != nil {
			s.logger.QuoteLogger(q.ID, q.Probability, q.RecommendedKBM, q.FinalKBM, q.Adjustments, elapsed, false)
		}
	}
	span.SetAttributes(attribute.Int("quote.fault_penalties", faults))

	return quotes, nil
}

// Score returns claim probabilities only
func (s *Service) Score(ctx context.Context, drivers []features.Record) (scores []Score, err error) {
	ctx, span := s.tracer.Start(ctx, "quote.score", trace.WithAttributes(attribute.Int("batch.size", len(drivers))))
	defer func() { endSpan(span, err) }()

	if err := s.checkBatch(len(drivers)); err != nil {
		return nil, err
	}

	vectors, err := s.preparer.Prepare(drivers)
	if err != nil {
		return nil, err
	}

	scores = make([]Score, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i := range vectors {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pred, err := s.classifier.Predict(vectors[i])
			if err != nil {
				return apperrors.NewInternalError("scoring failed", err)
			}
			scores[i] = Score{Probability: pred.Probability, HighRisk: pred.HighRisk, Threshold: pred.Threshold}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return scores, nil
}

// Get returns a previously issued quote
func (s *Service) Get(ctx context.Context, id string) (*Quote, error) {
	if s.store == nil {
		return nil, apperrors.NewNotFoundError("quote", id)
	}

	rec, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}

	var q Quote
	if err := json.Unmarshal(rec.Payload, &q); err != nil {
		return nil, apperrors.NewInternalError("stored quote is unreadable", err)
	}
	return &q, nil
}

// List returns a page of issued quotes, newest first
func (s *Service) List(ctx context.Context, limit, offset int) (*database.QuotePage, error) {
	if s.store == nil {
		return &database.QuotePage{Quotes: []database.QuoteRecord{}, Limit: limit, Offset: offset}, nil
	}
	return s.store.ListQuotes(ctx, limit, offset)
}

func (s *Service) checkBatch(n int) error {
	if n == 0 {
		return apperrors.NewValidationError("at least one driver is required")
	}
	if n > s.opts.MaxBatchSize {
		return apperrors.NewValidationError(fmt.Sprintf("batch of %d exceeds the limit of %d", n, s.opts.MaxBatchSize))
	}
	return nil
}

type inspection struct {
	report telemetry.Report
	err    error
}

// inspectAll reads each distinct telemetry file once
func (s *Service) inspectAll(ctx context.Context, reqs []Request) (map[string]*inspection, error) {
	paths := make([]string, 0)
	seen := make(map[string]bool)
	for _, r := range reqs {
		if r.TelemetryPath != "" && !seen[r.TelemetryPath] {
			seen[r.TelemetryPath] = true
			paths = append(paths, r.TelemetryPath)
		}
	}

	results := make([]*inspection, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, span := s.tracer.Start(gctx, "telemetry.inspect", trace.WithAttributes(attribute.String("telemetry.path", path)))
			report, err := s.inspector.Inspect(path)
			endSpan(span, err)
			results[i] = &inspection{report: report, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*inspection, len(paths))
	for i, path := range paths {
		out[path] = results[i]
		if results[i].err != nil && s.logger != nil {
			s.logger.TelemetryLogger(path, results[i].err)
		}
	}
	return out, nil
}

func (s *Service) build(req Request, v features.Vector, in *inspection) (*Quote, error) {
	pred, err := s.classifier.Predict(v)
	if err != nil {
		return nil, apperrors.NewInternalError("scoring failed", err)
	}

	base, ok := req.Driver.Number("base_kbm")
	if !ok {
		base = DefaultBaseKBM
	}

	recommended, err := s.opts.Adjuster.Adjust(base, pred.Probability)
	if err != nil {
		return nil, err
	}

	final := recommended
	adjustments := []string{}
	var report *telemetry.Report

	outcome := monitoring.TelemetryNone
	if in != nil {
		r := in.report
		report = &r
		switch {
		case in.err != nil:
			outcome = monitoring.TelemetryDegraded
		case r.Fault:
			outcome = monitoring.TelemetryFault
			final, err = kbm.ApplyFaultPenalty(recommended)
			if err != nil {
				return nil, err
			}
			adjustments = append(adjustments, AdjustmentDTCFault)
		default:
			outcome = monitoring.TelemetryClean
		}
	}
	if s.metrics != nil {
		s.metrics.RecordTelemetry(outcome)
	}

	result, err := s.opts.Assembler.Assemble(req.Premium.factors(s.opts.DefaultBaseTariff, final))
	if err != nil {
		return nil, err
	}

	return &Quote{
		ID:             database.NewQuoteID(),
		CreatedAt:      time.Now().UTC(),
		Probability:    pred.Probability,
		HighRisk:       pred.HighRisk,
		Threshold:      pred.Threshold,
		BaseKBM:        base,
		RecommendedKBM: recommended,
		FinalKBM:       final,
		Adjustments:    adjustments,
		Premium:        result,
		Telemetry:      report,
		Model:          s.classifier.Info().Name,
	}, nil
}

func (s *Service) save(ctx context.Context, reqs []Request, quotes []*Quote) error {
	if s.store == nil {
		return nil
	}

	records := make([]*database.QuoteRecord, len(quotes))
	for i, q := range quotes {
		payload, err := json.Marshal(q)
		if err != nil {
			return apperrors.NewInternalError("failed to encode quote", err)
		}

		records[i] = &database.QuoteRecord{
			ID:             q.ID,
			CreatedAt:      q.CreatedAt,
			Probability:    q.Probability,
			BaseKBM:        q.BaseKBM,
			RecommendedKBM: q.RecommendedKBM,
			FinalKBM:       q.FinalKBM,
			Adjustments:    q.Adjustments,
			Tariff:         q.Premium.Tariff,
			TelemetryPath:  reqs[i].TelemetryPath,
			ModelName:      q.Model,
			Payload:        payload,
		}
	}

	// one transaction per batch
	start := time.Now()
	err := resilience.Retry(ctx, s.opts.StoreRetry, func(ctx context.Context) error {
		return s.store.SaveQuotes(ctx, records)
	})
	if s.logger != nil {
		s.logger.StoreLogger("save_quotes", time.Since(start), err)
	}
	if err != nil {
		return apperrors.NewInternalError("failed to store quotes", err)
	}
	return nil
}
