package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/trace"

	_ "github.com/ZanzyTHEbar/kbm-risk/docs"
	"github.com/ZanzyTHEbar/kbm-risk/internal/cache"
	"github.com/ZanzyTHEbar/kbm-risk/internal/database"
	"github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/ZanzyTHEbar/kbm-risk/internal/middleware"
	"github.com/ZanzyTHEbar/kbm-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/kbm-risk/internal/quote"
	"github.com/ZanzyTHEbar/kbm-risk/internal/ratelimit"
	"github.com/ZanzyTHEbar/kbm-risk/internal/security"
)

const version = "1.0.0"

// server holds everything the HTTP handlers need
type server struct {
	service    *quote.Service
	db         *database.DB
	redis      *ratelimit.RedisClient
	limiter    *ratelimit.RateLimiter
	cache      *cache.Cache
	compressor *middleware.Compressor
	security   *security.Middleware
	metrics    *monitoring.Metrics
	logger     *monitoring.Logger
	tracing    trace.TracerProvider
}

func respondError(c *gin.Context, err error) {
	appErr := errors.ToAppError(err)
	errors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()

	r.Use(errors.RecoveryHandler())
	if s.tracing != nil {
		r.Use(monitoring.TracingMiddleware(s.tracing))
	}
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger, s.security.Config().MaxBodyBytes))
	r.Use(errors.ErrorHandler())

	r.Use(s.security.Headers())
	r.Use(s.security.CORS())
	r.Use(s.security.RequestTimeout())
	r.Use(s.security.LimitBody())
	r.Use(s.security.ValidateContentType())
	r.Use(s.limiter.IPRateLimitMiddleware("/health", "/metrics/prometheus"))
	if s.compressor != nil {
		r.Use(s.compressor.Handler())
	}
	r.Use(s.cache.Middleware(s.metrics, s.logger, "/quote", "/score"))

	r.GET("/health", s.health)

	r.POST("/quote", s.createQuote)
	r.POST("/quote/batch", s.createQuoteBatch)
	r.POST("/score", s.score)
	r.GET("/quotes", s.listQuotes)
	r.GET("/quotes/:id", s.getQuote)
	r.GET("/model", s.modelInfo)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/metrics", func(c *gin.Context) {
		stats := s.metrics.GetStats()
		stats["rate_limiter"] = s.limiter.GetStats()
		if s.db != nil {
			stats["store_pool"] = s.db.GetPoolStats()
		}
		if s.compressor != nil {
			stats["compression"] = s.compressor.GetStats()
		}
		c.JSON(http.StatusOK, stats)
	})
	r.GET("/metrics/prometheus", gin.WrapH(s.metrics.Handler()))

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.cache.Stats())
	})

	return r
}

// health godoc
// @Summary      Service health
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["store"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "disabled"
	}

	// the limiter falls back to memory, so an unreachable Redis never fails the check
	checks["redis"] = s.redis.Status(ctx)

	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
		"model":     s.service.Model(),
		"checks":    checks,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}

	c.JSON(status, body)
}

// createQuote godoc
// @Summary      Quote one driver
// @Description  Scores the driver, adjusts the bonus-malus coefficient, applies the telemetry fault penalty and assembles the premium.
// @Tags         quotes
// @Accept       json
// @Produce      json
// @Param        request  body      quote.Request  true  "Driver record"
// @Success      200      {object}  quote.Quote
// @Failure      400      {object}  errors.AppError
// @Failure      429      {object}  errors.AppError
// @Router       /quote [post]
func (s *server) createQuote(c *gin.Context) {
	var req quote.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("invalid quote request", err.Error()))
		return
	}

	q, err := s.service.Quote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

// createQuoteBatch godoc
// @Summary      Quote many drivers
// @Description  Missing numeric attributes are imputed with medians of the whole batch. Quotes keep request order.
// @Tags         quotes
// @Accept       json
// @Produce      json
// @Param        request  body      quote.BatchRequest  true  "Driver records"
// @Success      200      {object}  quote.BatchResponse
// @Failure      400      {object}  errors.AppError
// @Router       /quote/batch [post]
func (s *server) createQuoteBatch(c *gin.Context) {
	var req quote.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("invalid batch request", err.Error()))
		return
	}

	quotes, err := s.service.QuoteBatch(c.Request.Context(), req.Requests)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote.BatchResponse{Quotes: quotes, Count: len(quotes)})
}

// score godoc
// @Summary      Claim probabilities only
// @Tags         quotes
// @Accept       json
// @Produce      json
// @Param        request  body      quote.ScoreRequest  true  "Driver records"
// @Success      200      {object}  quote.ScoreResponse
// @Failure      400      {object}  errors.AppError
// @Router       /score [post]
func (s *server) score(c *gin.Context) {
	var req quote.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("invalid score request", err.Error()))
		return
	}

	scores, err := s.service.Score(c.Request.Context(), req.Drivers)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote.ScoreResponse{Scores: scores})
}

// getQuote godoc
// @Summary      Issued quote by ID
// @Tags         quotes
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  quote.Quote
// @Failure      404  {object}  errors.AppError
// @Router       /quotes/{id} [get]
func (s *server) getQuote(c *gin.Context) {
	q, err := s.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

// listQuotes godoc
// @Summary      Issued quotes, newest first
// @Tags         quotes
// @Produce      json
// @Param        limit   query     int  false  "Page size (max 100)"
// @Param        offset  query     int  false  "Offset"
// @Success      200     {object}  database.QuotePage
// @Failure      400     {object}  errors.AppError
// @Router       /quotes [get]
func (s *server) listQuotes(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := s.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// modelInfo godoc
// @Summary      Loaded risk model
// @Tags         system
// @Produce      json
// @Success      200  {object}  model.Info
// @Router       /model [get]
func (s *server) modelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Model())
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewValidationError(name + " must be a non-negative integer")
	}
	return n, nil
}
