package api

import (
	"errors"
	"time"

	models "PriceFlow/internal/domain/models"
	domrepo "PriceFlow/internal/domain/repository"
	"PriceFlow/internal/usecase"
	"PriceFlow/pkg/cache"
	xhttp "PriceFlow/pkg/http"
	xlogger "PriceFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PricesHandler serves the operational read API over the aggregates
// the consumer maintains, plus polling job management.
type PricesHandler struct {
	logger   *xlogger.Logger
	store    domrepo.AggregateStore
	cache    cache.Service
	jobs     *usecase.JobManager
	cacheTTL time.Duration
}

func NewPricesHandler(logger *xlogger.Logger, store domrepo.AggregateStore, c cache.Service, jobs *usecase.JobManager, cacheTTL time.Duration) *PricesHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &PricesHandler{logger: logger, store: store, cache: c, jobs: jobs, cacheTTL: cacheTTL}
}

func (h *PricesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/prices/:symbol/average", h.Average)
	g.GET("/prices/:symbol/recent", h.Recent)
	g.POST("/poll", h.StartPoll)
	g.GET("/poll/:id", h.PollStatus)
	e.GET("/healthz", h.Health)
}

// Average returns the latest moving average for a symbol, preferring
// the cache the consumer writes through on every event.
func (h *PricesHandler) Average(c echo.Context) error {
	req := &models.AverageRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	if h.cache != nil {
		var rec models.MovingAverageRecord
		if err := h.cache.Get(ctx, "avg:"+req.Symbol, &rec); err == nil {
			return xhttp.SuccessResponse(c, &rec)
		}
	}

	rec, err := h.store.MovingAverage(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no average for symbol %s", req.Symbol))
		}
		h.logger.Error("moving average lookup failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, "avg:"+req.Symbol, rec, h.cacheTTL)
	}
	return xhttp.SuccessResponse(c, rec)
}

// Recent returns the newest stored samples for a symbol. Supports
// ?limit= and ?since= (RFC3339 or unix seconds) query filters.
func (h *PricesHandler) Recent(c echo.Context) error {
	req := &models.AverageRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 5)
	if limit < 1 || limit > 100 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("limit must be between 1 and 100"))
	}
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Time{})

	points, err := h.store.RecentPrices(ctx, req.Symbol, limit)
	if err != nil {
		h.logger.Error("recent prices lookup failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if !since.IsZero() {
		filtered := points[:0]
		for _, p := range points {
			if !p.Timestamp.Before(since) {
				filtered = append(filtered, p)
			}
		}
		points = filtered
	}

	return xhttp.SuccessResponse(c, &xhttp.ListDataResponse{Rows: points, Total: int64(len(points))})
}

// StartPoll accepts a polling job and starts it in the background.
func (h *PricesHandler) StartPoll(c echo.Context) error {
	req := &models.PollRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.jobs.Submit(c.Request().Context(), req)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(verr.Error()))
		}
		h.logger.Error("poll job submit failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	return xhttp.CreatedResponse(c, &models.PollResponse{
		JobID:  job.ID,
		Status: job.Status,
		Config: map[string]interface{}{
			"symbols":  job.Symbols,
			"interval": job.Interval.String(),
			"provider": job.Provider,
		},
	})
}

// PollStatus reports the state of a polling job.
func (h *PricesHandler) PollStatus(c echo.Context) error {
	id := c.Param("id")
	job, err := h.jobs.Job(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", id))
		}
		h.logger.Error("poll job lookup failed", xlogger.String("job_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, job)
}

// Health reports store connectivity.
func (h *PricesHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("store unavailable: %v", err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

var _ xhttp.Handler = (*PricesHandler)(nil)
