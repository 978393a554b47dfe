// Package gateway exposes the listing analysis pipeline over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listing-intel/internal/config"
	"github.com/sells-group/listing-intel/internal/intel"
	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/internal/monitoring"
)

// Analyzer is the pipeline surface the gateway depends on.
type Analyzer interface {
	AnalyzeLeadFromURL(ctx context.Context, url string) (*model.LeadOpportunity, error)
	InFlight() []intel.InFlightInfo
	Stats() *monitoring.Stats
}

// Options configures the router.
type Options struct {
	AllowedOrigins   []string
	RateLimit        config.RateLimitConfig
	BatchConcurrency int
	MaxBatchSize     int
}

// OptionsFromConfig builds router options from the server and rate limit
// sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		RateLimit:        cfg.RateLimit,
		BatchConcurrency: cfg.Server.BatchConcurrency,
		MaxBatchSize:     cfg.Server.MaxBatchSize,
	}
}

// Handler serves the intelligence API.
type Handler struct {
	analyzer Analyzer
	opts     Options
}

// NewRouter returns the HTTP handler for the API.
func NewRouter(a Analyzer, opts Options) http.Handler {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 4
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 25
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := &Handler{analyzer: a, opts: opts}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Route("/api/v1/intelligence", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(opts.RateLimit))
			r.Post("/analyze", h.analyze)
			r.Post("/analyze/batch", h.analyzeBatch)
		})
		r.Get("/inflight", h.inflight)
		r.Get("/stats", h.stats)
	})

	return r
}

type analyzeRequest struct {
	URL string `json:"url"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

// BatchItem is the outcome for one URL of a batch request.
type BatchItem struct {
	URL     string                 `json:"url"`
	Success bool                   `json:"success"`
	Status  int                    `json:"status"`
	Data    *model.LeadOpportunity `json:"data,omitempty"`
	Error   *ErrorBody             `json:"error,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &ErrorBody{Kind: kindInvalidRequest, Message: "invalid request body"})
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, &ErrorBody{Kind: string(intel.KindInvalidURL), Message: "url is required"})
		return
	}

	opp, err := h.analyzer.AnalyzeLeadFromURL(r.Context(), req.URL)
	if err != nil {
		status := StatusFor(err)
		zap.L().Warn("gateway: analyze failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("url", req.URL),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, errorBody(err))
		return
	}
	writeSuccess(w, opp)
}

func (h *Handler) analyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &ErrorBody{Kind: kindInvalidRequest, Message: "invalid request body"})
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, &ErrorBody{Kind: kindInvalidRequest, Message: "urls is required"})
		return
	}
	if len(req.URLs) > h.opts.MaxBatchSize {
		writeError(w, http.StatusBadRequest, &ErrorBody{
			Kind:    kindInvalidRequest,
			Message: "too many urls in batch",
		})
		return
	}

	items := make([]BatchItem, len(req.URLs))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(h.opts.BatchConcurrency)
	for i, u := range req.URLs {
		g.Go(func() error {
			items[i] = h.batchItem(ctx, strings.TrimSpace(u))
			return nil
		})
	}
	_ = g.Wait()

	writeSuccess(w, items)
}

func (h *Handler) batchItem(ctx context.Context, u string) BatchItem {
	item := BatchItem{URL: u}
	opp, err := h.analyzer.AnalyzeLeadFromURL(ctx, u)
	if err != nil {
		item.Status = StatusFor(err)
		item.Error = errorBody(err)
		return item
	}
	item.Success = true
	item.Status = http.StatusOK
	item.Data = opp
	return item
}

func (h *Handler) inflight(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, h.analyzer.InFlight())
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, h.analyzer.Stats().Snapshot())
}
