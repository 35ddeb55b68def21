package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"snowgate/internal/query"
	"snowgate/internal/snow"
	"snowgate/internal/stream"
	"snowgate/pkg/logging/logging"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var tableNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// QueryService is the slice of *query.Service the handlers use.
type QueryService interface {
	Paginated(ctx context.Context, req query.Request) (*query.PageResult, error)
	Search(ctx context.Context, group, state string, page, pageSize int) (*query.PageResult, error)
	EstimateCount(ctx context.Context, entity, group, state string) (int, error)
}

// WarmTrigger is the slice of *warmer.Warmer the handlers use.
type WarmTrigger interface {
	WarmAll(ctx context.Context) error
	Status() (inProgress, completed bool)
}

// TicketsHandler serves the paginated ticket query endpoints.
type TicketsHandler struct {
	Query  QueryService
	Warmer WarmTrigger
	// Streams is set only with the memory backend; the peek endpoint
	// is a dev convenience, Redis consumers read streams directly.
	Streams *stream.MemoryLog
}

func NewTicketsHandler(q QueryService, w WarmTrigger, streams *stream.MemoryLog) *TicketsHandler {
	return &TicketsHandler{
		Query:   q,
		Warmer:  w,
		Streams: streams,
	}
}

// Tickets handles GET /v1/tickets/{table}.
func (h *TicketsHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	table := chi.URLParam(r, "table")
	if !tableNamePattern.MatchString(table) {
		writeError(w, http.StatusBadRequest, "invalid table name")
		return
	}

	req := query.Request{
		Entity:   table,
		Group:    r.URL.Query().Get("group"),
		State:    r.URL.Query().Get("state"),
		Page:     intParam(r, "page", 1),
		PageSize: clampPageSize(intParam(r, "page_size", defaultPageSize)),
	}

	res, err := h.Query.Paginated(ctx, req)
	if err != nil {
		h.writeQueryError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /v1/search across the configured tables.
func (h *TicketsHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	res, err := h.Query.Search(ctx,
		r.URL.Query().Get("group"),
		r.URL.Query().Get("state"),
		intParam(r, "page", 1),
		clampPageSize(intParam(r, "page_size", defaultPageSize)),
	)
	if err != nil {
		h.writeQueryError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Estimate handles GET /v1/tickets/{table}/estimate.
func (h *TicketsHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	table := chi.URLParam(r, "table")
	if !tableNamePattern.MatchString(table) {
		writeError(w, http.StatusBadRequest, "invalid table name")
		return
	}

	estimate, err := h.Query.EstimateCount(ctx, table,
		r.URL.Query().Get("group"),
		r.URL.Query().Get("state"),
	)
	if err != nil {
		h.writeQueryError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"estimate": estimate})
}

// Warm handles POST /v1/cache/warm. The sweep runs detached from the
// request; repeated triggers are no-ops once one sweep has run.
func (h *TicketsHandler) Warm(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	inProgress, completed := h.Warmer.Status()
	if !inProgress && !completed {
		go func() {
			if err := h.Warmer.WarmAll(context.WithoutCancel(r.Context())); err != nil {
				logger.Warn("warm sweep aborted", zap.Error(err))
			}
		}()
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{
		"in_progress": inProgress,
		"completed":   completed,
	})
}

// WarmStatus handles GET /v1/cache/warm.
func (h *TicketsHandler) WarmStatus(w http.ResponseWriter, r *http.Request) {
	inProgress, completed := h.Warmer.Status()
	writeJSON(w, http.StatusOK, map[string]bool{
		"in_progress": inProgress,
		"completed":   completed,
	})
}

// StreamEvents handles GET /v1/streams/{name}.
func (h *TicketsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.Streams == nil {
		writeError(w, http.StatusNotFound, "stream peek unavailable on this backend")
		return
	}
	writeJSON(w, http.StatusOK, h.Streams.Events(chi.URLParam(r, "name")))
}

func (h *TicketsHandler) writeQueryError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var authErr *snow.AuthError
	var bizErr *snow.BusinessError

	switch {
	case errors.As(err, &authErr):
		logger.Warn("query auth failure", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "upstream authentication failed")
	case errors.As(err, &bizErr):
		logger.Warn("query rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, bizErr.Body)
	default:
		logger.Error("query failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream query failed")
	}
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func clampPageSize(v int) int {
	if v > maxPageSize {
		return maxPageSize
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
