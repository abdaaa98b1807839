package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/services"
)

const (
	maxRequestBody    = 64 << 10
	maxQuestionLength = 1000
)

// AskRequest is the POST /api/query body.
type AskRequest struct {
	Question   string `json:"question"`
	JSONOutput bool   `json:"json_output,omitempty"`
	RowLimit   int    `json:"row_limit,omitempty"`
}

// HistoryResponse is the GET /api/history body.
type HistoryResponse struct {
	Entries []*models.QueryHistoryEntry `json:"entries"`
	Total   int                         `json:"total"`
}

// QueryHandler answers questions over HTTP.
type QueryHandler struct {
	queries services.QueryService
	history services.QueryHistoryService
	logger  *zap.Logger
}

// NewQueryHandler creates a query handler. history may be nil, in which case
// the history route reports 404.
func NewQueryHandler(queries services.QueryService, history services.QueryHistoryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		queries: queries,
		history: history,
		logger:  logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Ask)
	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("GET /api/history/stats", h.HistoryStats)
	mux.HandleFunc("GET /api/history/{id}", h.HistoryEntry)
}

// Ask handles POST /api/query.
// The body is always a ResultEnvelope; the status code follows its error kind.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := DecodeJSON(w, r, maxRequestBody, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with a question")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}
	if len(req.Question) > maxQuestionLength {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "question is too long")
		return
	}
	if req.RowLimit < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "row_limit must not be negative")
		return
	}

	env := h.queries.ProcessQuestion(r.Context(), req.Question, models.QueryOptions{
		JSONOutput: req.JSONOutput,
		RowLimit:   req.RowLimit,
	})

	if err := WriteJSON(w, StatusForKind(apperrors.Kind(env.ErrorKind)), env); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// History handles GET /api/history?limit=N&target=T&failed=true&since=RFC3339.
func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "history_disabled", "Query history is not enabled")
		return
	}

	q := r.URL.Query()
	filters := models.QueryHistoryFilters{Target: q.Get("target")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		filters.Limit = n
	}
	if v := q.Get("failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_failed", "failed must be true or false")
			return
		}
		filters.OnlyFailed = b
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_since", "since must be an RFC3339 timestamp")
			return
		}
		filters.Since = &since
	}

	entries, total, err := h.history.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list query history", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list query history")
		return
	}
	if entries == nil {
		entries = []*models.QueryHistoryEntry{}
	}

	if err := WriteJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Total: total}); err != nil {
		h.logger.Error("Failed to encode history response", zap.Error(err))
	}
}

// HistoryStats handles GET /api/history/stats?since=RFC3339.
func (h *QueryHandler) HistoryStats(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "history_disabled", "Query history is not enabled")
		return
	}

	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_since", "since must be an RFC3339 timestamp")
			return
		}
		since = &t
	}

	stats, err := h.history.Stats(r.Context(), since)
	if err != nil {
		h.logger.Error("Failed to summarize query history", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to summarize query history")
		return
	}

	if err := WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("Failed to encode history stats", zap.Error(err))
	}
}

// HistoryEntry handles GET /api/history/{id}.
func (h *QueryHandler) HistoryEntry(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "history_disabled", "Query history is not enabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "id must be a UUID")
		return
	}

	entry, err := h.history.Get(r.Context(), id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "No history entry with that id")
		return
	case err != nil:
		h.logger.Error("Failed to read query history", zap.String("id", id.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read query history")
		return
	}

	if err := WriteJSON(w, http.StatusOK, entry); err != nil {
		h.logger.Error("Failed to encode history entry", zap.Error(err))
	}
}

func (h *QueryHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
