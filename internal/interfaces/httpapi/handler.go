package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/klubbweb/matchcenter/internal/domain/archive"
	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

type Handler struct {
	feedService *usecase.FeedService
	archiveRepo archive.Repository
	logger      *logging.Logger
	validator   *validator.Validate
}

func NewHandler(feedService *usecase.FeedService, archiveRepo archive.Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		feedService: feedService,
		archiveRepo: archiveRepo,
		logger:      logger,
		validator:   validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListMatches answers GET /v1/matches. dataType selects the bucket:
// all (default), current, old, or live.
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListMatches")
	defer span.End()

	opts := usecase.QueryOptions{
		DataType: strings.TrimSpace(r.URL.Query().Get("dataType")),
	}
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: limit must be an integer", usecase.ErrInvalidInput))
			return
		}
		opts.Limit = limit
	}
	if err := h.validator.Struct(opts); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err))
		return
	}

	matches, err := h.feedService.Query(ctx, opts)
	if err != nil {
		h.logger.ErrorContext(ctx, "list matches", "error", err)
		writeError(ctx, w, err)
		return
	}
	writeSuccess(ctx, w, http.StatusOK, map[string]any{"matches": matches})
}

// GetSnapshot answers GET /v1/matches/snapshot with the full bucketed view.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetSnapshot")
	defer span.End()

	snap, err := h.feedService.Refresh(ctx, false)
	if err != nil && len(snap.Current) == 0 && len(snap.Old) == 0 {
		h.logger.ErrorContext(ctx, "get snapshot", "error", err)
		writeError(ctx, w, err)
		return
	}
	writeSuccess(ctx, w, http.StatusOK, snap)
}

// ListArchive answers GET /v1/archive. Results come from durable storage and
// cover matches already aged out of the live snapshot.
func (h *Handler) ListArchive(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListArchive")
	defer span.End()

	if h.archiveRepo == nil {
		writeError(ctx, w, fmt.Errorf("%w: archive is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	since := time.Now().AddDate(-1, 0, 0)
	if rawSince := strings.TrimSpace(r.URL.Query().Get("since")); rawSince != "" {
		parsed, err := time.Parse("2006-01-02", rawSince)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: since must be YYYY-MM-DD", usecase.ErrInvalidInput))
			return
		}
		since = parsed
	}

	limit := 100
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 || parsed > 1000 {
			writeError(ctx, w, fmt.Errorf("%w: limit must be between 1 and 1000", usecase.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	records, err := h.archiveRepo.ListSince(ctx, since, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "list archive", "error", err)
		writeError(ctx, w, err)
		return
	}
	writeSuccess(ctx, w, http.StatusOK, map[string]any{"records": records})
}

// ForceRefresh answers POST /v1/internal/refresh by bypassing the cache.
func (h *Handler) ForceRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ForceRefresh")
	defer span.End()

	snap, err := h.feedService.Refresh(ctx, true)
	if err != nil {
		h.logger.ErrorContext(ctx, "force refresh", "error", err)
		writeError(ctx, w, err)
		return
	}
	writeSuccess(ctx, w, http.StatusOK, snap)
}
