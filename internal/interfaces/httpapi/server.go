package httpapi

import (
	"net/http"

	"github.com/klubbweb/matchcenter/internal/platform/logging"
)

func NewRouter(
	handler *Handler,
	stream *MatchStream,
	logger *logging.Logger,
	corsAllowedOrigins []string,
) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("GET /v1/matches", handler.ListMatches)
	mux.HandleFunc("GET /v1/matches/snapshot", handler.GetSnapshot)
	mux.HandleFunc("GET /v1/archive", handler.ListArchive)
	mux.HandleFunc("POST /v1/internal/refresh", handler.ForceRefresh)
	if stream != nil {
		mux.HandleFunc("GET /v1/matches/ws", stream.ServeWS)
	}

	return RequestTracing(RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux))))
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(ctx, "panic recovered", "panic", rec)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
