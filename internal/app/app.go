package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/klubbweb/matchcenter/external/matchfeed"
	"github.com/klubbweb/matchcenter/external/webhook"
	"github.com/klubbweb/matchcenter/internal/config"
	"github.com/klubbweb/matchcenter/internal/domain/archive"
	"github.com/klubbweb/matchcenter/internal/infrastructure/repository/memory"
	"github.com/klubbweb/matchcenter/internal/infrastructure/repository/postgres"
	"github.com/klubbweb/matchcenter/internal/interfaces/httpapi"
	"github.com/klubbweb/matchcenter/internal/platform/cache"
	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/platform/pubsub"
	"github.com/klubbweb/matchcenter/internal/platform/resilience"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

// App bundles everything that needs starting and stopping: the HTTP server,
// the feed service loops, and the optional upstream stream.
type App struct {
	Server      *http.Server
	FeedService *usecase.FeedService
	Stream      *matchfeed.Stream

	hub    *pubsub.Hub
	cursor *matchfeed.CursorStore
	db     *sqlx.DB
	logger *logging.Logger
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	hub, err := pubsub.NewHub(cfg.NotifyEvery, cfg.FanoutWorkers)
	if err != nil {
		return nil, fmt.Errorf("create fan-out hub: %w", err)
	}

	feedClient := matchfeed.NewClient(matchfeed.ClientConfig{
		BaseURL:    cfg.FeedBaseURL,
		PollPath:   cfg.FeedPollPath,
		Timeout:    cfg.FeedTimeout,
		MaxRetries: cfg.FeedMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.FeedCircuitEnabled,
			FailureThreshold: cfg.FeedCircuitFailureCount,
			OpenTimeout:      cfg.FeedCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.FeedCircuitHalfOpenMax,
		},
	})

	feedService := usecase.NewFeedService(
		logger,
		feedClient,
		cache.NewStore(cfg.CacheTTL),
		hub,
		usecase.FeedServiceConfig{
			CacheTTL:      cfg.CacheTTL,
			Retention:     cfg.Retention,
			CleanupEvery:  cfg.CleanupEvery,
			FallbackEvery: cfg.FallbackEvery,
		},
	)

	application := &App{
		FeedService: feedService,
		hub:         hub,
		logger:      logger,
	}

	var archiveRepo archive.Repository
	if cfg.DBEnabled {
		db, err := otelsqlx.Open("postgres", cfg.DBURL,
			otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
			otelsql.WithQueryFormatter(formatDBQueryForTrace),
		)
		if err != nil {
			application.Close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		application.db = db
		archiveRepo = postgres.NewArchiveRepository(db)
	} else {
		archiveRepo = memory.NewArchiveRepository()
	}
	feedService.WithArchive(archiveRepo)

	if cfg.WebhookEnabled {
		feedService.WithNotifier(webhook.NewPublisher(webhook.PublisherConfig{
			TargetURL: cfg.WebhookURL,
			Secret:    cfg.WebhookSecret,
			Timeout:   cfg.WebhookTimeout,
		}, logger))
	}

	if cfg.StreamEnabled {
		cursor, err := matchfeed.OpenCursorStore(cfg.StreamCursorPath)
		if err != nil {
			application.Close()
			return nil, fmt.Errorf("open stream cursor: %w", err)
		}
		application.cursor = cursor

		stream, err := matchfeed.NewStream(matchfeed.StreamConfig{
			URL:    cfg.StreamURL,
			Logger: logger,
			Cursor: cursor,
		}, feedService)
		if err != nil {
			application.Close()
			return nil, fmt.Errorf("create stream: %w", err)
		}
		application.Stream = stream
	}

	handler := httpapi.NewHandler(feedService, archiveRepo, logger)
	matchStream := httpapi.NewMatchStream(feedService, logger)
	router := httpapi.NewRouter(handler, matchStream, logger, cfg.CORSAllowedOrigins)

	application.Server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return application, nil
}

// Run starts the background loops and blocks until the context is cancelled.
// The HTTP server is started separately by the caller.
func (a *App) Run(ctx context.Context) {
	if a.Stream != nil {
		go a.Stream.Run(ctx)
	}

	// Warm the snapshot before consumers arrive; a failure here is logged
	// and retried by the fallback loop.
	if _, err := a.FeedService.Refresh(ctx, true); err != nil {
		a.logger.WarnContext(ctx, "initial snapshot fetch failed", "error", err)
	}

	a.FeedService.Run(ctx)
}

func (a *App) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.cursor != nil {
		_ = a.cursor.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
