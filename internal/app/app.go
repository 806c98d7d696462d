package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/config"
	"github.com/RubachokBoss/learning-platform/internal/delivery/httpd"
	"github.com/RubachokBoss/learning-platform/internal/delivery/ws"
	"github.com/RubachokBoss/learning-platform/internal/middleware"
	"github.com/RubachokBoss/learning-platform/internal/repository"
	"github.com/RubachokBoss/learning-platform/internal/service"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
	"github.com/RubachokBoss/learning-platform/internal/store"
	"github.com/RubachokBoss/learning-platform/internal/subscription"
	"github.com/RubachokBoss/learning-platform/internal/worker"
	"github.com/RubachokBoss/learning-platform/internal/worker/queue"
	"github.com/RubachokBoss/learning-platform/pkg/logger"
)

const requestTimeout = 60 * time.Second

type App struct {
	server             *http.Server
	logger             zerolog.Logger
	config             *config.Config
	db                 *sql.DB
	cache              repository.CacheRepository
	changeListener     *repository.ChangeListener
	subscriptions      *subscription.Manager
	notificationWorker worker.NotificationWorker
	publisher          integration.EventPublisher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	badgerDB, err := repository.OpenBadger(cfg.Cache.Dir, cfg.Cache.InMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}
	cache := repository.NewCacheRepository(badgerDB, logger.Component(log, "cache"))

	recordRepo := repository.NewRecordRepository(db, logger.Component(log, "primary"))

	var secondary repository.RecordStore
	if cfg.Secondary.URL != "" {
		secondary = integration.NewRecordClient(
			cfg.Secondary.URL,
			cfg.Secondary.RecordsEndpoint,
			cfg.Secondary.Token,
			cfg.Secondary.Timeout,
			cfg.Secondary.RetryCount,
			cfg.Secondary.RetryDelay,
			logger.Component(log, "secondary"),
		)
	} else {
		log.Info().Msg("No secondary record endpoint configured")
	}

	facade := store.NewFacade(recordRepo, secondary, cache, cfg.Breaker, logger.Component(log, "store"))

	changeListener := repository.NewChangeListener(
		cfg.Database.DSN(),
		cfg.Subscriptions.NotifyChannel,
		cfg.Subscriptions.MinReconnect,
		cfg.Subscriptions.MaxReconnect,
		logger.Component(log, "listener"),
	)
	subscriptions := subscription.NewManager(
		changeListener,
		facade,
		cfg.Subscriptions.BufferSize,
		logger.Component(log, "subscriptions"),
	)

	linker, err := newBlobLinker(cfg.MinIO, log)
	if err != nil {
		cache.Close()
		return nil, err
	}

	notificationService := service.NewNotificationService(facade, log)
	workerPool := worker.NewWorkerPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize, logger.Component(log, "workers"))

	// Events go through the broker when it is reachable; otherwise they are handled in process.
	var (
		publisher          integration.EventPublisher
		notificationWorker worker.NotificationWorker
	)
	rabbitmqClient, err := integration.NewRabbitMQClient(
		cfg.RabbitMQ.URL,
		cfg.RabbitMQ.Exchange,
		cfg.RabbitMQ.QueueName,
		integration.NotificationBindings,
		log,
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to RabbitMQ, notifications will be produced in process")
		notificationWorker = worker.NewNotificationWorker(workerPool, nil, notificationService, facade, logger.Component(log, "notifications"))
		publisher = integration.NewLocalPublisher(notificationWorker.HandleEvent, log)
	} else {
		consumer := queue.NewRabbitMQConsumer(
			rabbitmqClient.Channel(),
			rabbitmqClient.Queue(),
			cfg.RabbitMQ.ConsumerName,
			cfg.Workers.PoolSize,
			log,
		)
		notificationWorker = worker.NewNotificationWorker(workerPool, consumer, notificationService, facade, logger.Component(log, "notifications"))
		publisher = rabbitmqClient
	}

	conversationService := service.NewConversationService(facade, publisher, cfg.Messaging, log)
	assignmentService := service.NewAssignmentService(facade, publisher, log)
	sessionService := service.NewSessionService(facade, publisher, cfg.Sessions.MeetingBaseURL, log)
	contentService := service.NewContentService(facade, linker, publisher, log)

	liveHandler := ws.NewHandler(subscriptions, cfg.CORS.AllowedOrigins, logger.Component(log, "live"))

	if cfg.Secondary.Token == "" {
		log.Info().Msg("No instance token configured, raw record endpoints will reject every caller")
	}

	handler := httpd.NewHandler(
		recordRepo,
		cfg.Secondary.Token,
		conversationService,
		assignmentService,
		sessionService,
		contentService,
		notificationService,
		auth.NewHeaderResolver(),
		liveHandler,
		log,
	)

	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(middleware.NewCORS(cfg.CORS))
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateLimitWindow))

	router.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:             server,
		logger:             log,
		config:             cfg,
		db:                 db,
		cache:              cache,
		changeListener:     changeListener,
		subscriptions:      subscriptions,
		notificationWorker: notificationWorker,
		publisher:          publisher,
	}, nil
}

func newBlobLinker(cfg config.MinIOConfig, log zerolog.Logger) (integration.BlobLinker, error) {
	if !cfg.Enabled {
		log.Info().Msg("Blob storage disabled, file references are served as stored")
		return integration.NewDirectLinker(), nil
	}

	linker, err := integration.NewMinIOLinker(
		cfg.Endpoint,
		cfg.AccessKey,
		cfg.SecretKey,
		cfg.Bucket,
		cfg.UseSSL,
		cfg.LinkExpiry,
		logger.Component(log, "blobs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob storage client: %w", err)
	}
	return linker, nil
}

// Run starts the background components and serves HTTP until Shutdown.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.changeListener.Run(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Change listener stopped")
		}
	}()
	go func() {
		defer a.wg.Done()
		if err := a.subscriptions.Run(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Subscription manager stopped")
		}
	}()

	if err := a.notificationWorker.Start(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start notification worker")
		return err
	}

	a.logger.Info().Msgf("Starting learning platform on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down learning platform...")

	serverErr := a.server.Shutdown(ctx)

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.notificationWorker.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop notification worker")
	}

	if err := a.publisher.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close event publisher")
	}

	if err := a.cache.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close local cache")
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	return serverErr
}
