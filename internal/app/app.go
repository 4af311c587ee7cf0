package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"skolar/internal/auth"
	"skolar/internal/config"
	"skolar/internal/database"
	"skolar/internal/domain"
	"skolar/internal/events"
	"skolar/internal/export"
	"skolar/internal/logging"
	"skolar/internal/remote"
	"skolar/internal/repository"
	"skolar/internal/service"
	"skolar/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App owns every long-lived dependency of the process.
type App struct {
	Config   *config.Config
	Logger   *zerolog.Logger
	DB       *database.DB
	Redis    *redis.Client
	Remote   *remote.Client
	Tokens   *auth.TokenProvider
	Events   *events.EventBus
	Engine   *worker.SyncEngine
	Bookings *service.BookingService
	Backups  *database.BackupService
	Exporter *export.PendingExporter

	logCloser io.Closer
}

// New loads config from path and wires the application.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewFromConfig(cfg)
}

func NewFromConfig(cfg *config.Config) (*App, error) {
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Config: cfg, Logger: baseLogger, logCloser: closer}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(baseLogger, "database"),
		database.WithBusyTimeout(cfg.Database.BusyTimeoutMS))
	if err != nil {
		baseLogger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		_ = a.Close()
		return nil, err
	}
	a.DB = db

	a.Redis = initRedis(cfg, baseLogger)

	guard, err := newSyncGuard(cfg, a.Redis, baseLogger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Remote = remote.NewClient(cfg.Remote, baseLogger)
	if a.Redis != nil && cfg.Remote.TutorsCacheTTL > 0 {
		a.Remote.UseRedisCache(a.Redis, time.Duration(cfg.Remote.TutorsCacheTTL)*time.Second)
	}

	a.Tokens = auth.NewTokenProvider(cfg.Auth, auth.NewSession(cfg.Auth.UserID), baseLogger)
	a.Events = events.NewEventBus()
	subscribeEventLog(a.Events, logging.Component(baseLogger, "events"))

	a.Engine = worker.NewSyncEngine(db, guard, a.Events, baseLogger)
	a.Bookings = service.NewBookingService(db, a.Remote, a.Tokens, a.Engine, a.Events,
		logging.Component(baseLogger, "bookings"))
	a.Backups = database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(baseLogger, "backup"))
	a.Exporter = export.NewPendingExporter(db, cfg.Exports.Path, logging.Component(baseLogger, "export"))

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var firstErr error
	if a.Redis != nil {
		if err := repository.Close(a.Redis); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func newSyncGuard(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) (domain.SyncGuard, error) {
	ttl := time.Duration(cfg.Sync.GuardTTLSeconds) * time.Second
	guardLogger := logging.Component(logger, "sync-guard")

	switch cfg.Sync.Guard {
	case config.GuardRedis:
		if client == nil {
			return nil, fmt.Errorf("sync guard %q needs a reachable redis", cfg.Sync.Guard)
		}
		return repository.NewRedisSyncGuard(client, cfg.Sync.GuardKey, ttl, guardLogger), nil
	case config.GuardFailover:
		memory := repository.NewMemorySyncGuard()
		if client == nil {
			logger.Warn().Msg("redis unavailable, sync guard is process-local")
			return memory, nil
		}
		primary := repository.NewRedisSyncGuard(client, cfg.Sync.GuardKey, ttl, guardLogger)
		return repository.NewFailoverSyncGuard(primary, memory, guardLogger), nil
	default:
		return repository.NewMemorySyncGuard(), nil
	}
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	logEvent := func(e *events.Event) error {
		logger.Debug().Str("event", e.Type).RawJSON("payload", e.Payload).Msg("event")
		return nil
	}
	for _, t := range []string{
		events.EventBookingCreated,
		events.EventBookingQueued,
		events.EventBookingSynced,
		events.EventSyncCompleted,
	} {
		bus.Subscribe(t, logEvent)
	}
}
