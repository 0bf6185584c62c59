package wire

import (
	"context"
	"fmt"

	"candidnotes/internal/chat"
	"candidnotes/internal/common"
	"candidnotes/internal/config"
	"candidnotes/internal/dbmongo"
	"candidnotes/internal/dbmysql"
	"candidnotes/internal/events"
	"candidnotes/internal/health"
	"candidnotes/internal/logging"
	"candidnotes/internal/memstore"
	"candidnotes/internal/notif"
	"candidnotes/internal/presence"
	"candidnotes/internal/realtime"
	"candidnotes/internal/ws"

	"github.com/sirupsen/logrus"
)

func ProvideConfig() (*config.Config, error) {
	return config.LoadConfig()
}

func ProvideLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logging.New(cfg.Logging)
}

// ProvideStore opens the backend named by STORE_DRIVER.
func ProvideStore(cfg *config.Config, logger *logrus.Logger) (common.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, err := dbmongo.NewMongoConnection(cfg)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
		defer cancel()
		if err := client.EnsureIndexes(ctx); err != nil {
			_ = client.Close(context.Background())
			return nil, err
		}
		logger.Infof("Connected to MongoDB database %s", cfg.MongoDB.Database)
		return dbmongo.NewStore(client), nil

	case config.DriverMySQL:
		db, err := dbmysql.NewMySQL(cfg, logger)
		if err != nil {
			return nil, err
		}
		return dbmysql.NewStore(db), nil

	case config.DriverMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		return memstore.New(), nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
	}
}

// ProvidePublisher connects to NATS when NATS_URL is set.
func ProvidePublisher(cfg *config.Config, logger *logrus.Logger) (common.Publisher, error) {
	if cfg.NATS.URL == "" {
		logger.Info("NATS not configured, domain events disabled")
		return events.Noop{}, nil
	}

	conn, err := events.Connect(cfg.NATS)
	if err != nil {
		return nil, err
	}
	return events.NewNATSPublisher(conn, cfg.NATS, logger), nil
}

// ProvideTracker uses Redis when REDIS_ADDR is set, otherwise the local
// registry.
func ProvideTracker(cfg *config.Config, registry *realtime.Registry, logger *logrus.Logger) (presence.Tracker, error) {
	if cfg.Redis.Addr == "" {
		return presence.NewLocalTracker(registry), nil
	}

	client, err := presence.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	return presence.NewRedisTracker(client, cfg.Redis.PresenceTTL, logger), nil
}

func ProvideTokenService(cfg *config.Config) *common.TokenService {
	return common.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
}

func ProvideAuthenticator(tokens *common.TokenService, store common.Store) common.Authenticator {
	return common.NewJWTAuthenticator(tokens, store)
}

func ProvideNotificationService(
	cfg *config.Config,
	store common.Store,
	broadcaster *realtime.Broadcaster,
	publisher common.Publisher,
	logger *logrus.Logger,
) *notif.NotificationService {
	return notif.NewNotificationService(cfg, store, broadcaster, publisher, logger)
}

func ProvideMessagePipeline(
	store common.Store,
	broadcaster *realtime.Broadcaster,
	notifications *notif.NotificationService,
	publisher common.Publisher,
	logger *logrus.Logger,
) *chat.MessagePipeline {
	return chat.NewMessagePipeline(store, store, broadcaster, notifications, publisher, logger)
}

func ProvideTypingRelay(cfg *config.Config, broadcaster *realtime.Broadcaster, logger *logrus.Logger) *presence.TypingRelay {
	return presence.NewTypingRelay(broadcaster, cfg.Realtime.TypingTimeout, logger)
}

func ProvideGateway(
	cfg *config.Config,
	auth common.Authenticator,
	registry *realtime.Registry,
	broadcaster *realtime.Broadcaster,
	pipeline *chat.MessagePipeline,
	typing *presence.TypingRelay,
	tracker presence.Tracker,
	notifications *notif.NotificationService,
	logger *logrus.Logger,
) *ws.Gateway {
	return ws.NewGateway(cfg, auth, registry, broadcaster, pipeline, typing, tracker, notifications, logger)
}

func ProvideChecker(store common.Store, registry *realtime.Registry, logger *logrus.Logger) *health.Checker {
	return health.NewChecker(store, registry, logger)
}

func ProvideGRPCServer(checker *health.Checker, logger *logrus.Logger) *health.GRPCServer {
	return health.NewGRPCServer(checker, logger)
}
