// Package app opens the storage backend selected by STORAGE_BACKEND and
// builds the shared services both binaries run on.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"chatcore-backend/internal/database"
	"chatcore-backend/internal/notifier"
	"chatcore-backend/internal/repository"
	"chatcore-backend/internal/repository/cassandra"
	"chatcore-backend/internal/repository/cockroach"
	"chatcore-backend/internal/repository/memory"
	pebblerepo "chatcore-backend/internal/repository/pebble"
	redisrepo "chatcore-backend/internal/repository/redis"
	"chatcore-backend/pkg/audit"
	"chatcore-backend/pkg/config"
	pkgDatabase "chatcore-backend/pkg/database"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/push"
)

// Stores are the repositories and infrastructure of one backend. Redis is nil
// unless the backend is cluster.
type Stores struct {
	Backend  string
	Groups   repository.GroupRepository
	Directs  repository.DirectoryRepository
	Users    repository.UserRepository
	Messages repository.MessageRepository
	Calls    repository.CallSessionRepository
	Presence repository.PresenceRepository
	Tokens   push.TokenRepository
	Broker   notifier.Broker
	Redis    *database.RedisClient

	closers []func()
}

// Close releases every connection in reverse open order
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores connects the backend named by cfg.Storage.Backend and applies its schema
func OpenStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Stores, error) {
	switch cfg.Storage.Backend {
	case config.BackendCluster:
		return openCluster(ctx, cfg, m)
	case config.BackendEmbedded:
		return openEmbedded(cfg, m)
	default:
		log.Println("⚠️  Using in-memory storage, data is lost on restart")
		return &Stores{
			Backend:  config.BackendMemory,
			Groups:   memory.NewGroupRepository(),
			Directs:  memory.NewDirectoryRepository(),
			Users:    memory.NewUserRepository(),
			Messages: memory.NewMessageRepository(),
			Calls:    memory.NewCallSessionRepository(),
			Presence: memory.NewPresenceRepository(),
			Tokens:   memory.NewPushTokenRepository(),
			Broker:   notifier.NewLocalBroker(),
		}, nil
	}
}

func openCluster(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Stores, error) {
	s := &Stores{Backend: config.BackendCluster}

	cockroachDB, err := pkgDatabase.NewCockroachDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CockroachDB: %w", err)
	}
	s.closers = append(s.closers, cockroachDB.Close)
	log.Println("✅ Connected to CockroachDB")

	if err := cockroach.Migrate(ctx, cockroachDB.Pool); err != nil {
		s.Close()
		return nil, err
	}

	cassandraDB, err := pkgDatabase.NewCassandraDB(&cfg.Cassandra)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	s.closers = append(s.closers, cassandraDB.Close)
	log.Println("✅ Connected to Cassandra")

	if err := cassandra.Migrate(cassandraDB.Session); err != nil {
		s.Close()
		return nil, err
	}

	redisDB := s.openRedis(ctx, cfg, m)
	s.Groups = cockroach.NewGroupRepository(cockroachDB.Pool, m)
	s.Directs = cockroach.NewConversationRepository(cockroachDB.Pool, m)
	s.Users = cockroach.NewUserRepository(cockroachDB.Pool, m)
	s.Messages = cassandra.NewMessageRepository(cassandraDB.Session, redisrepo.NewSequencer(redisDB), m)
	s.Calls = redisrepo.NewCallSessionRepository(redisDB)
	s.Presence = redisrepo.NewPresenceRepository(redisDB)
	s.Tokens = redisrepo.NewPushTokenRepository(redisDB)
	s.Broker = notifier.NewRedisBroker(redisDB.Client)
	return s, nil
}

// openRedis connects redis in degraded mode: commands fail fast while the
// background health check reports it down.
func (s *Stores) openRedis(ctx context.Context, cfg *config.Config, m *metrics.Metrics) *database.RedisClient {
	redisDB := database.NewRedisDB(&cfg.Redis, m.GetRegistry())
	if err := redisDB.HealthCheck(ctx); err != nil {
		log.Printf("⚠️  Redis unreachable, starting in degraded mode: %v", err)
	} else {
		log.Println("✅ Connected to Redis")
	}
	s.closers = append(s.closers, func() { _ = redisDB.Close() })

	healthCtx, stopHealth := context.WithCancel(context.Background())
	redisDB.StartHealthCheck(healthCtx, 10*time.Second)
	log.Println("✅ Redis health check started (10s interval)")
	s.closers = append(s.closers, stopHealth)

	s.Redis = redisDB
	return redisDB
}

// OpenSignalingStores opens only what the signaling exchange needs: call
// sessions and the broker. Outside cluster mode both stay in process.
func OpenSignalingStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics) *Stores {
	if cfg.Storage.Backend != config.BackendCluster {
		return &Stores{
			Backend: cfg.Storage.Backend,
			Calls:   memory.NewCallSessionRepository(),
			Broker:  notifier.NewLocalBroker(),
		}
	}

	s := &Stores{Backend: config.BackendCluster}
	redisDB := s.openRedis(ctx, cfg, m)
	s.Calls = redisrepo.NewCallSessionRepository(redisDB)
	s.Broker = notifier.NewRedisBroker(redisDB.Client)
	return s
}

func openEmbedded(cfg *config.Config, m *metrics.Metrics) (*Stores, error) {
	pebbleDB, err := pkgDatabase.NewPebbleDB(&cfg.Pebble)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Opened embedded store at %s", cfg.Pebble.Path)

	return &Stores{
		Backend:  config.BackendEmbedded,
		Groups:   pebblerepo.NewGroupRepository(pebbleDB.DB, m),
		Directs:  pebblerepo.NewDirectoryRepository(pebbleDB.DB, m),
		Users:    pebblerepo.NewUserRepository(pebbleDB.DB, m),
		Messages: pebblerepo.NewMessageRepository(pebbleDB.DB, m),
		Calls:    memory.NewCallSessionRepository(),
		Presence: memory.NewPresenceRepository(),
		Tokens:   memory.NewPushTokenRepository(),
		Broker:   notifier.NewLocalBroker(),
		closers:  []func(){func() { closePebble(pebbleDB) }},
	}, nil
}

func closePebble(db *pkgDatabase.PebbleDB) {
	if err := db.Close(); err != nil {
		log.Printf("Failed to close embedded store: %v", err)
	}
}

// NewAuditLogger sends audit events to AMQP when AMQP_URL is set and keeps a
// daily redis list when redis is available. The redis sink doubles as the
// reader behind the admin audit endpoint.
func NewAuditLogger(cfg *config.Config, redisDB *database.RedisClient) (*audit.Logger, *audit.RedisSink) {
	var sinks []audit.Sink
	if cfg.Audit.AMQPURL != "" {
		sinks = append(sinks, audit.NewAMQPSink(cfg.Audit.AMQPURL, cfg.Audit.Exchange, cfg.Audit.RoutingKey))
	}
	var redisSink *audit.RedisSink
	if redisDB != nil {
		redisSink = audit.NewRedisSink(redisDB.Client)
		sinks = append(sinks, redisSink)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, audit.NoopSink{})
	}
	for _, sink := range sinks {
		log.Printf("✅ Audit sink: %s", audit.SinkMode(sink))
	}
	return audit.NewLogger(cfg.Server.ServiceName, cfg.Server.Environment, sinks...), redisSink
}
