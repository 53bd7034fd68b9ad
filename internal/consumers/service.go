package consumers

import (
	"context"
	"log/slog"

	"github.com/c010r/backyardbarpass/internal/cache"
	"github.com/c010r/backyardbarpass/internal/config"
	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/external"
	"github.com/c010r/backyardbarpass/internal/jobs"
	"github.com/c010r/backyardbarpass/internal/messaging"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
	"github.com/c010r/backyardbarpass/internal/service"
)

const queueGroup = "backyardbar-consumers"

// ConsumerService runs the background side of the system: cache invalidation
// driven by NATS events and the reservation expiry sweep.
type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	redis    *cache.RedisCache
	handlers *Handlers
	expiry   *jobs.ReservationExpirationJob
}

// NewConsumerService connects the store and, when enabled, NATS. Without NATS
// the service still sweeps expired holds; only cache invalidation is lost.
func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	var natsClient *messaging.NATSClient
	if cfg.NATS.Enabled {
		natsClient, err = messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			slog.Warn("NATS unavailable, running the expiry sweep only", "error", err)
			natsClient = nil
		}
	}

	return newConsumerService(cfg, db, natsClient), nil
}

func newConsumerService(cfg *config.Config, db *database.DB, natsClient *messaging.NATSClient) *ConsumerService {
	cs := &ConsumerService{db: db, nats: natsClient}

	var invalidator Invalidator = cache.Nop{}
	deps := service.Dependencies{
		Gateway: external.NewPaymentClient(cfg.Payment),
	}
	if natsClient != nil {
		deps.Publisher = natsClient
	}
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Cache)
		if err != nil {
			slog.Warn("Redis unavailable, cache invalidation disabled", "error", err)
		} else {
			cs.redis = redisCache
			invalidator = redisCache
			deps.Cache = redisCache
		}
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, deps, service.Options{
		HoldTTL:    cfg.Reservations.HoldTTL,
		SweepBatch: cfg.Reservations.SweepBatchSize,
	})

	cs.handlers = NewHandlers(invalidator)
	cs.expiry = jobs.NewReservationExpirationJob(services.Reservations, cfg.Reservations.SweepInterval)
	return cs
}

func (cs *ConsumerService) Start(ctx context.Context) error {
	if cs.nats != nil {
		if err := cs.subscribe(); err != nil {
			return err
		}
	} else {
		slog.Warn("NATS disabled, skipping event subscriptions")
	}

	cs.expiry.Start(ctx)

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) subscribe() error {
	slog.Info("Starting NATS consumers...")

	for _, subject := range models.ReservationEventSubjects {
		subject := subject
		handler := func(ctx context.Context, data []byte) error {
			return cs.handlers.HandleReservationEvent(ctx, subject, data)
		}
		if _, err := cs.nats.SubscribeQueue(subject, queueGroup, ack(subject, handler)); err != nil {
			return err
		}
	}

	_, err := cs.nats.SubscribeQueue(models.EventTicketRedeemed, queueGroup, ack(models.EventTicketRedeemed, cs.handlers.HandleTicketRedeemed))
	return err
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	cs.expiry.Stop()

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.redis != nil {
		if err := cs.redis.Close(); err != nil {
			slog.Error("Error closing Redis connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
