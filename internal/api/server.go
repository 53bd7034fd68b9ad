package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c010r/backyardbarpass/internal/cache"
	"github.com/c010r/backyardbarpass/internal/config"
	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/external"
	"github.com/c010r/backyardbarpass/internal/handlers"
	"github.com/c010r/backyardbarpass/internal/jobs"
	"github.com/c010r/backyardbarpass/internal/messaging"
	"github.com/c010r/backyardbarpass/internal/metrics"
	"github.com/c010r/backyardbarpass/internal/middleware"
	"github.com/c010r/backyardbarpass/internal/repository"
	"github.com/c010r/backyardbarpass/internal/repository/memory"
	"github.com/c010r/backyardbarpass/internal/search"
	"github.com/c010r/backyardbarpass/internal/service"
)

const serviceName = "backyardbar-api"

// Server is the HTTP API with everything it owns
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	amqp     *messaging.AMQPPublisher
	redis    *cache.RedisCache
	search   *search.ElasticsearchClient
	services *service.Services
	repos    *repository.Repositories
	expiry   *jobs.ReservationExpirationJob
}

// NewServer connects the configured backends and builds the router.
// Postgres is required unless STORE_DRIVER=memory; the other backends are optional.
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	s := &Server{config: cfg}

	switch cfg.StoreDriver {
	case "memory":
		slog.Warn("Using in-memory store, data is lost on restart")
		s.repos, _ = memory.NewRepositories()
	case "postgres", "":
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		s.db = db
		s.repos = repository.NewRepositories(db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	deps := service.Dependencies{
		Gateway: external.NewPaymentClient(cfg.Payment),
	}

	if cfg.NATS.Enabled {
		natsClient, err := messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			slog.Warn("NATS unavailable, domain events disabled", "error", err)
		} else {
			s.nats = natsClient
			deps.Publisher = natsClient
		}
	}

	if cfg.AMQP.Enabled {
		amqpPublisher, err := messaging.NewAMQPPublisher(cfg.AMQP)
		if err != nil {
			slog.Warn("RabbitMQ unavailable, ticket delivery disabled", "error", err)
		} else {
			s.amqp = amqpPublisher
			deps.Delivery = amqpPublisher
		}
	}

	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Cache)
		if err != nil {
			slog.Warn("Redis unavailable, running without cache", "error", err)
		} else {
			s.redis = redisCache
			deps.Cache = redisCache
		}
	}

	if cfg.Elasticsearch.Enabled {
		esClient, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, search falls back to the database", "error", err)
		} else {
			s.search = esClient
			deps.Search = esClient
		}
	}

	s.services = service.NewServices(s.repos, deps, service.Options{
		HoldTTL:       cfg.Reservations.HoldTTL,
		SweepBatch:    cfg.Reservations.SweepBatchSize,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	// with Postgres the consumers process owns the sweep
	if s.db == nil {
		s.expiry = jobs.NewReservationExpirationJob(s.services.Reservations, cfg.Reservations.SweepInterval)
	}

	s.router = gin.New()
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
	s.router.Use(metrics.Middleware())
	if cfg.RequestTimeout > 0 {
		s.router.Use(requestTimeout(cfg.RequestTimeout))
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services)

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		events := api.Group("/events")
		{
			events.GET("", h.ListEvents)
			events.GET("/:id", h.GetEvent)
		}

		// the gateway authenticates with the notification signature
		api.POST("/payments/webhook", h.PaymentWebhook)

		authed := api.Group("", middleware.JWTAuth(s.config.Auth.JWTSecret, s.config.Auth.Issuer))
		{
			authed.GET("/me", h.GetProfile)
			authed.PUT("/me", h.UpsertProfile)

			reservations := authed.Group("/reservations")
			{
				reservations.POST("", h.CreateReservation)
				reservations.GET("", h.ListReservations)
				reservations.GET("/:id", h.GetReservation)
				reservations.POST("/:id/cancel", h.CancelReservation)
			}

			authed.POST("/payments/confirm", h.ConfirmPayment)
			authed.GET("/tickets", h.ListTickets)

			staff := authed.Group("/staff", middleware.RequireStaff())
			{
				staff.POST("/validate", h.ValidateTicket)
				staff.GET("/stats", h.GetStats)
				staff.GET("/events/:id/export.csv", h.ExportAttendees)
				staff.POST("/events", h.CreateEvent)
				staff.POST("/events/:id/tiers", h.CreateTier)
			}
		}
	}
}

// healthCheck reports the state of every configured backend; only the store is critical
func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	components := gin.H{}

	if s.db != nil {
		hc := s.db.HealthCheck(ctx)
		components["database"] = hc
		if hc.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
	} else {
		components["database"] = gin.H{"status": "memory"}
	}

	if s.redis != nil {
		components["cache"] = componentStatus(s.redis.Ping(ctx))
	}
	if s.search != nil {
		components["search"] = componentStatus(s.search.HealthCheck(ctx))
	}
	components["nats"] = gin.H{"enabled": s.nats != nil}
	components["amqp"] = gin.H{"enabled": s.amqp != nil}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"service":    serviceName,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}

func componentStatus(err error) gin.H {
	if err != nil {
		return gin.H{"status": "unhealthy", "error": err.Error()}
	}
	return gin.H{"status": "healthy"}
}

// requestTimeout bounds the context handed to the services
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// StartBackground launches in-process jobs
func (s *Server) StartBackground(ctx context.Context) {
	if s.expiry != nil {
		s.expiry.Start(ctx)
	}
}

// GetRouter returns the router for tests and custom http.Server setups
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup closes every connection
func (s *Server) Cleanup() error {
	if s.expiry != nil {
		s.expiry.Stop()
	}

	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.amqp != nil {
		if err := s.amqp.Close(); err != nil {
			slog.Error("Error closing RabbitMQ connection", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("Error closing Redis connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
