package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"redgrab/internal/broker"
	"redgrab/internal/capture"
	"redgrab/internal/config"
	"redgrab/internal/constants"
	"redgrab/internal/cooldown"
	"redgrab/internal/dedup"
	"redgrab/internal/hostclient"
	"redgrab/internal/identity"
	"redgrab/internal/logger"
	"redgrab/internal/management"
	"redgrab/internal/normalize"
	"redgrab/internal/policy"
	"redgrab/internal/settings"
	"redgrab/internal/stats"
	"redgrab/pkg/bootstrap"
	"redgrab/pkg/cel"
	"redgrab/pkg/health"
	"redgrab/pkg/metrics"
	"redgrab/pkg/middleware"
	"redgrab/pkg/ratelimit"
	"redgrab/pkg/tracing"
)

const serviceName = "redgrab"

type App struct {
	*bootstrap.Base
	connector         *bootstrap.Connector
	redisClient       *redis.Client
	hostClient        *hostclient.WSClient
	service           *capture.Service
	managementService management.Service
	store             settings.Store
	tracerProvider    *tracing.TracerProvider
	server            *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:      bootstrap.NewBase(cfg, log),
		connector: bootstrap.NewConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	dedupStore, err := a.initDedup(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dedup store: %w", err)
	}

	if err := a.initService(ctx, dedupStore); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if a.Config.Broker.Enabled {
		if err := a.InitBroker(serviceName); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
	}

	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterCaptureMetrics()
	metrics.RegisterManagementMetrics()
	if a.Config.Broker.Enabled {
		metrics.RegisterBrokerMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDedup(ctx context.Context) (dedup.Store, error) {
	var store dedup.Store

	switch a.Config.Dedup.Backend {
	case constants.DedupBackendRedis:
		client, err := a.connector.InitRedis(ctx)
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		ttl := time.Duration(a.Config.Dedup.TTLSeconds) * time.Second
		store = dedup.NewRedisStore(client, ttl)
	default:
		store = dedup.NewMemoryStore()
	}

	if a.Config.CircuitBreaker.Enabled {
		store = dedup.NewCircuitBreakerStore(store, a.Config.CircuitBreaker)
	}
	return store, nil
}

func (a *App) initService(ctx context.Context, dedupStore dedup.Store) error {
	client, err := hostclient.NewWSClient(a.Config.Host, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to host: %w", err)
	}
	a.hostClient = client

	store, err := settings.NewFileStore(a.policyFile())
	if err != nil {
		return fmt.Errorf("failed to open policy store: %w", err)
	}
	a.store = store

	eval, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create rule evaluator: %w", err)
	}

	resolver := identity.NewResolver(client, nil, a.Logger)
	if a.Config.Host.SelfUIN != "" {
		resolver.Seed(identity.Identity{
			UIN: a.Config.Host.SelfUIN,
			UID: a.Config.Host.SelfUID,
		})
	}

	cooldowns := cooldown.NewManager()

	a.service = capture.NewService(capture.Options{
		Client:       client,
		Normalizer:   normalize.NewNormalizer(hostclient.NewMessageFetcher(client), a.Logger),
		Dedup:        dedupStore,
		Filter:       policy.NewFilter(cooldowns, eval, a.Logger),
		Resolver:     resolver,
		Cooldown:     cooldowns,
		Store:        store,
		Stats:        stats.NewSettingsReporter(store, a.Logger),
		Logger:       a.Logger,
		DedupOnError: a.Config.Dedup.OnError,
	})

	a.managementService = management.NewService(
		store,
		stats.NewSettingsReporter(store, a.Logger),
		cooldowns,
		eval,
		a.service,
	)
	return nil
}

func (a *App) policyFile() string {
	if a.Config.Capture.PolicyFile != "" {
		return a.Config.Capture.PolicyFile
	}
	return "policy.json"
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.Management.RateLimit.RPS,
			Burst:           a.Config.Management.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.Management.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.Management.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	management.NewHandler(a.managementService, a.Logger).RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewHostChecker(a.hostClient))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if err := a.hostClient.Subscribe(func(event string, payload map[string]interface{}) {
		a.dispatch(gCtx, event, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to host events: %w", err)
	}

	if a.Consumer != nil && a.Config.Broker.Kafka.InputTopic != "" {
		inputTopic := a.Config.Broker.Kafka.InputTopic
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting event consumer", "topic", inputTopic)
			return a.Consumer.Consume(gCtx, inputTopic, func(cCtx context.Context, evt broker.RawEvent) error {
				a.dispatch(cCtx, evt.Event, evt.Payload)
				return nil
			})
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// dispatch routes one host event to the capture pipeline. Message and
// recent-contact events both may carry envelopes, the group list event
// drives one-shot chat activation.
func (a *App) dispatch(ctx context.Context, event string, payload map[string]interface{}) {
	switch event {
	case hostclient.EventRecvMsg, hostclient.EventRecentContactChanged:
		a.forward(ctx, event, payload)
		a.service.Handle(ctx, payload)
	case hostclient.EventGroupListUpdate:
		a.service.HandleGroupListUpdate(ctx, payload)
	default:
		a.Logger.DebugwCtx(ctx, "Ignoring host event", "event", event)
	}
}

// forward mirrors raw host events onto the broker output topic so
// downstream consumers can process them independently.
func (a *App) forward(ctx context.Context, event string, payload map[string]interface{}) {
	if a.Producer == nil || a.Config.Broker.Kafka.OutputTopic == "" {
		return
	}
	evt := broker.RawEvent{
		ID:         uuid.NewString(),
		Event:      event,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	if err := a.Producer.Publish(ctx, a.Config.Broker.Kafka.OutputTopic, evt); err != nil {
		a.Logger.WarnwCtx(ctx, "Failed to forward event to broker", "event", event, "error", err)
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	return a.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.hostClient != nil {
			if err := a.hostClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("host client close error: %w", err))
			}
		}

		if a.redisClient != nil {
			errs = append(errs, a.connector.ShutdownRedis(a.redisClient)...)
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		return errs
	})
}
