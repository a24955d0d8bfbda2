package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/ambulance-sim/internal/auth"
	"github.com/ukydev/ambulance-sim/internal/config"
	"github.com/ukydev/ambulance-sim/internal/db"
	"github.com/ukydev/ambulance-sim/internal/handlers"
	"github.com/ukydev/ambulance-sim/internal/metrics"
	"github.com/ukydev/ambulance-sim/internal/middleware"
	"github.com/ukydev/ambulance-sim/internal/models"
	"github.com/ukydev/ambulance-sim/internal/publisher"
	"github.com/ukydev/ambulance-sim/internal/routing"
	"github.com/ukydev/ambulance-sim/internal/sim"
	"github.com/ukydev/ambulance-sim/internal/timeutil"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.HTTPAddr).Fatal("Failed to listen")
	}

	if err := run(ctx, cfg, ln); err != nil {
		log.WithError(err).Fatal("Simulator exited with error")
	}
	log.Info("Simulator stopped")
}

// run wires every component and blocks until ctx is cancelled or one of them
// fails.
func run(ctx context.Context, cfg config.Config, ln net.Listener) error {
	clock := timeutil.RealClock{}
	m := metrics.New()
	seed := time.Now().UnixNano()

	httpClient := &http.Client{Timeout: cfg.RoutingTimeout}
	queue := routing.NewQueue(routing.QueueConfig{
		Size:       cfg.RoutingQueueSize,
		MinSpacing: cfg.RoutingMinSpacing,
		MaxPenalty: routing.DefaultQueueConfig().MaxPenalty,
	}, clock, m)
	provider := routing.NewThrottled(newProvider(cfg, httpClient), queue)
	acquirer := routing.NewAcquirer(provider, acquirerConfig(cfg), rand.New(rand.NewSource(seed)))
	engine := sim.New(engineConfig(cfg), acquirer, clock, m, rand.New(rand.NewSource(seed+1)))

	routerCfg := handlers.RouterConfig{
		Fleet:              engine,
		RateLimiter:        middleware.NewRateLimitMiddleware(clock),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            m,
	}
	if cfg.AuthEnabled() {
		client, users, err := connectUsers(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.WithError(err).Warn("Failed to disconnect from MongoDB")
			}
		}()
		authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
		if err := seedAdmin(ctx, cfg, authService, users); err != nil {
			return err
		}
		routerCfg.Auth = handlers.NewAuthHandler(authService, users)
		routerCfg.AuthMiddleware = middleware.NewAuthMiddleware(authService)
	} else {
		log.Warn("MONGO_URI not set, API authentication disabled")
	}

	server := &http.Server{
		Handler:           handlers.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(gctx)
	})

	engine.Start(gctx, cfg.FleetSize, cfg.TickInterval)
	g.Go(func() error {
		<-gctx.Done()
		engine.Stop()
		return nil
	})

	g.Go(func() error {
		log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.FeedEnabled() {
		clientID := "ambulance-sim-" + uuid.NewString()[:8]
		mqttClient, err := publisher.Connect(ctx, cfg.MQTTBrokerURL, clientID)
		if err != nil {
			// the rest of the simulator is useful without the feed
			log.WithError(err).WithField("broker", cfg.MQTTBrokerURL).Error("MQTT feed disabled")
		} else {
			defer mqttClient.Disconnect(250)
			pub := publisher.New(mqttClient, engine, publisher.Config{
				TopicPrefix: cfg.MQTTTopicPrefix,
				Interval:    cfg.MQTTPublishInterval,
			}, clock, m)
			g.Go(func() error {
				return pub.Run(gctx)
			})
		}
	}

	log.WithFields(log.Fields{
		"fleet_size": cfg.FleetSize,
		"interval":   cfg.TickInterval,
		"provider":   cfg.RoutingProvider,
		"auth":       cfg.AuthEnabled(),
		"feed":       cfg.FeedEnabled(),
	}).Info("Starting ambulance simulation")

	return g.Wait()
}

func newProvider(cfg config.Config, client routing.HTTPClient) routing.Provider {
	if cfg.RoutingProvider == config.ProviderORS {
		if cfg.ORSAPIKey == "" {
			log.Warn("ORS_API_KEY not set, OpenRouteService will reject requests")
		}
		return routing.NewORSClient(cfg.ORSBaseURL, cfg.ORSAPIKey, client)
	}
	return routing.NewOSRMClient(cfg.OSRMBaseURL, client)
}

func acquirerConfig(cfg config.Config) routing.AcquirerConfig {
	c := routing.DefaultAcquirerConfig(sim.Stations)
	c.MinKm = cfg.RouteMinKm
	c.MaxKm = cfg.RouteMaxKm
	c.Attempts = cfg.RouteMaxAttempts
	return c
}

func engineConfig(cfg config.Config) sim.Config {
	c := sim.DefaultConfig()
	c.MaxHistory = cfg.MaxHistory
	c.RetryBackoff = cfg.RouteRetryBackoff
	c.StuckTimeout = cfg.StuckTimeout
	return c
}

func connectUsers(ctx context.Context, cfg config.Config) (*mongo.Client, *db.MongoUserCollection, error) {
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	return client, db.NewUserCollection(database), nil
}

// seedAdmin creates the configured admin account when it does not exist yet.
func seedAdmin(ctx context.Context, cfg config.Config, authService *auth.Service, users db.UserCollection) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	if err := authService.ValidatePassword(cfg.AdminPassword); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD: %w", err)
	}
	hash, err := authService.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	created, err := users.EnsureUser(ctx, models.User{
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.WithField("username", cfg.AdminUsername).Info("Admin account created")
	}
	return nil
}
