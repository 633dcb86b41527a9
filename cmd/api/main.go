package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/access"
	"marketplace/internal/cache"
	"marketplace/internal/config"
	"marketplace/internal/consul"
	"marketplace/internal/credential"
	"marketplace/internal/database"
	"marketplace/internal/gateway"
	"marketplace/internal/logger"
	"marketplace/internal/metrics"
	"marketplace/internal/server"
	"marketplace/internal/session"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "marketplace-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: serviceName,
	})
	logger.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate has already checked mode and cookie policy
	mode, _ := cfg.Mode()
	cookiePolicy, _ := cfg.CookiePolicy()

	slog.Info("Starting marketplace API",
		"port", cfg.Port,
		"environment", cfg.Environment(),
		"access_policy", mode,
	)

	ctx := context.Background()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open document store", "error", err)
		os.Exit(1)
	}

	var jobCache cache.Store
	if cfg.Redis.Addr != "" {
		jobCache, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("Redis unavailable, continuing without job cache", "error", err)
		} else {
			slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)
		}
	}

	codec, err := credential.NewCodec(cfg.Token.Secret, cfg.Token.TTL, credential.WithIssuer(cfg.Token.Issuer))
	if err != nil {
		slog.Error("Failed to create credential codec", "error", err)
		os.Exit(1)
	}

	table, err := loadAccessTable(mode)
	if err != nil {
		slog.Error("Failed to load access policy", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiter := gateway.NewRateLimiter(cfg.Login.RatePerMinute, cfg.Login.Burst, 5*time.Minute)

	srv := server.New(server.Deps{
		Store:          store,
		Cache:          jobCache,
		Codec:          codec,
		Cookies:        session.NewCookieStore(cookiePolicy, codec.TTL()),
		Table:          table,
		Metrics:        metrics.NewCollector(reg),
		Gatherer:       reg,
		Limiter:        limiter,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
	})

	httpServer := server.NewHTTPServer(cfg.Port, cfg.Server, srv.RegisterRoutes())

	registrar, serviceID := register(cfg)

	go func() {
		slog.Info("Marketplace API listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down marketplace API")

	if registrar != nil {
		if err := registrar.Deregister(serviceID); err != nil {
			slog.Error("Failed to deregister service", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	limiter.Stop()
	if jobCache != nil {
		if err := jobCache.Close(); err != nil {
			slog.Error("Failed to close cache", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		slog.Error("Failed to close document store", "error", err)
	}

	slog.Info("Marketplace API stopped")
}

// loadAccessTable returns the validated policy table for mode.
func loadAccessTable(mode access.Mode) (*access.Table, error) {
	table, err := access.ForMode(mode)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// openStore connects to Postgres when a URL is configured and falls back
// to the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (database.Service, error) {
	if cfg.URL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory document store")
		return database.NewMemoryStore(), nil
	}

	if cfg.Migrate {
		if err := database.RunMigrations(cfg.URL); err != nil {
			return nil, err
		}
	}

	store, err := database.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	slog.Info("Connected to Postgres")
	return store, nil
}

// register announces the API to Consul when an agent is configured.
// Failures are logged; the API serves without registration.
func register(cfg config.Config) (consul.Registrar, string) {
	if cfg.Consul.Addr == "" {
		return nil, ""
	}

	client, err := consul.NewClient(cfg.Consul.Addr, cfg.Consul.Token)
	if err != nil {
		slog.Warn("Failed to create Consul client", "error", err)
		return nil, ""
	}

	svc := consul.APIService(serviceName, cfg.ServiceHost, cfg.Port, cfg.Environment())
	if err := client.Register(svc); err != nil {
		slog.Warn("Failed to register with Consul", "error", err)
		return nil, ""
	}

	slog.Info("Registered with Consul", "service_id", svc.ID)
	return client, svc.ID
}
