// Command server is the hub's process entry point: it reads configuration,
// opens the relational edge store and session cache, wires the OAuth login
// front, starts the HubManager's idle sweep, and serves the HTTP front
// until an interrupt or terminate signal arrives.
//
// Grounded on the teacher's cmd/main.go startup/shutdown shape — explicit
// timeouts on the http.Server, SIGINT/SIGTERM handling, a bounded shutdown
// context — generalized from its agent-gateway wiring to this hub's own
// dependency graph.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaybridge/hub/internal/acceptor"
	"github.com/relaybridge/hub/internal/auth"
	"github.com/relaybridge/hub/internal/cache"
	"github.com/relaybridge/hub/internal/config"
	"github.com/relaybridge/hub/internal/db"
	"github.com/relaybridge/hub/internal/hub"
	"github.com/relaybridge/hub/internal/httpapi"
	"github.com/relaybridge/hub/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	database, err := db.NewDatabase(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to relational edge store")
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate relational edge store")
	}

	userDB := db.NewUserDB(database.DB())
	tokenDB := db.NewTokenDB(database.DB())
	sessionDB := db.NewSessionDB(database.DB())

	var cacheClient *cache.Cache
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		cacheClient, err = cache.NewCache(cache.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Enabled:  true,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to session cache")
		}
		defer cacheClient.Close()

		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
	}

	var jwtManager *auth.JWTManager
	jwtConfig := &auth.JWTConfig{
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		TokenDuration: cfg.SessionTTL,
	}
	if cacheClient != nil {
		jwtManager = auth.NewJWTManagerWithSessions(jwtConfig, cacheClient)
	} else {
		jwtManager = auth.NewJWTManager(jwtConfig)
	}

	allowlistFile, err := config.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load identity allowlist")
	}
	allowlist := auth.NewAllowlist(allowlistFile)

	var oidcAuth *auth.OIDCAuthenticator
	if cfg.OIDCEnabled {
		oidcAuth, err = auth.NewOIDCAuthenticator(context.Background(), &auth.OIDCConfig{
			Enabled:      cfg.OIDCEnabled,
			ProviderURL:  cfg.OIDCProviderURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURI:  cfg.OIDCRedirectURI,
			OrgClaim:     cfg.OIDCOrgClaim,
			TeamClaim:    cfg.OIDCTeamClaim,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start OIDC authenticator")
		}
	}
	authHandler := auth.NewAuthHandler(oidcAuth, allowlist, userDB, sessionDB, jwtManager)

	manager := hub.NewManager(cfg.HubStoreDir, hub.Config{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ProxyTimeout:     cfg.ProxyTimeout,
		HibernateAfter:   cfg.HibernateAfter,
	}, tokenDB)
	if err := manager.StartSweep(); err != nil {
		log.Fatal().Err(err).Msg("failed to start hub idle sweep")
	}
	defer manager.StopSweep()

	conn := acceptor.New(manager, tokenDB, jwtManager)

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Manager:     manager,
		Acceptor:    conn,
		AuthHandler: authHandler,
		JWTManager:  jwtManager,
		RedisClient: redisClient,
		ProxyPrefix: cfg.ProxyPrefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble HTTP router")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("hub listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownTimeout := 30 * time.Second
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			shutdownTimeout = d
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server forced to shutdown")
	} else {
		log.Info().Msg("http server stopped gracefully")
	}
}
