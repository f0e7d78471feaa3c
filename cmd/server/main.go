package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chatcore/internal/config"
	"chatcore/internal/httpserver"
	"chatcore/internal/natsbus"
	"chatcore/internal/presence"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/ws"
	"chatcore/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat server: %v\n", err)
		os.Exit(1)
	}
}

// run owns every resource, so each return path runs the deferred cleanup.
func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.ForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		return fmt.Errorf("initialize encryptor: %w", err)
	}

	// Initialize database
	st, err := openStores(cfg, encryptor)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	defer st.db.Close()

	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Presence and connections
	tracker := presence.NewTracker()
	defer tracker.Close()
	registry := ws.NewRegistry(tracker, log)
	defer registry.Close()

	var events service.EventPublisher = service.NopPublisher{}
	var bus *natsbus.Client
	if cfg.NATSURL != "" {
		bus, err = natsbus.Connect(natsbus.Config{URL: cfg.NATSURL, Token: cfg.NATSToken, Name: cfg.AppName}, log)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer bus.Close()
		events = natsbus.NewPublisher(bus)
	}

	router := service.NewDeliveryRouter(
		st.conversations, st.members, st.messages, registry, events, log, cfg.BackfillPageSize,
	)
	tracker.OnChange(router.PresenceChanged)

	users := service.NewUserService(st.users, tracker)
	switch cfg.PresenceBackend {
	case "redis":
		rdb, err := presence.DialRedis(rootCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		redisStore := presence.NewRedisStore(rdb, cfg.PresenceOnlineTTL)
		tracker.OnChange(presence.Persist(redisStore, log, 5*time.Second))
		go redisStore.KeepAlive(rootCtx, tracker, cfg.PresenceOnlineTTL/2)
		users = users.WithLastSeen(redisStore)
	default:
		tracker.OnChange(presence.Persist(st.lastSeen, log, 5*time.Second))
	}

	notifications := service.NewNotificationService(st.notifications, st.users, registry, log)
	if bus != nil {
		consumer := natsbus.NewNotificationConsumer(notifications, log)
		if _, err := consumer.Subscribe(bus, cfg.NotificationsSubject, cfg.NotificationsQueue); err != nil {
			return fmt.Errorf("subscribe to notifications: %w", err)
		}
	}

	// Build HTTP router
	handler := httpserver.NewRouter(httpserver.Deps{
		Config:        cfg,
		Log:           log,
		Auth:          security.NewAuthenticator(tokenSvc, st.users),
		Registry:      registry,
		Router:        router,
		Conversations: service.NewConversationService(st.conversations, st.members),
		Notifications: notifications,
		Users:         users,
	})

	// No write timeout: /ws responses outlive any fixed deadline.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting chat server", zap.String("addr", cfg.HTTPAddr()), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-stop:
	}

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	// Drop the remaining connections while the stores, Redis and NATS are
	// still open, then wait for their presence changes to be persisted.
	registry.Close()
	tracker.Close()
	return nil
}
